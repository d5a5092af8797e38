package proxy

import (
	"net/http"
	"time"

	"download-gate-service/domain"
	"download-gate-service/request"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/json"
)

type TokenIssuer interface {
	Issue(key domain.ClientKey, now time.Time) string
	ExpiresAt(now time.Time) time.Time
}

type Token struct {
	issuer TokenIssuer
	clock  func() time.Time
}

func NewToken(issuer TokenIssuer, clock func() time.Time) Token {
	if clock == nil {
		clock = time.Now
	}
	return Token{
		issuer: issuer,
		clock:  clock,
	}
}

func (p Token) Handle(ctx *request.Context) error {
	now := p.clock()
	resp := domain.TokenResponse{
		Success:   true,
		Token:     p.issuer.Issue(ctx.ClientKey(), now),
		ExpiresIn: int(p.issuer.ExpiresAt(now).Sub(now).Seconds()),
	}
	return writeJson(ctx, resp)
}

func Health(ctx *request.Context) error {
	return writeJson(ctx, domain.HealthResponse{Status: "ok"})
}

func writeJson(ctx *request.Context, value any) error {
	w := ctx.ResponseWriter()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		return errors.WithMessage(err, "encode response")
	}
	return nil
}
