package service

import (
	"crypto/subtle"
	"net/url"
	"strings"
	"time"

	"download-gate-service/domain"
)

type RateChecker interface {
	Check(key domain.ClientKey, now time.Time) domain.Admission
}

type Stage interface {
	Admit(req domain.GateRequest, now time.Time) domain.Admission
}

type StageFunc func(req domain.GateRequest, now time.Time) domain.Admission

func (f StageFunc) Admit(req domain.GateRequest, now time.Time) domain.Admission {
	return f(req, now)
}

// Gate runs stages in order and stops at the first denial.
type Gate struct {
	stages []Stage
	clock  func() time.Time
}

func NewGate(clock func() time.Time, stages ...Stage) Gate {
	if clock == nil {
		clock = time.Now
	}
	return Gate{
		stages: stages,
		clock:  clock,
	}
}

func (g Gate) Admit(req domain.GateRequest) domain.Admission {
	now := g.clock()
	for _, stage := range g.stages {
		admission := stage.Admit(req, now)
		if !admission.Allow {
			return admission
		}
	}
	return domain.Allowed()
}

func (g Gate) Now() time.Time {
	return g.clock()
}

// ReferrerStage denies requests whose Referer (or Origin, when Referer is absent)
// points outside the allowed domains. Requests without both headers pass.
func ReferrerStage(allowedDomains []string) Stage {
	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return StageFunc(func(req domain.GateRequest, now time.Time) domain.Admission {
		if len(domains) == 0 {
			return domain.Allowed()
		}
		header := strings.TrimSpace(req.Referer)
		if header == "" {
			header = strings.TrimSpace(req.Origin)
		}
		if header == "" {
			return domain.Allowed()
		}
		host := refererHost(header)
		if host == "" {
			return domain.Denied(domain.ReasonForbidden)
		}
		for _, d := range domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return domain.Allowed()
			}
		}
		return domain.Denied(domain.ReasonForbidden)
	})
}

func refererHost(value string) string {
	u, err := url.Parse(value)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func RateStage(limiter RateChecker) Stage {
	return StageFunc(func(req domain.GateRequest, now time.Time) domain.Admission {
		return limiter.Check(req.Key, now)
	})
}

func TokenStage(codec TokenCodec) Stage {
	return StageFunc(func(req domain.GateRequest, now time.Time) domain.Admission {
		if req.Token == "" || !codec.Verify(req.Token, req.Key, now) {
			return domain.Denied(domain.ReasonUnauthorized)
		}
		return domain.Allowed()
	})
}

func ApiKeyStage(secret string) Stage {
	expected := []byte(secret)
	return StageFunc(func(req domain.GateRequest, now time.Time) domain.Admission {
		if req.ApiKey == "" || subtle.ConstantTimeCompare([]byte(req.ApiKey), expected) != 1 {
			return domain.Denied(domain.ReasonUnauthorized)
		}
		return domain.Allowed()
	})
}
