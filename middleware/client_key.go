package middleware

import (
	"net"
	"strings"

	"download-gate-service/domain"
	"download-gate-service/request"
)

// ClientKey identifies the caller by proxy headers. RemoteAddr is used
// only when trustRemoteAddr is set, behind a proxy it would lump every client together.
func ClientKey(trustRemoteAddr bool) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			ctx.SetClientKey(resolveClientKey(ctx, trustRemoteAddr))
			return next.Handle(ctx)
		})
	}
}

func resolveClientKey(ctx *request.Context, trustRemoteAddr bool) domain.ClientKey {
	forwardedFor := ctx.Header("X-Forwarded-For")
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		first = strings.TrimSpace(first)
		if first != "" {
			return domain.ClientKey(first)
		}
	}

	realIp := ctx.Header("X-Real-IP")
	if realIp != "" {
		return domain.ClientKey(realIp)
	}

	if trustRemoteAddr {
		remoteAddr := ctx.Request().RemoteAddr
		host, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			host = remoteAddr
		}
		if host != "" {
			return domain.ClientKey(host)
		}
	}

	return domain.UnknownClientKey
}
