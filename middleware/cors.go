package middleware

import (
	"net/http"
	"strings"

	"download-gate-service/request"
)

const (
	allowedMethods = "GET, OPTIONS"
)

// Cors always sets the CORS headers. An allow-listed Origin is echoed back,
// anything else gets "*". Preflight requests end here with an empty 200.
func Cors(allowedOrigins []string, allowedHeaders []string) Middleware {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[strings.TrimSpace(origin)] = true
	}
	headers := strings.Join(allowedHeaders, ", ")

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			w := ctx.ResponseWriter()
			origin := ctx.Header("Origin")
			if origin != "" && origins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", headers)

			if ctx.Request().Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return nil
			}

			return next.Handle(ctx)
		})
	}
}
