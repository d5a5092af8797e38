package middleware

import (
	"net/http"
	"time"

	"download-gate-service/request"

	"github.com/txix-open/isp-kit/log"
)

type writerWrapper struct {
	http.ResponseWriter

	statusCode int
}

func (w *writerWrapper) StatusCode() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *writerWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func Logger(logger log.Logger, enableRequestLogging bool) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			if !enableRequestLogging {
				return next.Handle(ctx)
			}

			r := ctx.Request()
			writer := &writerWrapper{ResponseWriter: ctx.ResponseWriter()}
			ctx.SetResponseWriter(writer)

			start := time.Now()
			err := next.Handle(ctx)

			fields := []log.Field{
				log.String("httpMethod", r.Method),
				log.String("remoteAddr", r.RemoteAddr),
				log.String("xForwardedFor", r.Header.Get("X-Forwarded-For")),
				log.String("clientKey", string(ctx.ClientKey())),
				log.Int("statusCode", writer.StatusCode()),
				log.String("path", r.URL.Path),
				log.String("endpoint", ctx.Endpoint()),
				log.Int("elapsedMs", int(time.Since(start).Milliseconds())),
			}
			admission, ok := ctx.Admission()
			if ok && !admission.Allow {
				fields = append(fields, log.String("denyReason", string(admission.Reason)))
			}
			logger.Debug(ctx.Context(), "log request", fields...)

			return err
		})
	}
}
