package middleware

import (
	"net/http"

	"download-gate-service/httperrors"
	"download-gate-service/request"

	"github.com/pkg/errors"
)

func OnlyGet() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			method := ctx.Request().Method
			if method != http.MethodGet {
				ctx.ResponseWriter().Header().Set("Allow", allowedMethods)
				return httperrors.New(
					http.StatusMethodNotAllowed,
					"method not allowed, only GET is supported",
					errors.Errorf("method %s is not allowed", method),
				)
			}
			return next.Handle(ctx)
		})
	}
}
