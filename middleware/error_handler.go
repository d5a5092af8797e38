package middleware

import (
	"net/http"

	"download-gate-service/domain"
	"download-gate-service/httperrors"
	"download-gate-service/request"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
)

type HttpError interface {
	WriteError(w http.ResponseWriter) error
}

func ErrorHandler(logger log.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			err := next.Handle(ctx)
			if err == nil {
				return nil
			}

			httpErr := toHttpError(err)
			if isClientError(err) {
				logger.Warn(ctx.Context(), err)
			} else {
				logger.Error(ctx.Context(), err)
			}
			return httpErr.WriteError(ctx.ResponseWriter())
		})
	}
}

// nolint:ireturn
func toHttpError(err error) HttpError {
	var httpErr HttpError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	switch {
	case errors.Is(err, domain.ErrUrlRequired):
		return httperrors.New(http.StatusBadRequest, "url is required", err)
	case errors.Is(err, domain.ErrUrlNotAllowed):
		return httperrors.New(http.StatusBadRequest, "url is not supported", err)
	}

	upstreamErr := domain.UpstreamError{}
	if errors.As(err, &upstreamErr) {
		return httperrors.New(http.StatusInternalServerError, "failed to fetch data from upstream", err).
			WithDetail(upstreamErr.Error())
	}

	return httperrors.New(http.StatusInternalServerError, "internal service error", err)
}

func isClientError(err error) bool {
	if domain.IsValidationError(err) {
		return true
	}
	var httpErr httperrors.HttpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode() < http.StatusInternalServerError
	}
	return false
}
