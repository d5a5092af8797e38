package httperrors

import (
	"net/http"
	"strconv"

	"download-gate-service/domain"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/json"
)

const (
	failureCode = -1
)

type HttpError struct {
	statusCode  int
	userMessage string
	detail      string
	retryAfter  int
	err         error
}

func New(statusCode int, userMessage string, internalError error) HttpError {
	return HttpError{
		statusCode:  statusCode,
		userMessage: userMessage,
		err:         internalError,
	}
}

func (e HttpError) Error() string {
	if e.err == nil {
		return e.userMessage
	}
	return e.err.Error()
}

func (e HttpError) Unwrap() error {
	return e.err
}

func (e HttpError) StatusCode() int {
	return e.statusCode
}

func (e HttpError) WriteError(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	if e.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.retryAfter))
	}
	w.WriteHeader(e.statusCode)
	data := map[string]any{
		"success": false,
		"code":    failureCode,
		"message": e.userMessage,
	}
	if e.detail != "" {
		data["error"] = e.detail
	}
	if e.retryAfter > 0 {
		data["retryAfter"] = e.retryAfter
	}
	return json.NewEncoder(w).Encode(data)
}

// WithDetail adds a public error description to the body.
func (e HttpError) WithDetail(detail string) HttpError {
	e.detail = detail
	return e
}

func (e HttpError) WithRetryAfter(seconds int) HttpError {
	e.retryAfter = seconds
	return e
}

func Denied(admission domain.Admission, key domain.ClientKey) HttpError {
	switch admission.Reason {
	case domain.ReasonForbidden:
		return New(
			http.StatusForbidden,
			"forbidden",
			errors.WithMessagef(domain.ErrForbidden, "client '%s'", key),
		)
	case domain.ReasonRateLimited:
		return New(
			http.StatusTooManyRequests,
			"too many requests, try again later",
			errors.WithMessagef(domain.ErrRateLimited, "client '%s'", key),
		).WithRetryAfter(admission.RetryAfterSeconds)
	default:
		return New(
			http.StatusUnauthorized,
			"unauthorized",
			errors.WithMessagef(domain.ErrUnauthorized, "client '%s'", key),
		)
	}
}
