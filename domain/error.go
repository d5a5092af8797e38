package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUrlRequired   = errors.New("url is required")
	ErrUrlNotAllowed = errors.New("url is not allowed")

	ErrForbidden    = errors.New("referrer is not allowed")
	ErrUnauthorized = errors.New("missing or invalid credential")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

type UpstreamCause string

const (
	UpstreamTimeout UpstreamCause = "Timeout"
	UpstreamNetwork UpstreamCause = "Network"
	UpstreamStatus  UpstreamCause = "Status"
)

type UpstreamError struct {
	Cause      UpstreamCause
	StatusCode int
	Err        error
}

func NewUpstreamError(cause UpstreamCause, err error) UpstreamError {
	return UpstreamError{Cause: cause, Err: err}
}

func (e UpstreamError) Error() string {
	if e.Cause == UpstreamStatus {
		return fmt.Sprintf("upstream: unexpected status %d", e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("upstream: %s", e.Cause)
	}
	return fmt.Sprintf("upstream: %s: %v", e.Cause, e.Err)
}

func (e UpstreamError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrUrlRequired) || errors.Is(err, ErrUrlNotAllowed)
}
