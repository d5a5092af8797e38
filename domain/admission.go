package domain

import (
	"time"
)

const UnknownClientKey ClientKey = "unknown"

type ClientKey string

type Reason string

const (
	ReasonForbidden    Reason = "Forbidden"
	ReasonRateLimited  Reason = "RateLimited"
	ReasonUnauthorized Reason = "Unauthorized"
)

type Admission struct {
	Allow             bool
	Reason            Reason
	RetryAfterSeconds int
}

func Allowed() Admission {
	return Admission{Allow: true}
}

func Denied(reason Reason) Admission {
	return Admission{Reason: reason}
}

func RateLimited(retryAfterSeconds int) Admission {
	return Admission{Reason: ReasonRateLimited, RetryAfterSeconds: retryAfterSeconds}
}

type AdmissionEvent struct {
	Key    ClientKey
	Allow  bool
	Reason Reason
	Path   string
	At     time.Time
}

type GateRequest struct {
	Key     ClientKey
	Referer string
	Origin  string
	Token   string
	ApiKey  string
}
