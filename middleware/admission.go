package middleware

import (
	"context"
	"time"

	"download-gate-service/domain"
	"download-gate-service/httperrors"
	"download-gate-service/request"
)

const (
	ClientTokenHeader = "x-client-token"
)

type Gate interface {
	Admit(req domain.GateRequest) domain.Admission
	Now() time.Time
}

type AdmissionRecorder interface {
	Record(ctx context.Context, event domain.AdmissionEvent)
}

func Admission(gate Gate, recorder AdmissionRecorder, apiKeyHeader string) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			key := ctx.ClientKey()
			gateReq := domain.GateRequest{
				Key:     key,
				Referer: ctx.Header("Referer"),
				Origin:  ctx.Header("Origin"),
				Token:   ctx.Header(ClientTokenHeader),
			}
			if apiKeyHeader != "" {
				gateReq.ApiKey = ctx.Header(apiKeyHeader)
			}

			admission := gate.Admit(gateReq)
			ctx.Admit(admission)
			recorder.Record(ctx.Context(), domain.AdmissionEvent{
				Key:    key,
				Allow:  admission.Allow,
				Reason: admission.Reason,
				Path:   ctx.Endpoint(),
				At:     gate.Now(),
			})

			if !admission.Allow {
				return httperrors.Denied(admission, key)
			}
			return next.Handle(ctx)
		})
	}
}
