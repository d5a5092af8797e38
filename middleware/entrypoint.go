package middleware

import (
	"net/http"

	"download-gate-service/request"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
)

func Entrypoint(maxReqBodySize int64, endpoint string, next Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(writer, req.Body, maxReqBodySize)
		ctx := request.NewContext(req, writer, endpoint)
		err := next.Handle(ctx)
		if err != nil {
			logger.Error(req.Context(), errors.WithMessage(err, "uncaught error"))
		}
	})
}
