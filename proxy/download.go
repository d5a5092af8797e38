package proxy

import (
	"context"
	"net/http"

	"download-gate-service/request"

	"github.com/pkg/errors"
)

type DownloadService interface {
	FetchDownload(ctx context.Context, targetUrl string) ([]byte, error)
}

type Download struct {
	service DownloadService
}

func NewDownload(service DownloadService) Download {
	return Download{
		service: service,
	}
}

// Handle writes the extraction API response as is.
func (p Download) Handle(ctx *request.Context) error {
	data, err := p.service.FetchDownload(ctx.Context(), ctx.Query("url"))
	if err != nil {
		return errors.WithMessage(err, "download: fetch")
	}

	w := ctx.ResponseWriter()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	if err != nil {
		return errors.WithMessage(err, "download: write response")
	}
	return nil
}
