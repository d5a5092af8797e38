package repository

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"download-gate-service/domain"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/http/httpcli"
)

const (
	upstreamUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	upstreamReferer   = "https://tikwm.com/"
)

// Extractor calls the third-party extraction API. Exactly one attempt per call.
// Query parameters of the configured url are sent with every call; url and hd win on conflict.
type Extractor struct {
	cli     *httpcli.Client
	url     string
	query   url.Values
	timeout time.Duration
}

func NewExtractor(cli *httpcli.Client, rawUrl string, timeout time.Duration) Extractor {
	base, query := splitQuery(rawUrl)
	return Extractor{
		cli:     cli,
		url:     base,
		query:   query,
		timeout: timeout,
	}
}

func (r Extractor) Extract(ctx context.Context, targetUrl string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params := make(map[string]any, len(r.query)+2)
	for key, values := range r.query {
		params[key] = values[0]
	}
	params["url"] = targetUrl
	params["hd"] = 1

	body, statusCode, err := r.cli.Get(r.url).
		QueryParams(params).
		Header("User-Agent", upstreamUserAgent).
		Header("Accept", "application/json").
		Header("Referer", upstreamReferer).
		Timeout(r.timeout).
		DoAndReadBody(ctx)
	if err != nil {
		return nil, classifyUpstreamError(ctx, err)
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		upstreamErr := domain.NewUpstreamError(domain.UpstreamStatus, nil)
		upstreamErr.StatusCode = statusCode
		return nil, upstreamErr
	}

	return body, nil
}

func splitQuery(rawUrl string) (string, url.Values) {
	parsed, err := url.Parse(rawUrl)
	if err != nil || parsed.RawQuery == "" {
		return rawUrl, nil
	}
	query := parsed.Query()
	parsed.RawQuery = ""
	return parsed.String(), query
}

func classifyUpstreamError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewUpstreamError(domain.UpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewUpstreamError(domain.UpstreamTimeout, err)
	}
	return domain.NewUpstreamError(domain.UpstreamNetwork, err)
}
