package service

import (
	"context"
	"strings"
	"time"

	"download-gate-service/domain"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultRequiredHost    = "tiktok.com"

	upstreamResultOk = "ok"
)

type ExtractorRepo interface {
	Extract(ctx context.Context, targetUrl string) ([]byte, error)
}

type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, data []byte, lifeTime time.Duration)
}

type UpstreamObserver interface {
	ObserveUpstream(result string, duration time.Duration)
}

type DownloadConfig struct {
	RequiredHost string
	Timeout      time.Duration
	CacheTtl     time.Duration
}

type Download struct {
	repo     ExtractorRepo
	pacer    *rate.Limiter
	cache    ResponseCache
	observer UpstreamObserver
	cfg      DownloadConfig
}

// NewDownload builds the upstream facade. pacer, cache and observer are optional.
func NewDownload(
	repo ExtractorRepo,
	pacer *rate.Limiter,
	cache ResponseCache,
	observer UpstreamObserver,
	cfg DownloadConfig,
) Download {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultUpstreamTimeout
	}
	if cfg.RequiredHost == "" {
		cfg.RequiredHost = DefaultRequiredHost
	}
	return Download{
		repo:     repo,
		pacer:    pacer,
		cache:    cache,
		observer: observer,
		cfg:      cfg,
	}
}

func (s Download) FetchDownload(ctx context.Context, targetUrl string) ([]byte, error) {
	targetUrl = strings.TrimSpace(targetUrl)
	if targetUrl == "" {
		return nil, domain.ErrUrlRequired
	}
	if !strings.Contains(targetUrl, s.cfg.RequiredHost) {
		return nil, domain.ErrUrlNotAllowed
	}

	if s.cache != nil && s.cfg.CacheTtl > 0 {
		data, ok := s.cache.Get(targetUrl)
		if ok {
			return data, nil
		}
	}

	// the client may go away, the upstream call still finishes or times out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	if s.pacer != nil {
		err := s.pacer.Wait(ctx)
		if err != nil {
			return nil, domain.NewUpstreamError(domain.UpstreamTimeout, errors.WithMessage(err, "wait upstream slot"))
		}
	}

	start := time.Now()
	data, err := s.repo.Extract(ctx, targetUrl)
	s.observe(err, time.Since(start))
	if err != nil {
		return nil, errors.WithMessage(err, "extract")
	}

	if s.cache != nil && s.cfg.CacheTtl > 0 {
		s.cache.Set(targetUrl, data, s.cfg.CacheTtl)
	}

	return data, nil
}

func (s Download) observe(err error, duration time.Duration) {
	if s.observer == nil {
		return
	}
	result := upstreamResultOk
	upstreamErr := domain.UpstreamError{}
	if errors.As(err, &upstreamErr) {
		result = strings.ToLower(string(upstreamErr.Cause))
	} else if err != nil {
		result = "error"
	}
	s.observer.ObserveUpstream(result, duration)
}
