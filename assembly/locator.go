package assembly

import (
	"net/http"
	"time"

	"download-gate-service/cache"
	"download-gate-service/conf"
	"download-gate-service/limiter"
	"download-gate-service/middleware"
	"download-gate-service/proxy"
	"download-gate-service/repository"
	"download-gate-service/service"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/http/httpcli"
	"github.com/txix-open/isp-kit/log"
	"golang.org/x/time/rate"
)

const (
	maxRequestBodySize = 64 * 1024
)

type Locator struct {
	logger   log.Logger
	httpCli  *httpcli.Client
	registry *prometheus.Registry
	clock    func() time.Time
}

func NewLocator(logger log.Logger, httpCli *httpcli.Client, registry *prometheus.Registry, clock func() time.Time) Locator {
	if clock == nil {
		clock = time.Now
	}
	return Locator{
		logger:   logger,
		httpCli:  httpCli,
		registry: registry,
		clock:    clock,
	}
}

type Config struct {
	Handler  http.Handler
	Limiter  *limiter.Limiter
	Sweeper  limiter.Sweeper
	Recorder service.AdmissionRecorder
}

// nolint:funlen
func (l Locator) Config(cfg conf.Local, redisCli redis.UniversalClient) (*Config, error) {
	metrics, err := service.NewMetrics(l.registry)
	if err != nil {
		return nil, errors.WithMessage(err, "new metrics")
	}

	var statsRepo service.AdmissionStatsRepo
	if redisCli != nil {
		statsRepo = repository.NewAdmissionStats(redisCli, cfg.RedisPrefix(), cfg.RedisTtl())
	}
	recorder := service.NewAdmissionRecorder(metrics, statsRepo, l.logger)

	rateLimiter := limiter.New(limiter.Config{
		Window:      cfg.Window(),
		MaxRequests: cfg.RateLimit.MaxRequests,
		IdleWindows: cfg.RateLimit.IdleWindows,
		Shards:      cfg.RateLimit.Shards,
	})
	responseCache := cache.New(l.clock)
	sweeper := limiter.NewSweeper(cfg.SweepInterval(), l.clock, l.logger, rateLimiter, responseCache)

	codec := service.NewTokenCodec(cfg.Auth.Secret, cfg.BucketWidth(), cfg.Auth.Token.Buckets)
	referrer := service.ReferrerStage(cfg.Gate.AllowedReferrerDomains)
	rateStage := service.RateStage(rateLimiter)
	downloadStages := []service.Stage{referrer, rateStage}
	apiKeyHeader := ""
	switch cfg.Auth.Mode {
	case conf.AuthModeToken:
		downloadStages = append(downloadStages, service.TokenStage(codec))
	case conf.AuthModeApiKey:
		apiKeyHeader = cfg.Auth.ApiKeyHeader
		downloadStages = append(downloadStages, service.ApiKeyStage(cfg.Auth.Secret))
	case conf.AuthModeNone, "":
	default:
		return nil, errors.Errorf("unexpected auth mode: %s", cfg.Auth.Mode)
	}
	downloadGate := service.NewGate(l.clock, downloadStages...)

	var pacer *rate.Limiter
	if cfg.Upstream.MaxRps > 0 {
		burst := cfg.Upstream.Burst
		if burst <= 0 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(cfg.Upstream.MaxRps), burst)
	}
	extractor := repository.NewExtractor(l.httpCli, cfg.Upstream.Url, cfg.UpstreamTimeout())
	download := service.NewDownload(extractor, pacer, responseCache, metrics, service.DownloadConfig{
		RequiredHost: cfg.Upstream.RequiredHost,
		Timeout:      cfg.UpstreamTimeout(),
		CacheTtl:     cfg.CacheTtl(),
	})

	allowedHeaders := []string{"Content-Type", middleware.ClientTokenHeader}
	if cfg.Auth.ApiKeyHeader != "" {
		allowedHeaders = append(allowedHeaders, cfg.Auth.ApiKeyHeader)
	}
	common := []middleware.Middleware{
		middleware.RequestId(cfg.Http.ForwardClientRequestId),
		middleware.ClientKey(cfg.Gate.TrustRemoteAddr),
		middleware.Logger(l.logger, cfg.Http.RequestLogEnable),
		middleware.ErrorHandler(l.logger),
		middleware.Cors(cfg.Cors.AllowedOrigins, allowedHeaders),
		middleware.OnlyGet(),
	}

	router := mux.NewRouter()
	router.Handle("/tiktok", l.entrypoint("/tiktok", proxy.NewDownload(download),
		append(common, middleware.Admission(downloadGate, recorder, apiKeyHeader))...,
	))
	if cfg.Auth.Mode == conf.AuthModeToken {
		tokenGate := service.NewGate(l.clock, referrer, rateStage)
		router.Handle("/token", l.entrypoint("/token", proxy.NewToken(codec, l.clock),
			append(common, middleware.Admission(tokenGate, recorder, ""))...,
		))
	}
	router.Handle("/health", l.entrypoint("/health", middleware.HandlerFunc(proxy.Health),
		middleware.RequestId(cfg.Http.ForwardClientRequestId),
		middleware.ErrorHandler(l.logger),
		middleware.OnlyGet(),
	))
	router.Handle("/metrics", promhttp.HandlerFor(l.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Config{
		Handler:  router,
		Limiter:  rateLimiter,
		Sweeper:  sweeper,
		Recorder: recorder,
	}, nil
}

func (l Locator) entrypoint(endpoint string, root middleware.Handler, middlewares ...middleware.Middleware) http.Handler {
	return middleware.Entrypoint(maxRequestBodySize, endpoint, middleware.Chain(root, middlewares...), l.logger)
}
