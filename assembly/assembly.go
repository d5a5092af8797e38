package assembly

import (
	"context"
	"net/http"
	"time"

	"download-gate-service/conf"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/app"
	isphttp "github.com/txix-open/isp-kit/http"
	"github.com/txix-open/isp-kit/http/httpcli"
	"github.com/txix-open/isp-kit/log"
)

const (
	shutdownTimeout = 15 * time.Second
)

type Assembly struct {
	logger   *log.Adapter
	config   conf.Local
	server   *isphttp.Server
	redisCli redis.UniversalClient
	gate     *Config
}

func New(application *app.Application) (*Assembly, error) {
	logger := application.Logger()

	localConfig := conf.Default()
	err := application.Config().Read(&localConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "read local config")
	}
	err = localConfig.Validate()
	if err != nil {
		return nil, errors.WithMessage(err, "invalid local config")
	}
	level, err := localConfig.Logging.Level()
	if err != nil {
		return nil, errors.WithMessage(err, "invalid local config")
	}
	logger.SetLevel(level)

	var redisCli redis.UniversalClient
	if localConfig.Redis != nil {
		redisCli = redisClient(*localConfig.Redis)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	locator := NewLocator(logger, httpcli.New(), registry, time.Now)
	gate, err := locator.Config(localConfig, redisCli)
	if err != nil {
		return nil, errors.WithMessage(err, "locator config")
	}

	server := isphttp.NewServer(logger)
	server.Upgrade(gate.Handler)

	return &Assembly{
		logger:   logger,
		config:   localConfig,
		redisCli: redisCli,
		gate:     gate,
		server:   server,
	}, nil
}

func (a *Assembly) Handler() http.Handler {
	return a.gate.Handler
}

// BackgroundRunners are the tasks living next to the request handler: limiter sweep and stats writer.
func (a *Assembly) BackgroundRunners() []app.Runner {
	return []app.Runner{
		a.gate.Sweeper,
		a.gate.Recorder,
	}
}

func (a *Assembly) Runners() []app.Runner {
	return append(a.BackgroundRunners(), app.RunnerFunc(func(ctx context.Context) error {
		a.logger.Info(ctx, "http server started", log.String("address", a.config.Http.Address))
		err := a.server.ListenAndServe(a.config.Http.Address)
		if err != nil {
			return errors.WithMessagef(err, "run http server on %s", a.config.Http.Address)
		}
		return nil
	}))
}

func (a *Assembly) Closers() []app.Closer {
	return []app.Closer{
		app.CloserFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.server.Shutdown(ctx)
		}),
		a.gate.Sweeper,
		a.gate.Recorder,
		app.CloserFunc(func() error {
			if a.redisCli != nil {
				return a.redisCli.Close()
			}
			return nil
		}),
	}
}

func redisClient(config conf.Redis) redis.UniversalClient {
	if config.Sentinel != nil {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       config.Sentinel.MasterName,
			SentinelAddrs:    config.Sentinel.Addresses,
			SentinelUsername: config.Sentinel.Username,
			SentinelPassword: config.Sentinel.Password,
			Username:         config.Username,
			Password:         config.Password,
			DB:               config.Db,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Username: config.Username,
		Password: config.Password,
		DB:       config.Db,
	})
}
