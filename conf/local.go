package conf

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/config"
	"github.com/txix-open/isp-kit/log"
	"github.com/txix-open/isp-kit/validator"
	"go.uber.org/zap/zapcore"
)

const (
	AuthModeNone   = "none"
	AuthModeToken  = "token"
	AuthModeApiKey = "apiKey"

	configPathEnv     = "APP_CONFIG_PATH"
	configEnvPrefix   = "APP_CONFIG_ENV_PREFIX"
	defaultConfigPath = "conf/config.yml"
)

type Local struct {
	Http      Http
	Logging   Logging
	Gate      Gate
	Cors      Cors
	RateLimit RateLimit
	Auth      Auth
	Upstream  Upstream
	Redis     *Redis
}

type Http struct {
	Address                string
	RequestLogEnable       bool
	ForwardClientRequestId bool
}

type Logging struct {
	LogLevel string `validate:"omitempty,oneof=debug info warn error fatal"`
}

type Gate struct {
	AllowedReferrerDomains []string
	TrustRemoteAddr        bool
}

type Cors struct {
	AllowedOrigins []string
}

type RateLimit struct {
	WindowInSec        int `validate:"min=0,max=86400"`
	MaxRequests        int `validate:"min=0,max=1000000"`
	IdleWindows        int
	SweepIntervalInSec int
	Shards             int `validate:"min=0,max=4096"`
}

type Auth struct {
	Mode         string `validate:"omitempty,oneof=none token apiKey"`
	Secret       string
	ApiKeyHeader string
	Token        TokenAuth
}

type TokenAuth struct {
	BucketWidthInSec int
	Buckets          int
}

type Upstream struct {
	Url           string
	RequiredHost  string
	TimeoutInSec  int
	MaxRps        float64 `validate:"min=0"`
	Burst         int
	CacheTtlInSec int
}

type Redis struct {
	Address  string
	Username string
	Password string
	Db       int
	Prefix   string
	TtlInSec int
	Sentinel *RedisSentinel
}

type RedisSentinel struct {
	Addresses  []string `validate:"required"`
	MasterName string   `validate:"required"`
	Username   string
	Password   string
}

func Default() Local {
	return Local{
		Http: Http{
			Address: ":8080",
		},
		Logging: Logging{
			LogLevel: "info",
		},
		RateLimit: RateLimit{
			WindowInSec:        60,
			MaxRequests:        10,
			IdleWindows:        5,
			SweepIntervalInSec: 300,
			Shards:             32,
		},
		Auth: Auth{
			Mode:         AuthModeNone,
			ApiKeyHeader: "x-api-key",
			Token: TokenAuth{
				BucketWidthInSec: 60,
				Buckets:          5,
			},
		},
		Upstream: Upstream{
			Url:          "https://tikwm.com/api/",
			RequiredHost: "tiktok.com",
			TimeoutInSec: 30,
			Burst:        1,
		},
	}
}

func (l Local) Validate() error {
	if l.Auth.Mode != "" && l.Auth.Mode != AuthModeNone && l.Auth.Secret == "" {
		return errors.Errorf("auth secret is required for mode %s", l.Auth.Mode)
	}
	if l.Redis != nil && l.Redis.Sentinel == nil && l.Redis.Address == "" {
		return errors.New("invalid redis config. sentinel or address are required")
	}
	if l.Upstream.MaxRps < 0 {
		return errors.New("upstream maxRps must not be negative")
	}
	_, err := l.Logging.Level()
	if err != nil {
		return err
	}
	return nil
}

// Options are the config sources of the service: the yaml file from APP_CONFIG_PATH
// (or conf/config.yml when it exists) overridden by environment variables.
func Options() []config.Option {
	opts := []config.Option{
		config.WithValidator(validator.Default),
		config.WithEnvPrefix(os.Getenv(configEnvPrefix)),
	}
	path := os.Getenv(configPathEnv)
	if path == "" {
		_, err := os.Stat(defaultConfigPath)
		if err == nil {
			path = defaultConfigPath
		}
	}
	if path != "" {
		opts = append(opts, config.WithExtraSource(config.NewYamlConfig(path)))
	}
	return opts
}

func (l Logging) Level() (log.Level, error) {
	if l.LogLevel == "" {
		return log.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(l.LogLevel)
	if err != nil {
		return log.InfoLevel, errors.WithMessagef(err, "parse log level %s", l.LogLevel)
	}
	return level, nil
}

func (l Local) Window() time.Duration {
	return seconds(l.RateLimit.WindowInSec)
}

func (l Local) SweepInterval() time.Duration {
	return seconds(l.RateLimit.SweepIntervalInSec)
}

func (l Local) UpstreamTimeout() time.Duration {
	return seconds(l.Upstream.TimeoutInSec)
}

func (l Local) CacheTtl() time.Duration {
	return seconds(l.Upstream.CacheTtlInSec)
}

func (l Local) BucketWidth() time.Duration {
	return seconds(l.Auth.Token.BucketWidthInSec)
}

func (l Local) RedisTtl() time.Duration {
	if l.Redis == nil || l.Redis.TtlInSec <= 0 {
		return 24 * time.Hour
	}
	return seconds(l.Redis.TtlInSec)
}

func (l Local) RedisPrefix() string {
	if l.Redis == nil || l.Redis.Prefix == "" {
		return "download_gate"
	}
	return l.Redis.Prefix
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
