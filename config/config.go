package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/hyperdatalab/gateway/internal/forwarder"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// BackendURLEnv is the environment variable holding the tunnel URL of the backend.
const BackendURLEnv = "BACKEND_URL"

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type UpstreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Prefix  string `mapstructure:"prefix"`
}

type ProxyConfig struct {
	ResponseMode string `mapstructure:"response_mode"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
}

type CircuitBreakerConfig struct {
	Threshold    int    `mapstructure:"threshold"`
	ResetTimeout string `mapstructure:"reset_timeout"`
}

type ClientConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	MaxRetries int    `mapstructure:"max_retries"`
	Timeout    string `mapstructure:"timeout"`
	RetryDelay string `mapstructure:"retry_delay"`
	HealthPath string `mapstructure:"health_path"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Upstream       UpstreamConfig       `mapstructure:"upstream"`
	Proxy          ProxyConfig          `mapstructure:"proxy"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Client         ClientConfig         `mapstructure:"client"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// Load reads configuration from an optional YAML file and the environment.
// An empty configFile searches ./config and the working directory for config.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.prefix", "/api/v1")
	v.SetDefault("proxy.response_mode", forwarder.ModeJSONEnvelope)
	v.SetDefault("health_check.interval", "30s")
	v.SetDefault("circuit_breaker.threshold", 0)
	v.SetDefault("circuit_breaker.reset_timeout", "30s")
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.retry_delay", "1s")
	v.SetDefault("client.health_path", "/api/v1/health")
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("logging.level", LogLevelInfo)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("upstream.base_url", BackendURLEnv, "UPSTREAM_BASE_URL"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Debug("config file not found, using defaults and environment variables")
	} else {
		slog.Debug("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.Upstream.BaseURL = strings.TrimSpace(cfg.Upstream.BaseURL)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every section. The upstream base URL may be empty: a missing
// backend is reported per request by the forwarder, not at startup.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server, validation.By(func(value interface{}) error {
			sc, ok := value.(ServerConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a ServerConfig")
			}
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.Environment,
					validation.Required,
					validation.In(EnvDev, EnvStaging, EnvProd),
				),
				validation.Field(&sc.Address,
					validation.Required,
					validation.By(validateHostPort),
				),
			)
		})),
		validation.Field(&c.Logging, validation.By(func(value interface{}) error {
			lc, ok := value.(LoggingConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
			}
			return validation.ValidateStruct(&lc,
				validation.Field(&lc.Level,
					validation.Required,
					validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
				),
			)
		})),
		validation.Field(&c.Upstream, validation.By(func(value interface{}) error {
			uc, ok := value.(UpstreamConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
			}
			return validation.ValidateStruct(&uc,
				validation.Field(&uc.BaseURL, validation.By(validateOptionalURL)),
				validation.Field(&uc.Prefix,
					validation.Required,
					validation.By(validatePrefix),
				),
			)
		})),
		validation.Field(&c.Proxy, validation.By(func(value interface{}) error {
			pc, ok := value.(ProxyConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
			}
			return validation.ValidateStruct(&pc,
				validation.Field(&pc.ResponseMode,
					validation.Required,
					validation.In(forwarder.ModeJSONEnvelope, forwarder.ModePassthrough),
				),
			)
		})),
		validation.Field(&c.HealthCheck, validation.By(func(value interface{}) error {
			hc, ok := value.(HealthCheckConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
			}
			return validation.ValidateStruct(&hc,
				validation.Field(&hc.Interval,
					validation.Required,
					validation.By(validateDuration),
				),
			)
		})),
		validation.Field(&c.CircuitBreaker, validation.By(func(value interface{}) error {
			cb, ok := value.(CircuitBreakerConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
			}
			return validation.ValidateStruct(&cb,
				validation.Field(&cb.Threshold, validation.Min(0)),
				validation.Field(&cb.ResetTimeout,
					validation.Required,
					validation.By(validateDuration),
				),
			)
		})),
		validation.Field(&c.Client, validation.By(func(value interface{}) error {
			cc, ok := value.(ClientConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a ClientConfig")
			}
			return validation.ValidateStruct(&cc,
				validation.Field(&cc.BaseURL,
					validation.Required,
					validation.By(validateOptionalURL),
				),
				validation.Field(&cc.MaxRetries, validation.Min(0), validation.Max(10)),
				validation.Field(&cc.Timeout,
					validation.Required,
					validation.By(validateDuration),
				),
				validation.Field(&cc.RetryDelay,
					validation.Required,
					validation.By(validateDuration),
				),
				validation.Field(&cc.HealthPath,
					validation.Required,
					validation.By(validatePrefix),
				),
			)
		})),
		validation.Field(&c.Metrics, validation.By(func(value interface{}) error {
			mc, ok := value.(MetricsConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
			}
			return validation.ValidateStruct(&mc,
				validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
			)
		})),
	)
}

// HealthCheckInterval returns the parsed probe interval. Zero disables probing.
func (c *Config) HealthCheckInterval() time.Duration {
	d, _ := time.ParseDuration(c.HealthCheck.Interval)
	return d
}

func (c *Config) CircuitBreakerResetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.CircuitBreaker.ResetTimeout)
	return d
}

func (c *Config) ClientTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Client.Timeout)
	return d
}

func (c *Config) ClientRetryDelay() time.Duration {
	d, _ := time.ParseDuration(c.Client.RetryDelay)
	return d
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validateOptionalURL(value interface{}) error {
	rawURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if rawURL == "" {
		return nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validatePrefix(value interface{}) error {
	prefix, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/") {
		return validation.NewError("validation_invalid_prefix", "must start with / and not end with /")
	}

	return nil
}
