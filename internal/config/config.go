package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Policy     PolicyConfig     `yaml:"policy" mapstructure:"policy"`
	Tanda      TandaConfig      `yaml:"tanda" mapstructure:"tanda"`
	Context    ContextConfig    `yaml:"context" mapstructure:"context"`
	Guard      GuardConfig      `yaml:"guard" mapstructure:"guard"`
	ConfigSvc  ConfigSvcConfig  `yaml:"configsvc" mapstructure:"configsvc"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects where the flow context session and the tanda
// validation history live.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, redis, memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	RedisURL    string `yaml:"redis_url" mapstructure:"redis_url"`
	SessionKey  string `yaml:"session_key" mapstructure:"session_key"`
}

// PolicyConfig points at the policy sources.
type PolicyConfig struct {
	File            string `yaml:"file" mapstructure:"file"`
	Watch           bool   `yaml:"watch" mapstructure:"watch"`
	RemoteNamespace string `yaml:"remote_namespace" mapstructure:"remote_namespace"`
	RemotePath      string `yaml:"remote_path" mapstructure:"remote_path"`
}

// TandaConfig configures the tanda validation service and how hard we try
// before falling back to local rules.
type TandaConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Token            string  `yaml:"token" mapstructure:"token"`
	TimeoutMs        int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns TimeoutMs as a duration.
func (c TandaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ContextConfig tunes the flow context store.
type ContextConfig struct {
	PersistTimeoutMs int `yaml:"persist_timeout_ms" mapstructure:"persist_timeout_ms"`
	DefaultTTLMins   int `yaml:"default_ttl_mins" mapstructure:"default_ttl_mins"`
}

// GuardConfig tunes the eligibility guards.
type GuardConfig struct {
	StaleAfterHours int `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// ConfigSvcConfig holds the remote configuration service endpoint.
type ConfigSvcConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures fallback-rate alerting.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	ReviewRateThreshold   float64 `yaml:"review_rate_threshold" mapstructure:"review_rate_threshold"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and ONBOARDING_*
// environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// for config.yaml in the working directory; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ONBOARDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "onboarding.db")
	v.SetDefault("store.session_key", "__flow_context_state__")
	v.SetDefault("policy.watch", false)
	v.SetDefault("policy.remote_namespace", "markets/market-policies")
	v.SetDefault("policy.remote_path", "config/market-policies")
	v.SetDefault("tanda.timeout_ms", 6000)
	v.SetDefault("tanda.max_attempts", 1)
	v.SetDefault("tanda.rate_per_sec", 5.0)
	v.SetDefault("tanda.breaker_threshold", 5)
	v.SetDefault("tanda.breaker_reset_secs", 30)
	v.SetDefault("context.persist_timeout_ms", 2000)
	v.SetDefault("context.default_ttl_mins", 0)
	v.SetDefault("guard.stale_after_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.3)
	v.SetDefault("monitoring.review_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var storeDrivers = map[string]bool{"sqlite": true, "postgres": true, "redis": true, "memory": true}

// Validate checks the settings a command mode depends on. mode is "cli" or
// "serve". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.CheckIntervalSecs < 0 {
			add("monitoring.check_interval_secs must be >= 0")
		}
		if c.Monitoring.FallbackRateThreshold < 0 || c.Monitoring.FallbackRateThreshold > 1 {
			add("monitoring.fallback_rate_threshold must be between 0 and 1")
		}
		if c.Monitoring.ReviewRateThreshold < 0 || c.Monitoring.ReviewRateThreshold > 1 {
			add("monitoring.review_rate_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if !storeDrivers[c.Store.Driver] {
		add("store.driver must be one of sqlite, postgres, redis, memory (got %q)", c.Store.Driver)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for driver %s", c.Store.Driver)
		}
	case "redis":
		if c.Store.RedisURL == "" {
			add("store.redis_url is required for driver redis")
		}
	}
	if c.Tanda.TimeoutMs <= 0 {
		add("tanda.timeout_ms must be > 0")
	}
	if c.Tanda.MaxAttempts < 1 || c.Tanda.MaxAttempts > 5 {
		add("tanda.max_attempts must be between 1 and 5")
	}
	if c.Tanda.RatePerSec < 0 {
		add("tanda.rate_per_sec must be >= 0")
	}
	if c.Guard.StaleAfterHours < 0 {
		add("guard.stale_after_hours must be >= 0")
	}
	if c.Policy.Watch && c.Policy.File == "" {
		add("policy.file is required when policy.watch is set")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
