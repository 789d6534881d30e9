package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CrawlConfig configures traversal and the HTTP fetcher.
type CrawlConfig struct {
	Retailers           []string `yaml:"retailers" mapstructure:"retailers"`
	RulesFile           string   `yaml:"rules_file" mapstructure:"rules_file"`
	MaxConcurrency      int      `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxPages            int      `yaml:"max_pages" mapstructure:"max_pages"`
	ExcludePaths        []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	TimeoutSecs         int      `yaml:"timeout_secs" mapstructure:"timeout_secs"` // whole run; 0 = none
	FetchTimeoutSecs    int      `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	UserAgent           string   `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond   float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst               int      `yaml:"burst" mapstructure:"burst"`
	MaxRetries          int      `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMs      int      `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RespectRobots       bool     `yaml:"respect_robots" mapstructure:"respect_robots"`
	BreakerThreshold    int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int      `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	MaxFailureRate      float64  `yaml:"max_failure_rate" mapstructure:"max_failure_rate"`
}

// Timeout returns the run-level timeout, zero when unset.
func (c CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures crawl health alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"` // share of degraded runs
	FetchErrorThreshold  float64 `yaml:"fetch_error_threshold" mapstructure:"fetch_error_threshold"`   // share of failed page fetches
	MinRuns              int     `yaml:"min_runs" mapstructure:"min_runs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and SHELF_* environment
// variables, later sources winning.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv can bind it on Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "shelf.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("crawl.retailers", []string{})
	v.SetDefault("crawl.rules_file", "")
	v.SetDefault("crawl.max_concurrency", 8)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.exclude_paths", []string{"/cart/*", "/checkout/*", "/account/*", "/login"})
	v.SetDefault("crawl.timeout_secs", 0)
	v.SetDefault("crawl.fetch_timeout_secs", 30)
	v.SetDefault("crawl.user_agent", "shelf-crawler/1.0")
	v.SetDefault("crawl.requests_per_second", 2.0)
	v.SetDefault("crawl.burst", 1)
	v.SetDefault("crawl.max_retries", 2)
	v.SetDefault("crawl.retry_backoff_ms", 500)
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.breaker_threshold", 5)
	v.SetDefault("crawl.breaker_cooldown_secs", 30)
	v.SetDefault("crawl.max_failure_rate", 0.5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.fetch_error_threshold", 0.3)
	v.SetDefault("monitoring.min_runs", 3)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks the settings a command mode depends on: "crawl",
// "serve", "monitor" or "store" (commands that only read or migrate the
// store).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	switch mode {
	case "crawl":
		if c.Crawl.MaxConcurrency < 1 || c.Crawl.MaxConcurrency > 256 {
			errs = append(errs, "crawl.max_concurrency must be between 1 and 256")
		}
		if c.Crawl.MaxFailureRate < 0 || c.Crawl.MaxFailureRate > 1 {
			errs = append(errs, "crawl.max_failure_rate must be between 0 and 1")
		}
		if c.Crawl.RequestsPerSecond <= 0 {
			errs = append(errs, "crawl.requests_per_second must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.Enabled && c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
	case "monitor":
		if c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
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
