// Package config loads the bangumi-getter configuration from an optional YAML
// file overlaid by environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/oidbt/bangumi-ani-getter/pkg/client"
	"github.com/oidbt/bangumi-ani-getter/pkg/logging"
	"github.com/oidbt/bangumi-ani-getter/pkg/poller"
	"github.com/oidbt/bangumi-ani-getter/pkg/store"
)

// Config is the full process configuration.
type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	HTTP    HTTPConfig    `yaml:"http"`
	Poller  PollerConfig  `yaml:"poller"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
}

// CatalogConfig describes the remote listing being polled.
type CatalogConfig struct {
	Endpoint    string `yaml:"endpoint" env:"BANGUMI_ENDPOINT" env-default:"https://api.bgm.tv/v0/subjects" validate:"required,url"`
	UserAgent   string `yaml:"user_agent" env:"BANGUMI_USER_AGENT" env-default:"oidbt-bangumi-ani-getter/0.1.0 (https://github.com/oidbt/bangumi-ani-getter)" validate:"required"`
	SubjectType int    `yaml:"subject_type" env:"BANGUMI_SUBJECT_TYPE" env-default:"2" validate:"gt=0"`
}

// HTTPConfig tunes the outbound transport.
type HTTPConfig struct {
	// ProxyURL accepts http://, https:// and socks5:// URLs.
	ProxyURL string        `yaml:"proxy_url" env:"BANGUMI_PROXY_URL" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" env:"BANGUMI_HTTP_TIMEOUT" env-default:"10s" validate:"gt=0"`
}

// PollerConfig holds the two loop speeds and the optional miss backoff.
type PollerConfig struct {
	FastInterval time.Duration `yaml:"fast_interval" env:"POLLER_FAST_INTERVAL" env-default:"1s" validate:"gt=0"`
	SlowInterval time.Duration `yaml:"slow_interval" env:"POLLER_SLOW_INTERVAL" env-default:"10s" validate:"gt=0"`

	// MissBackoff is off unless explicitly enabled.
	MissBackoff           bool          `yaml:"miss_backoff" env:"POLLER_MISS_BACKOFF" env-default:"false"`
	MissBackoffInitial    time.Duration `yaml:"miss_backoff_initial" env:"POLLER_MISS_BACKOFF_INITIAL" env-default:"1s" validate:"gt=0"`
	MissBackoffMax        time.Duration `yaml:"miss_backoff_max" env:"POLLER_MISS_BACKOFF_MAX" env-default:"30s" validate:"gt=0"`
	MissBackoffMultiplier float64       `yaml:"miss_backoff_multiplier" env:"POLLER_MISS_BACKOFF_MULTIPLIER" env-default:"2" validate:"gte=1"`
}

// StorageConfig selects the backend records are upserted into.
type StorageConfig struct {
	Backend       string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"sqlite" validate:"oneof=sqlite redis"`
	SQLitePath    string `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:"OIDBT_SQLite"`
	RedisAddr     string `yaml:"redis_addr" env:"STORAGE_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"STORAGE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"STORAGE_REDIS_DB" env-default:"0" validate:"gte=0"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace detail debug info warn error"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"false"`
}

// ServerConfig is the diagnostics HTTP server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" env:"SERVER_ENABLED" env-default:"true"`
	Addr    string `yaml:"addr" env:"SERVER_ADDR" env-default:":8080" validate:"required_if=Enabled true"`
}

// Load reads the configuration. With an empty path only the environment and
// the defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends, non-positive intervals and malformed URLs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Storage.Backend == store.BackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("invalid configuration: storage.sqlite_path is required for the sqlite backend")
	}
	if c.Storage.Backend == store.BackendRedis && c.Storage.RedisAddr == "" {
		return fmt.Errorf("invalid configuration: storage.redis_addr is required for the redis backend")
	}
	return nil
}

// ClientConfig returns the fetcher configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Catalog.UserAgent)
	cfg.Endpoint = c.Catalog.Endpoint
	cfg.SubjectType = c.Catalog.SubjectType
	cfg.Timeout = c.HTTP.Timeout
	cfg.ProxyURL = c.HTTP.ProxyURL
	return cfg
}

// PollerConfig returns the loop configuration.
func (c *Config) PollerConfig() poller.Config {
	cfg := poller.DefaultConfig()
	cfg.FastInterval = c.Poller.FastInterval
	cfg.SlowInterval = c.Poller.SlowInterval
	if c.Poller.MissBackoff {
		cfg.MissBackoff = poller.MissBackoff{
			Initial:    c.Poller.MissBackoffInitial,
			Max:        c.Poller.MissBackoffMax,
			Multiplier: c.Poller.MissBackoffMultiplier,
		}
	}
	return cfg
}

// StoreConfig returns the storage configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:       c.Storage.Backend,
		SQLitePath:    c.Storage.SQLitePath,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
	}
}

// LoggingConfig returns the logging configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
