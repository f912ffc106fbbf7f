package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oidbt/bangumi-ani-getter/pkg/client"
	"github.com/oidbt/bangumi-ani-getter/pkg/logging"
	"github.com/oidbt/bangumi-ani-getter/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, client.DefaultEndpoint, cfg.Catalog.Endpoint)
	assert.Equal(t, client.SubjectTypeAnime, cfg.Catalog.SubjectType)
	assert.NotEmpty(t, cfg.Catalog.UserAgent)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 1*time.Second, cfg.Poller.FastInterval)
	assert.Equal(t, 10*time.Second, cfg.Poller.SlowInterval)
	assert.False(t, cfg.Poller.MissBackoff)
	assert.Equal(t, store.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "OIDBT_SQLite", cfg.Storage.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	assert.False(t, cfg.PollerConfig().MissBackoff.Enabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("STORAGE_REDIS_ADDR", "cache:6379")
	t.Setenv("POLLER_SLOW_INTERVAL", "1m")
	t.Setenv("BANGUMI_PROXY_URL", "socks5://127.0.0.1:1080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, time.Minute, cfg.Poller.SlowInterval)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.ClientConfig().ProxyURL)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "test-agent/1.0", cfg.Catalog.UserAgent)
	assert.Equal(t, client.DefaultEndpoint, cfg.Catalog.Endpoint)

	clientCfg := cfg.ClientConfig()
	assert.Equal(t, "test-agent/1.0", clientCfg.UserAgent)
	assert.Equal(t, 5*time.Second, clientCfg.Timeout)
	assert.Equal(t, "socks5://127.0.0.1:1080", clientCfg.ProxyURL)
	assert.Equal(t, client.PageSize, clientCfg.PageSize)

	pollerCfg := cfg.PollerConfig()
	assert.Equal(t, 2*time.Second, pollerCfg.FastInterval)
	assert.Equal(t, 30*time.Second, pollerCfg.SlowInterval)
	assert.True(t, pollerCfg.MissBackoff.Enabled())
	assert.Equal(t, 500*time.Millisecond, pollerCfg.MissBackoff.Initial)
	assert.Equal(t, 30*time.Second, pollerCfg.MissBackoff.Max)

	storeCfg := cfg.StoreConfig()
	assert.Equal(t, store.BackendRedis, storeCfg.Backend)
	assert.Equal(t, "redis:6379", storeCfg.RedisAddr)
	assert.Equal(t, 3, storeCfg.RedisDB)

	logCfg := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.True(t, logCfg.Pretty)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "postgres" }, wantErr: true},
		{name: "zero fast interval", mutate: func(c *Config) { c.Poller.FastInterval = 0 }, wantErr: true},
		{name: "negative slow interval", mutate: func(c *Config) { c.Poller.SlowInterval = -time.Second }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTP.Timeout = 0 }, wantErr: true},
		{name: "empty user agent", mutate: func(c *Config) { c.Catalog.UserAgent = "" }, wantErr: true},
		{name: "bad endpoint", mutate: func(c *Config) { c.Catalog.Endpoint = "not a url" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: true},
		{name: "detail log level", mutate: func(c *Config) { c.Log.Level = "detail" }},
		{name: "empty sqlite path", mutate: func(c *Config) { c.Storage.SQLitePath = "" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Storage.Backend = "redis"
			c.Storage.RedisAddr = ""
		}, wantErr: true},
		{name: "server disabled without addr", mutate: func(c *Config) {
			c.Server.Enabled = false
			c.Server.Addr = ""
		}},
		{name: "server enabled without addr", mutate: func(c *Config) { c.Server.Addr = "" }, wantErr: true},
		{name: "zero backoff max", mutate: func(c *Config) {
			c.Poller.MissBackoff = true
			c.Poller.MissBackoffMax = 0
		}, wantErr: true},
		{name: "zero backoff initial", mutate: func(c *Config) { c.Poller.MissBackoffInitial = 0 }, wantErr: true},
		{name: "backoff multiplier below one", mutate: func(c *Config) { c.Poller.MissBackoffMultiplier = 0.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
