package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "standalone", cfg.Mode)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "cluster" },
			want:   "unknown mode",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			want:   "unknown log_level",
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			want:   "port 70000 out of range",
		},
		{
			name: "server mode without redis addr",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Redis.Addr = ""
			},
			want: "redis: addr must not be empty",
		},
		{
			name: "s3 enabled without bucket",
			mutate: func(c *Config) {
				c.S3.Enabled = true
				c.S3.Bucket = ""
			},
			want: "s3: bucket must not be empty",
		},
		{
			name: "non-positive settlement concurrency",
			mutate: func(c *Config) {
				c.Exchange.SettlementConcurrency = 0
			},
			want: "settlement_concurrency must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateServerModeWithDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	cfg.Postgres.DSN = "postgres://u:p@db:5432/bettit"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	cfg.Postgres.User = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
mode = "server"
log_level = "debug"

[server]
port = 9090
cors_origins = ["https://bettit.example"]

[postgres]
dsn = "postgres://u:p@db:5432/bettit"

[exchange]
trade_lock_ttl = "3s"
settlement_concurrency = 4
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://bettit.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 3*time.Second, cfg.Exchange.TradeLockTTL.Duration)
	assert.Equal(t, 4, cfg.Exchange.SettlementConcurrency)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Exchange.TradeMaxRetries)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"warn\"\n"), 0o600))

	t.Setenv("BETTIT_LOG_LEVEL", "error")
	t.Setenv("BETTIT_SERVER_PORT", "9999")
	t.Setenv("BETTIT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BETTIT_EXCHANGE_TRADE_LOCK_TTL", "90s")
	t.Setenv("BETTIT_S3_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 90*time.Second, cfg.Exchange.TradeLockTTL.Duration)
	assert.True(t, cfg.S3.Enabled)
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	t.Setenv("BETTIT_SERVER_PORT", "not-a-number")
	t.Setenv("BETTIT_EXCHANGE_TRADE_LOCK_TTL", "soon")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
	assert.Equal(t, Defaults().Exchange.TradeLockTTL.Duration, cfg.Exchange.TradeLockTTL.Duration)
}
