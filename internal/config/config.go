// Package config defines the top-level configuration for the exchange and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BETTIT_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Exchange ExchangeConfig `toml:"exchange"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archive. Leave Enabled false to skip archiving entirely.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ExchangeConfig holds trade and settlement engine parameters.
type ExchangeConfig struct {
	TradeLockTTL          duration `toml:"trade_lock_ttl"`
	TradeLockRetry        duration `toml:"trade_lock_retry"`
	TradeLockAttempts     int      `toml:"trade_lock_attempts"`
	TradeMaxRetries       int      `toml:"trade_max_retries"`
	SettlementLockTTL     duration `toml:"settlement_lock_ttl"`
	SettlementConcurrency int      `toml:"settlement_concurrency"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// validModes are the supported run modes. "server" runs against Postgres and
// Redis; "standalone" runs fully in-process with memory stores.
var validModes = map[string]bool{
	"server":     true,
	"standalone": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config populated with sensible defaults for local
// development.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bettit",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bettit-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Exchange: ExchangeConfig{
			TradeLockTTL:          duration{10 * time.Second},
			TradeLockRetry:        duration{25 * time.Millisecond},
			TradeLockAttempts:     80,
			TradeMaxRetries:       5,
			SettlementLockTTL:     duration{30 * time.Second},
			SettlementConcurrency: 8,
		},
		Mode:     "standalone",
		LogLevel: "info",
	}
}

// Validate checks the configuration for consistency and returns an error
// listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, standalone)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	// Postgres and Redis matter only in server mode; standalone runs
	// entirely in-process.
	if strings.ToLower(c.Mode) == "server" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
			if c.Postgres.User == "" {
				errs = append(errs, "postgres: user must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns <= 0 {
			errs = append(errs, "postgres: pool_max_conns must be positive")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Exchange.TradeLockTTL.Duration <= 0 {
		errs = append(errs, "exchange: trade_lock_ttl must be positive")
	}
	if c.Exchange.SettlementLockTTL.Duration <= 0 {
		errs = append(errs, "exchange: settlement_lock_ttl must be positive")
	}
	if c.Exchange.SettlementConcurrency <= 0 {
		errs = append(errs, "exchange: settlement_concurrency must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
