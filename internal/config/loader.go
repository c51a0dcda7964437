package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETTIT_* environment variable overrides, and
// returns the final Config. A missing file is not an error; defaults plus
// environment overrides apply. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETTIT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "BETTIT_MODE")
	setStr(&cfg.LogLevel, "BETTIT_LOG_LEVEL")

	setInt(&cfg.Server.Port, "BETTIT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BETTIT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BETTIT_SERVER_API_KEY")

	setStr(&cfg.Postgres.DSN, "BETTIT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BETTIT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BETTIT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BETTIT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BETTIT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BETTIT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BETTIT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BETTIT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BETTIT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BETTIT_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "BETTIT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETTIT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETTIT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETTIT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETTIT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETTIT_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "BETTIT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BETTIT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETTIT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETTIT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETTIT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETTIT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETTIT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETTIT_S3_FORCE_PATH_STYLE")

	setDuration(&cfg.Exchange.TradeLockTTL, "BETTIT_EXCHANGE_TRADE_LOCK_TTL")
	setDuration(&cfg.Exchange.TradeLockRetry, "BETTIT_EXCHANGE_TRADE_LOCK_RETRY")
	setInt(&cfg.Exchange.TradeLockAttempts, "BETTIT_EXCHANGE_TRADE_LOCK_ATTEMPTS")
	setInt(&cfg.Exchange.TradeMaxRetries, "BETTIT_EXCHANGE_TRADE_MAX_RETRIES")
	setDuration(&cfg.Exchange.SettlementLockTTL, "BETTIT_EXCHANGE_SETTLEMENT_LOCK_TTL")
	setInt(&cfg.Exchange.SettlementConcurrency, "BETTIT_EXCHANGE_SETTLEMENT_CONCURRENCY")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
