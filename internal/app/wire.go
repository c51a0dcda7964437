package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/bettitlabs/bettit/internal/blob/s3"
	"github.com/bettitlabs/bettit/internal/cache/redis"
	"github.com/bettitlabs/bettit/internal/config"
	"github.com/bettitlabs/bettit/internal/domain"
	"github.com/bettitlabs/bettit/internal/store/memory"
	"github.com/bettitlabs/bettit/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore  domain.MarketStore
	BetStore     domain.BetStore
	AccountStore domain.AccountStore
	LedgerStore  domain.LedgerStore

	// Coordination and messaging
	LockManager domain.LockManager
	QuoteCache  domain.QuoteCache
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.SettlementArchiver

	// Raw clients, kept for health checks. Nil in standalone mode.
	PgClient    *postgres.Client
	RedisClient *redis.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
//
// In "server" mode the stores are Postgres-backed and coordination runs
// through Redis. In "standalone" mode everything lives in process: memory
// stores, a keyed in-process lock, and an in-process bus.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	switch mode {
	case "server":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PgClient = pgClient
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.BetStore = postgres.NewBetStore(pool)
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.LedgerStore = postgres.NewLedgerStore(pool)

		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RedisClient = redisClient
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.QuoteCache = redis.NewQuoteCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)

	case "standalone":
		deps.MarketStore = memory.NewMarketStore()
		deps.BetStore = memory.NewBetStore()
		deps.AccountStore = memory.NewAccountStore()
		deps.LedgerStore = memory.NewLedgerStore()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus()
		// No quote cache in standalone; reads fall back to the market record.

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unsupported mode %q", cfg.Mode)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewSettlementArchiver(s3blob.NewWriter(s3Client))
	}

	return deps, cleanup, nil
}
