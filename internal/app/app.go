// Package app provides the top-level application lifecycle for the exchange.
// It wires together all dependencies (stores, caches, blob storage, engines,
// and the HTTP server) and runs them until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bettitlabs/bettit/internal/config"
	"github.com/bettitlabs/bettit/internal/engine"
	"github.com/bettitlabs/bettit/internal/server"
	"github.com/bettitlabs/bettit/internal/server/handler"
	"github.com/bettitlabs/bettit/internal/server/ws"
	"github.com/bettitlabs/bettit/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the HTTP
// server and the WebSocket hub, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	maker := engine.NewMarketMaker(
		deps.MarketStore,
		deps.BetStore,
		deps.LockManager,
		a.logger,
		engine.MakerConfig{
			LockTTL:           a.cfg.Exchange.TradeLockTTL.Duration,
			LockRetryInterval: a.cfg.Exchange.TradeLockRetry.Duration,
			LockAttempts:      a.cfg.Exchange.TradeLockAttempts,
			MaxRetries:        a.cfg.Exchange.TradeMaxRetries,
		},
	)

	settler := engine.NewSettlementEngine(
		deps.MarketStore,
		deps.BetStore,
		deps.AccountStore,
		deps.LedgerStore,
		deps.LockManager,
		a.logger,
		engine.SettlementConfig{
			Concurrency: a.cfg.Exchange.SettlementConcurrency,
			LockTTL:     a.cfg.Exchange.SettlementLockTTL.Duration,
		},
	)

	exchange := service.NewExchange(
		deps.MarketStore,
		deps.BetStore,
		deps.AccountStore,
		deps.LedgerStore,
		maker,
		settler,
		deps.QuoteCache,
		deps.SignalBus,
		deps.Archiver,
		a.logger,
	)

	checks := map[string]handler.Pinger{}
	if deps.PgClient != nil {
		checks["postgres"] = deps.PgClient
	}
	if deps.RedisClient != nil {
		checks["redis"] = deps.RedisClient
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Markets:  handler.NewMarketHandler(exchange, a.logger),
		Trades:   handler.NewTradeHandler(exchange, a.logger),
		Accounts: handler.NewAccountHandler(exchange, a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	if strings.ToLower(a.cfg.Mode) == "standalone" {
		if err := seedAccounts(ctx, deps); err != nil {
			return fmt.Errorf("app: seed accounts: %w", err)
		}
		a.logger.InfoContext(ctx, "seeded demo accounts")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
