// Package engine contains the write paths of the exchange: the market maker,
// which is the only code allowed to mutate a market's share state, and the
// settlement engine, which distributes payouts once a market resolves. Both
// serialize access per market through a LockManager and a versioned market
// write, so no two operations ever overlap inside a market's
// read-modify-write window.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/amm"
	"github.com/bettitlabs/bettit/internal/domain"
)

// MakerConfig tunes the trade execution path.
type MakerConfig struct {
	// LockTTL bounds how long a per-market lock may be held before it
	// expires on its own (relevant for the distributed lock manager).
	LockTTL time.Duration

	// LockRetryInterval is the pause between lock acquisition attempts.
	LockRetryInterval time.Duration

	// LockAttempts bounds lock acquisition so no trade blocks indefinitely.
	LockAttempts int

	// MaxRetries bounds whole-trade retries after a version conflict.
	MaxRetries int
}

func (c MakerConfig) withDefaults() MakerConfig {
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.LockRetryInterval <= 0 {
		c.LockRetryInterval = 25 * time.Millisecond
	}
	if c.LockAttempts <= 0 {
		c.LockAttempts = 80
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// TradeResult bundles the executed bet with the post-trade market snapshot.
type TradeResult struct {
	Bet    domain.Bet
	Market domain.Market

	// LowConfidence is true when pricing hit its iteration cap before
	// reaching tolerance. The fill is still valid; callers surface this
	// as a warning.
	LowConfidence bool
}

// MarketMaker executes trades against LMSR markets.
type MarketMaker struct {
	markets domain.MarketStore
	bets    domain.BetStore
	locks   domain.LockManager
	logger  *slog.Logger
	cfg     MakerConfig
}

// NewMarketMaker creates a MarketMaker. Zero-valued config fields fall back
// to defaults.
func NewMarketMaker(
	markets domain.MarketStore,
	bets domain.BetStore,
	locks domain.LockManager,
	logger *slog.Logger,
	cfg MakerConfig,
) *MarketMaker {
	return &MarketMaker{
		markets: markets,
		bets:    bets,
		locks:   locks,
		logger:  logger.With(slog.String("component", "market_maker")),
		cfg:     cfg.withDefaults(),
	}
}

// ExecuteTrade buys amount worth of shares on one side of a market. It
// acquires the per-market lock, prices the trade against the current share
// state, persists the moved market under its version token, and records the
// bet. The market and bet writes happen inside the lock, so no concurrent
// trade or resolution observes an intermediate state.
//
// A version conflict on the market write (possible when a lock expires under
// a slow holder) retries the whole trade with a freshly read snapshot, up to
// MaxRetries, then surfaces ErrConcurrentModification.
func (mm *MarketMaker) ExecuteTrade(
	ctx context.Context,
	marketID, accountID string,
	side domain.Side,
	amount decimal.Decimal,
) (TradeResult, error) {
	if side != domain.SideYes && side != domain.SideNo {
		return TradeResult{}, domain.ErrInvalidSide
	}
	if !amount.IsPositive() {
		return TradeResult{}, domain.ErrInvalidAmount
	}

	unlock, err := mm.acquireLock(ctx, marketID)
	if err != nil {
		return TradeResult{}, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < mm.cfg.MaxRetries; attempt++ {
		result, err := mm.tradeOnce(ctx, marketID, accountID, side, amount)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return TradeResult{}, err
		}

		lastErr = err
		mm.logger.WarnContext(ctx, "version conflict, retrying trade",
			slog.String("market_id", marketID),
			slog.Int("attempt", attempt+1),
		)
	}

	return TradeResult{}, fmt.Errorf("%w: %v", domain.ErrConcurrentModification, lastErr)
}

// tradeOnce runs a single read-simulate-write pass.
func (mm *MarketMaker) tradeOnce(
	ctx context.Context,
	marketID, accountID string,
	side domain.Side,
	amount decimal.Decimal,
) (TradeResult, error) {
	market, err := mm.markets.Get(ctx, marketID)
	if err != nil {
		return TradeResult{}, fmt.Errorf("engine: load market %s: %w", marketID, err)
	}
	if !market.Open() {
		return TradeResult{}, domain.ErrMarketClosed
	}

	state := amm.State{
		QYes: market.QYes.InexactFloat64(),
		QNo:  market.QNo.InexactFloat64(),
		B:    market.Liquidity.InexactFloat64(),
	}

	sim, err := amm.SimulateTrade(state, side, amount.InexactFloat64())
	if err != nil {
		return TradeResult{}, err
	}
	if sim.LowConfidence {
		mm.logger.WarnContext(ctx, "pricing hit iteration cap, filling at best estimate",
			slog.String("market_id", marketID),
			slog.Float64("amount", amount.InexactFloat64()),
			slog.Float64("shares", sim.Shares),
		)
	}

	loadedVersion := market.Version

	market.QYes = decimal.NewFromFloat(sim.NewState.QYes)
	market.QNo = decimal.NewFromFloat(sim.NewState.QNo)
	market.YesPrice = decimal.NewFromFloat(sim.NewPriceYes)
	market.NoPrice = decimal.NewFromFloat(sim.NewPriceNo)
	market.TotalPool = market.TotalPool.Add(amount)

	if err := mm.markets.Save(ctx, market, loadedVersion); err != nil {
		return TradeResult{}, err
	}
	market.Version = loadedVersion + 1

	shares := decimal.NewFromFloat(sim.Shares)
	bet := domain.Bet{
		ID:              uuid.New().String(),
		MarketID:        marketID,
		AccountID:       accountID,
		Side:            side,
		Amount:          amount,
		Shares:          shares,
		EffectivePrice:  decimal.NewFromFloat(sim.EffectivePrice),
		PotentialPayout: shares, // each winning share redeems for 1 unit
		Status:          domain.BetStatusActive,
		CreatedAt:       time.Now().UTC(),
	}
	if err := mm.bets.Create(ctx, bet); err != nil {
		return TradeResult{}, fmt.Errorf("engine: create bet: %w", err)
	}

	mm.logger.InfoContext(ctx, "trade executed",
		slog.String("market_id", marketID),
		slog.String("bet_id", bet.ID),
		slog.String("side", string(side)),
		slog.String("amount", amount.String()),
		slog.String("shares", shares.String()),
	)

	return TradeResult{Bet: bet, Market: market, LowConfidence: sim.LowConfidence}, nil
}

// acquireLock obtains the per-market lock, retrying held locks at a fixed
// interval up to a bounded number of attempts.
func (mm *MarketMaker) acquireLock(ctx context.Context, marketID string) (func(), error) {
	return acquireMarketLock(ctx, mm.locks, marketID, mm.cfg.LockTTL, mm.cfg.LockRetryInterval, mm.cfg.LockAttempts)
}

// acquireMarketLock is shared between the market maker and the settlement
// engine.
func acquireMarketLock(
	ctx context.Context,
	locks domain.LockManager,
	marketID string,
	ttl, retryInterval time.Duration,
	attempts int,
) (func(), error) {
	key := "market:" + marketID

	for i := 0; i < attempts; i++ {
		unlock, err := locks.Acquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("engine: acquire lock for market %s: %w", marketID, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	return nil, fmt.Errorf("%w: market %s lock contended", domain.ErrConcurrentModification, marketID)
}
