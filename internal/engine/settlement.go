package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/bettitlabs/bettit/internal/domain"
)

// SettlementConfig tunes the settlement engine.
type SettlementConfig struct {
	// Concurrency bounds how many bets settle in parallel. Each bet only
	// touches itself and its owner's account, and account credits are
	// atomic in the store, so bets are independent of each other.
	Concurrency int

	LockTTL           time.Duration
	LockRetryInterval time.Duration
	LockAttempts      int
}

func (c SettlementConfig) withDefaults() SettlementConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.LockRetryInterval <= 0 {
		c.LockRetryInterval = 25 * time.Millisecond
	}
	if c.LockAttempts <= 0 {
		c.LockAttempts = 80
	}
	return c
}

// SettlementEngine resolves markets and distributes payouts.
type SettlementEngine struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	accounts domain.AccountStore
	ledger   domain.LedgerStore
	locks    domain.LockManager
	logger   *slog.Logger
	cfg      SettlementConfig
}

// NewSettlementEngine creates a SettlementEngine. Zero-valued config fields
// fall back to defaults.
func NewSettlementEngine(
	markets domain.MarketStore,
	bets domain.BetStore,
	accounts domain.AccountStore,
	ledger domain.LedgerStore,
	locks domain.LockManager,
	logger *slog.Logger,
	cfg SettlementConfig,
) *SettlementEngine {
	return &SettlementEngine{
		markets:  markets,
		bets:     bets,
		accounts: accounts,
		ledger:   ledger,
		locks:    locks,
		logger:   logger.With(slog.String("component", "settlement")),
		cfg:      cfg.withDefaults(),
	}
}

// Resolve transitions an open market to resolved with the given outcome.
// The transition happens exactly once: a second call returns
// ErrAlreadyResolved and the recorded outcome never changes.
func (se *SettlementEngine) Resolve(ctx context.Context, marketID string, outcome domain.Side) error {
	if outcome != domain.SideYes && outcome != domain.SideNo {
		return domain.ErrInvalidSide
	}

	unlock, err := acquireMarketLock(ctx, se.locks, marketID, se.cfg.LockTTL, se.cfg.LockRetryInterval, se.cfg.LockAttempts)
	if err != nil {
		return err
	}
	defer unlock()

	market, err := se.markets.Get(ctx, marketID)
	if err != nil {
		return fmt.Errorf("engine: load market %s: %w", marketID, err)
	}
	if market.Status != domain.MarketStatusOpen {
		return domain.ErrAlreadyResolved
	}

	now := time.Now().UTC()
	market.Status = domain.MarketStatusResolved
	market.Outcome = &outcome
	market.ResolvedAt = &now

	if err := se.markets.Save(ctx, market, market.Version); err != nil {
		return fmt.Errorf("engine: resolve market %s: %w", marketID, err)
	}

	se.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
	)
	return nil
}

// Settle walks every bet on a resolved market and settles the active ones:
// winners are credited one currency unit per share, losers receive zero, and
// both produce a ledger entry so the settlement is auditable. Already-settled
// bets are skipped, which makes Settle idempotent per bet and safe to retry
// after a partial failure. A bet whose credit fails stays active so the
// retry picks it up again.
//
// Settle holds the market lock for its whole run. The active-bet snapshot is
// taken inside the lock, so a concurrent Settle cannot read the same bet as
// active and pay it twice.
//
// It returns the number of bets settled by this call.
func (se *SettlementEngine) Settle(ctx context.Context, marketID string) (int, error) {
	unlock, err := acquireMarketLock(ctx, se.locks, marketID, se.cfg.LockTTL, se.cfg.LockRetryInterval, se.cfg.LockAttempts)
	if err != nil {
		return 0, err
	}
	defer unlock()

	market, err := se.markets.Get(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("engine: load market %s: %w", marketID, err)
	}
	if market.Status != domain.MarketStatusResolved || market.Outcome == nil {
		return 0, domain.ErrNotResolved
	}
	outcome := *market.Outcome

	bets, err := se.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("engine: list bets for market %s: %w", marketID, err)
	}

	var settled atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(se.cfg.Concurrency)

	for _, bet := range bets {
		if bet.Status != domain.BetStatusActive {
			continue
		}

		g.Go(func() error {
			if err := se.settleBet(gctx, market, bet, outcome); err != nil {
				return err
			}
			settled.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(settled.Load()), fmt.Errorf("engine: settle market %s: %w", marketID, err)
	}

	se.logger.InfoContext(ctx, "market settled",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int64("bets_settled", settled.Load()),
	)
	return int(settled.Load()), nil
}

// settleBet settles a single active bet. The account credit and winnings
// counter use atomic store operations, never a read-then-write of a stale
// balance, so bets for the same account may settle concurrently.
func (se *SettlementEngine) settleBet(ctx context.Context, market domain.Market, bet domain.Bet, outcome domain.Side) error {
	payout := decimal.Zero
	balanceAfter := decimal.Zero

	if bet.Won(outcome) {
		payout = bet.Shares

		newBalance, err := se.accounts.Credit(ctx, bet.AccountID, payout)
		if err != nil {
			return fmt.Errorf("credit account %s for bet %s: %w", bet.AccountID, bet.ID, err)
		}
		balanceAfter = newBalance

		if err := se.accounts.RecordWinnings(ctx, bet.AccountID, payout); err != nil {
			se.logger.WarnContext(ctx, "record winnings failed",
				slog.String("account_id", bet.AccountID),
				slog.String("error", err.Error()),
			)
		}
	} else {
		account, err := se.accounts.Get(ctx, bet.AccountID)
		if err != nil {
			return fmt.Errorf("load account %s for bet %s: %w", bet.AccountID, bet.ID, err)
		}
		balanceAfter = account.Balance
	}

	entry := domain.LedgerEntry{
		ID:           uuid.New().String(),
		AccountID:    bet.AccountID,
		Type:         domain.LedgerTypePayout,
		Amount:       payout,
		BalanceAfter: balanceAfter,
		MarketID:     market.ID,
		BetID:        bet.ID,
		Description:  fmt.Sprintf("Settlement: %s resolved %s", market.Question, outcome),
		CreatedAt:    time.Now().UTC(),
	}
	if err := se.ledger.Append(ctx, entry); err != nil {
		se.logger.WarnContext(ctx, "ledger append failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	}

	now := time.Now().UTC()
	bet.Status = domain.BetStatusSettled
	bet.Payout = &payout
	bet.SettledAt = &now
	if err := se.bets.Update(ctx, bet); err != nil {
		return fmt.Errorf("update bet %s: %w", bet.ID, err)
	}

	return nil
}
