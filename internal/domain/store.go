package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets. Save is the exclusive-write primitive the
// trade and settlement paths rely on: it only writes when the stored version
// equals expectedVersion, bumping the version on success and returning
// ErrVersionConflict otherwise. A trade that loses the race re-reads a fresh
// snapshot and retries rather than overwriting a concurrent update.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Save(ctx context.Context, m Market, expectedVersion int64) error
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
}

// BetStore persists bets.
type BetStore interface {
	Create(ctx context.Context, b Bet) error
	Get(ctx context.Context, id string) (Bet, error)
	Update(ctx context.Context, b Bet) error
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Bet, error)
}

// AccountStore persists accounts. Debit and Credit are atomic
// read-modify-write operations in the store itself; Debit returns
// ErrInsufficientBalance without changing state when the balance would go
// negative. Both return the new balance.
type AccountStore interface {
	Create(ctx context.Context, a Account) error
	Get(ctx context.Context, id string) (Account, error)
	Debit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)
	RecordBet(ctx context.Context, id string) error
	RecordWinnings(ctx context.Context, id string, amount decimal.Decimal) error
	Leaderboard(ctx context.Context, limit int) ([]Account, error)
}

// LedgerStore persists the append-only transaction ledger.
type LedgerStore interface {
	Append(ctx context.Context, e LedgerEntry) error
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]LedgerEntry, error)
}
