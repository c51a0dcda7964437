package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LockManager provides per-key mutual exclusion. The trade and settlement
// engines acquire a per-market lock before entering their read-modify-write
// window so that at most one writer observes a market at any instant. The
// returned unlock function is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Quote is an instantaneous per-market price pair.
type Quote struct {
	MarketID  string          `json:"marketId"`
	YesPrice  decimal.Decimal `json:"yesPrice"`
	NoPrice   decimal.Decimal `json:"noPrice"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// QuoteCache caches per-market quotes for the read path.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, marketID string) (Quote, error)
}

// SignalBus is a lightweight pub/sub fabric for trade and settlement events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// SettlementArchiver writes a durable archive of a settled market (its final
// state and bets) to long-term storage. Archiving is best-effort: a failed
// archive never fails the settlement itself.
type SettlementArchiver interface {
	ArchiveSettlement(ctx context.Context, market Market, bets []Bet) (string, error)
}
