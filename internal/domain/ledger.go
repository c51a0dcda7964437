package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerType classifies a balance-affecting event.
type LedgerType string

const (
	LedgerTypeBetPlaced LedgerType = "bet_placed"
	LedgerTypePayout    LedgerType = "payout"
)

// LedgerEntry is an immutable, append-only record of a balance-affecting
// event. Amount is signed (negative for debits), and BalanceAfter snapshots
// the account balance immediately after the event. Losing bets also produce
// a zero-amount payout entry so settlement is fully auditable.
type LedgerEntry struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Type         LedgerType      `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	MarketID     string          `json:"marketId,omitempty"`
	BetID        string          `json:"betId,omitempty"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
