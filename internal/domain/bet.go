package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus represents the lifecycle state of a bet.
type BetStatus string

const (
	BetStatusActive  BetStatus = "active"
	BetStatusSettled BetStatus = "settled"
)

// Bet is a position taken against a market. Amount and Shares are fixed at
// execution time: Shares was computed against the market's share state at the
// moment the trade executed and is never recomputed. Payout stays nil until
// the settlement engine settles the bet, after which it is immutable.
type Bet struct {
	ID              string           `json:"id"`
	MarketID        string           `json:"marketId"`
	AccountID       string           `json:"accountId"`
	Side            Side             `json:"side"`
	Amount          decimal.Decimal  `json:"amount"`
	Shares          decimal.Decimal  `json:"shares"`
	EffectivePrice  decimal.Decimal  `json:"effectivePrice"`
	PotentialPayout decimal.Decimal  `json:"potentialPayout"`
	Status          BetStatus        `json:"status"`
	Payout          *decimal.Decimal `json:"payout,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	SettledAt       *time.Time       `json:"settledAt,omitempty"`
}

// Won reports whether the bet's side matches the given resolved outcome.
func (b Bet) Won(outcome Side) bool {
	return b.Side == outcome
}
