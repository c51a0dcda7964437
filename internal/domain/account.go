package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's play-money balance. Balance never goes negative: a
// debit that exceeds the balance is rejected with ErrInsufficientBalance
// before any state changes. TotalBets increases monotonically with each
// placed bet.
type Account struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Balance       decimal.Decimal `json:"balance"`
	TotalBets     int64           `json:"totalBets"`
	TotalWinnings decimal.Decimal `json:"totalWinnings"`
	CreatedAt     time.Time       `json:"createdAt"`
}
