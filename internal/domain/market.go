package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Side is a binary market outcome side.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide validates and normalizes a side string. It accepts upper and
// lower case spellings and returns ErrInvalidSide for anything else.
func ParseSide(s string) (Side, error) {
	switch s {
	case "YES", "yes", "Yes":
		return SideYes, nil
	case "NO", "no", "No":
		return SideNo, nil
	default:
		return "", ErrInvalidSide
	}
}

// Opposite returns the other side of a binary market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Market represents a binary prediction market priced by the LMSR market
// maker. QYes and QNo are the cumulative share counts issued so far; they
// change only through trade execution and never decrease while the market is
// open. Version is the optimistic concurrency token checked by
// MarketStore.Save.
type Market struct {
	ID                 string          `json:"id"`
	Question           string          `json:"question"`
	Description        string          `json:"description"`
	ResolutionCriteria string          `json:"resolutionCriteria"`
	ResolutionDate     time.Time       `json:"resolutionDate"`
	CreatedBy          string          `json:"createdBy"`
	Community          string          `json:"community"`
	Status             MarketStatus    `json:"status"`
	Liquidity          decimal.Decimal `json:"liquidity"`
	QYes               decimal.Decimal `json:"qYes"`
	QNo                decimal.Decimal `json:"qNo"`
	YesPrice           decimal.Decimal `json:"yesPrice"`
	NoPrice            decimal.Decimal `json:"noPrice"`
	TotalPool          decimal.Decimal `json:"totalPool"`
	Outcome            *Side           `json:"outcome,omitempty"`
	Version            int64           `json:"-"`
	CreatedAt          time.Time       `json:"createdAt"`
	ResolvedAt         *time.Time      `json:"resolvedAt,omitempty"`
}

// Open reports whether the market accepts trades.
func (m Market) Open() bool {
	return m.Status == MarketStatusOpen
}
