// Package amm implements the Logarithmic Market Scoring Rule (LMSR) cost
// model and quoter for binary markets. Everything here is pure: functions
// take an immutable share-state snapshot and return values without touching
// shared state. Float64 is used internally for the transcendental math; the
// persisted boundaries of the system carry fixed-point decimals.
package amm

import (
	"math"

	"github.com/bettitlabs/bettit/internal/domain"
)

// State is a snapshot of a market's share counts and liquidity parameter.
type State struct {
	QYes float64
	QNo  float64
	B    float64
}

// Valid reports whether the state can be priced. The liquidity parameter
// must be strictly positive and all quantities finite.
func (s State) Valid() bool {
	if s.B <= 0 || math.IsNaN(s.B) || math.IsInf(s.B, 0) {
		return false
	}
	if math.IsNaN(s.QYes) || math.IsInf(s.QYes, 0) || math.IsNaN(s.QNo) || math.IsInf(s.QNo, 0) {
		return false
	}
	return true
}

// Cost evaluates the LMSR cost function C(q) = b * ln(e^(qYes/b) + e^(qNo/b))
// using the log-sum-exp shift. The naive form overflows float64 once q/b
// exceeds roughly 700; subtracting max(qYes, qNo)/b before exponentiating
// keeps both exponents at or below zero, so the result stays finite for any
// realistic share count or liquidity parameter.
func Cost(s State) float64 {
	m := math.Max(s.QYes, s.QNo)
	return m + s.B*math.Log(math.Exp((s.QYes-m)/s.B)+math.Exp((s.QNo-m)/s.B))
}

// Prices returns the instantaneous YES and NO prices, each in (0, 1), summing
// to 1 within floating tolerance. The price of a side is the softmax of its
// share count, evaluated with the same stabilizing shift as Cost.
func Prices(s State) (yes, no float64) {
	m := math.Max(s.QYes, s.QNo)
	expYes := math.Exp((s.QYes - m) / s.B)
	expNo := math.Exp((s.QNo - m) / s.B)
	total := expYes + expNo
	return expYes / total, expNo / total
}

// Price returns the instantaneous price of one side.
func Price(s State, side domain.Side) float64 {
	yes, no := Prices(s)
	if side == domain.SideYes {
		return yes
	}
	return no
}

// Apply returns a new state with the given number of shares added to one
// side. The receiver is unchanged.
func (s State) Apply(side domain.Side, shares float64) State {
	if side == domain.SideYes {
		s.QYes += shares
	} else {
		s.QNo += shares
	}
	return s
}

// CostToBuy returns the cost of acquiring shares of a side from the given
// state, i.e. the cost-function delta.
func CostToBuy(s State, side domain.Side, shares float64) float64 {
	return Cost(s.Apply(side, shares)) - Cost(s)
}

// MaxLoss returns the market maker's worst-case loss for a binary market,
// b * ln(2).
func MaxLoss(b float64) float64 {
	return b * math.Ln2
}
