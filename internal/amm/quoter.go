package amm

import (
	"math"

	"github.com/bettitlabs/bettit/internal/domain"
)

const (
	// costTolerance is the absolute tolerance, in currency units, on the
	// cost delta when inverting the cost function.
	costTolerance = 1e-6

	// maxBisectIterations caps the bisection loop. Exhausting the cap is
	// not a failure: the best estimate is returned flagged low-confidence.
	maxBisectIterations = 128

	// maxBoundDoublings caps the geometric growth of the bisection upper
	// bound.
	maxBoundDoublings = 64
)

// Simulation is the outcome of pricing a prospective trade against a state
// snapshot. NewState is a fresh snapshot; the input state is never mutated.
//
// LowConfidence is set when bisection hit its iteration cap before reaching
// the cost tolerance. The estimate is still economically valid and callers
// are expected to fill the trade, surfacing the flag as a warning.
type Simulation struct {
	Shares         float64
	EffectivePrice float64
	NewState       State
	NewPriceYes    float64
	NewPriceNo     float64
	LowConfidence  bool
}

// Quote returns the instantaneous YES and NO prices for a state.
func Quote(s State) (yes, no float64) {
	return Prices(s)
}

// SimulateTrade finds the unique shares >= 0 such that spending amount on
// the given side moves the cost function by exactly amount. The cost
// function is strictly increasing and convex in the chosen side's share
// count, so the root is unique and monotone bisection converges.
//
// The upper bound starts at amount (one share never costs more than one
// currency unit, so the root is at least amount) and doubles until the cost
// delta at the bound exceeds amount. A fixed multiple of amount would
// under-bound when b is small, which is why the bound grows geometrically.
func SimulateTrade(s State, side domain.Side, amount float64) (Simulation, error) {
	if !s.Valid() {
		return Simulation{}, domain.ErrInvalidLiquidity
	}
	if side != domain.SideYes && side != domain.SideNo {
		return Simulation{}, domain.ErrInvalidSide
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Simulation{}, domain.ErrInvalidAmount
	}

	baseCost := Cost(s)
	delta := func(shares float64) float64 {
		return Cost(s.Apply(side, shares)) - baseCost
	}

	lowConfidence := false

	hi := amount
	grown := 0
	for delta(hi) < amount {
		grown++
		if grown > maxBoundDoublings {
			// Cannot bracket the root; fall through with the best
			// bound we have.
			lowConfidence = true
			break
		}
		hi *= 2
	}

	lo := 0.0
	shares := hi
	converged := false
	for i := 0; i < maxBisectIterations; i++ {
		mid := (lo + hi) / 2
		d := delta(mid)
		if math.Abs(d-amount) < costTolerance {
			shares = mid
			converged = true
			break
		}
		if d < amount {
			lo = mid
		} else {
			hi = mid
		}
	}
	if !converged {
		shares = (lo + hi) / 2
		lowConfidence = true
	}

	newState := s.Apply(side, shares)
	newYes, newNo := Prices(newState)

	// Effective price is the average price paid per share. If the fill
	// rounds to zero shares it degenerates to the pre-trade instantaneous
	// price of the chosen side.
	effectivePrice := Price(s, side)
	if shares > 0 {
		effectivePrice = amount / shares
	}

	return Simulation{
		Shares:         shares,
		EffectivePrice: effectivePrice,
		NewState:       newState,
		NewPriceYes:    newYes,
		NewPriceNo:     newNo,
		LowConfidence:  lowConfidence,
	}, nil
}
