package amm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricesSumToOne(t *testing.T) {
	states := []State{
		{QYes: 0, QNo: 0, B: 100},
		{QYes: 50, QNo: 0, B: 100},
		{QYes: 0, QNo: 50, B: 100},
		{QYes: 1000, QNo: 250, B: 100},
		{QYes: 3, QNo: 7, B: 0.5},
		{QYes: 1e6, QNo: 2e6, B: 10},
	}

	for _, s := range states {
		yes, no := Prices(s)
		assert.InDelta(t, 1.0, yes+no, 1e-9, "state %+v", s)
		assert.Greater(t, yes, 0.0)
		assert.Less(t, yes, 1.0)
		assert.Greater(t, no, 0.0)
		assert.Less(t, no, 1.0)
	}
}

func TestPricesBalancedState(t *testing.T) {
	yes, no := Prices(State{QYes: 0, QNo: 0, B: 100})
	assert.InDelta(t, 0.5, yes, 1e-12)
	assert.InDelta(t, 0.5, no, 1e-12)
}

func TestPriceMonotonicInShares(t *testing.T) {
	s := State{QYes: 10, QNo: 10, B: 100}
	prevYes, prevNo := Prices(s)

	for q := 20.0; q <= 200; q += 20 {
		yes, no := Prices(State{QYes: q, QNo: 10, B: 100})
		assert.Greater(t, yes, prevYes, "qYes=%v", q)
		assert.Less(t, no, prevNo, "qYes=%v", q)
		prevYes, prevNo = yes, no
	}
}

// Large share counts against a small liquidity parameter push q/b far past
// the float64 exponent range. The stabilized evaluation must stay finite
// where a direct exponentiation would return Inf or NaN.
func TestCostStableForExtremeRatios(t *testing.T) {
	states := []State{
		{QYes: 1e6, QNo: 0, B: 1},
		{QYes: 0, QNo: 1e6, B: 1},
		{QYes: 1e9, QNo: 1e9, B: 0.1},
		{QYes: 5e5, QNo: 4e5, B: 0.25},
	}

	for _, s := range states {
		c := Cost(s)
		require.False(t, math.IsNaN(c), "cost NaN for %+v", s)
		require.False(t, math.IsInf(c, 0), "cost Inf for %+v", s)

		yes, no := Prices(s)
		require.False(t, math.IsNaN(yes) || math.IsNaN(no), "price NaN for %+v", s)
		assert.InDelta(t, 1.0, yes+no, 1e-9)
	}
}

func TestCostAtOrigin(t *testing.T) {
	// C(0,0) = b * ln 2.
	assert.InDelta(t, 100*math.Ln2, Cost(State{B: 100}), 1e-9)
	assert.InDelta(t, 7*math.Ln2, Cost(State{B: 7}), 1e-9)
}

func TestCostIncreasingInShares(t *testing.T) {
	s := State{QYes: 10, QNo: 30, B: 50}
	prev := Cost(s)
	for q := 11.0; q < 30; q++ {
		c := Cost(State{QYes: q, QNo: 30, B: 50})
		assert.Greater(t, c, prev)
		prev = c
	}
}

func TestStateValid(t *testing.T) {
	assert.True(t, State{QYes: 1, QNo: 2, B: 100}.Valid())
	assert.False(t, State{B: 0}.Valid())
	assert.False(t, State{B: -5}.Valid())
	assert.False(t, State{QYes: math.NaN(), B: 100}.Valid())
	assert.False(t, State{QNo: math.Inf(1), B: 100}.Valid())
}

func TestMaxLoss(t *testing.T) {
	assert.InDelta(t, 100*math.Ln2, MaxLoss(100), 1e-12)
}
