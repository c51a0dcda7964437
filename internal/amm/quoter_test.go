package amm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bettitlabs/bettit/internal/domain"
)

func TestSimulateTradeInvertsCostFunction(t *testing.T) {
	cases := []struct {
		name   string
		state  State
		side   domain.Side
		amount float64
	}{
		{"fresh market yes", State{B: 100}, domain.SideYes, 100},
		{"fresh market no", State{B: 100}, domain.SideNo, 42.5},
		{"skewed market", State{QYes: 300, QNo: 80, B: 100}, domain.SideNo, 75},
		{"small liquidity", State{B: 2}, domain.SideYes, 50},
		{"tiny amount", State{QYes: 10, QNo: 10, B: 100}, domain.SideYes, 0.01},
		{"large amount", State{B: 250}, domain.SideYes, 10000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim, err := SimulateTrade(tc.state, tc.side, tc.amount)
			require.NoError(t, err)
			assert.Greater(t, sim.Shares, 0.0)

			// The cost delta at the returned share count must match the
			// amount paid within the bisection tolerance.
			delta := Cost(sim.NewState) - Cost(tc.state)
			assert.InDelta(t, tc.amount, delta, 1e-5)
			assert.False(t, sim.LowConfidence)
		})
	}
}

// A $100 YES trade on a fresh b=100 market: the exact root of
// C(s,0) - C(0,0) = 100 is s = 100 * ln(2e - 1).
func TestSimulateTradeFreshMarketScenario(t *testing.T) {
	state := State{B: 100}

	yes, no := Quote(state)
	assert.InDelta(t, 0.5, yes, 1e-12)
	assert.InDelta(t, 0.5, no, 1e-12)

	sim, err := SimulateTrade(state, domain.SideYes, 100)
	require.NoError(t, err)

	want := 100 * math.Log(2*math.E-1)
	assert.InDelta(t, want, sim.Shares, 1e-3)
	assert.Greater(t, sim.NewPriceYes, 0.5)
	assert.Less(t, sim.NewPriceNo, 0.5)
	assert.InDelta(t, 1.0, sim.NewPriceYes+sim.NewPriceNo, 1e-9)

	// Effective price per share lies between the pre- and post-trade
	// instantaneous prices.
	assert.Greater(t, sim.EffectivePrice, 0.5)
	assert.Less(t, sim.EffectivePrice, sim.NewPriceYes)
}

func TestSimulateTradeDoesNotMutateInput(t *testing.T) {
	state := State{QYes: 10, QNo: 20, B: 100}
	_, err := SimulateTrade(state, domain.SideYes, 50)
	require.NoError(t, err)
	assert.Equal(t, State{QYes: 10, QNo: 20, B: 100}, state)
}

// The upper bound must grow geometrically: with a small b the root can vastly
// exceed any fixed multiple of the amount.
func TestSimulateTradeSmallLiquidityBound(t *testing.T) {
	state := State{B: 0.5}
	sim, err := SimulateTrade(state, domain.SideYes, 200)
	require.NoError(t, err)

	// With b=0.5 the price saturates near 1 almost immediately, so shares
	// approach the amount paid but the cost delta must still match.
	delta := Cost(sim.NewState) - Cost(state)
	assert.InDelta(t, 200, delta, 1e-5)
}

func TestSimulateTradeMoreMoneyMoreShares(t *testing.T) {
	state := State{QYes: 50, QNo: 50, B: 100}
	prev := 0.0
	for _, amount := range []float64{1, 10, 50, 100, 500} {
		sim, err := SimulateTrade(state, domain.SideYes, amount)
		require.NoError(t, err)
		assert.Greater(t, sim.Shares, prev)
		prev = sim.Shares
	}
}

func TestSimulateTradeRejectsBadInput(t *testing.T) {
	valid := State{B: 100}

	_, err := SimulateTrade(valid, domain.SideYes, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = SimulateTrade(valid, domain.SideYes, -10)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = SimulateTrade(valid, domain.SideYes, math.NaN())
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = SimulateTrade(valid, domain.SideYes, math.Inf(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = SimulateTrade(valid, domain.Side("MAYBE"), 10)
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	_, err = SimulateTrade(State{B: 0}, domain.SideYes, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)

	_, err = SimulateTrade(State{B: -100}, domain.SideYes, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)
}
