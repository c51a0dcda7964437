package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bettitlabs/bettit/internal/domain"
	"github.com/bettitlabs/bettit/internal/store/memory"
)

type settlementFixture struct {
	markets  *memory.MarketStore
	bets     *memory.BetStore
	accounts *memory.AccountStore
	ledger   *memory.LedgerStore
	engine   *SettlementEngine
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	f := &settlementFixture{
		markets:  memory.NewMarketStore(),
		bets:     memory.NewBetStore(),
		accounts: memory.NewAccountStore(),
		ledger:   memory.NewLedgerStore(),
	}
	f.engine = NewSettlementEngine(
		f.markets, f.bets, f.accounts, f.ledger,
		memory.NewLockManager(), testLogger(), SettlementConfig{},
	)
	return f
}

func (f *settlementFixture) addAccount(t *testing.T, id string, balance int64) {
	t.Helper()
	require.NoError(t, f.accounts.Create(context.Background(), domain.Account{
		ID:        id,
		Username:  id,
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: time.Now().UTC(),
	}))
}

func (f *settlementFixture) addBet(t *testing.T, id, marketID, accountID string, side domain.Side, shares float64) {
	t.Helper()
	s := decimal.NewFromFloat(shares)
	require.NoError(t, f.bets.Create(context.Background(), domain.Bet{
		ID:              id,
		MarketID:        marketID,
		AccountID:       accountID,
		Side:            side,
		Amount:          s.Div(decimal.NewFromInt(2)),
		Shares:          s,
		PotentialPayout: s,
		Status:          domain.BetStatusActive,
		CreatedAt:       time.Now().UTC(),
	}))
}

func TestResolveTransitionsOnce(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)
	ctx := context.Background()

	require.NoError(t, f.engine.Resolve(ctx, "m1", domain.SideYes))

	m, err := f.markets.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	require.NotNil(t, m.Outcome)
	assert.Equal(t, domain.SideYes, *m.Outcome)
	assert.NotNil(t, m.ResolvedAt)

	// The outcome is immutable: a second resolution fails and changes
	// nothing.
	err = f.engine.Resolve(ctx, "m1", domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	m, err = f.markets.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, *m.Outcome)
}

func TestResolveRejectsInvalidOutcome(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)

	err := f.engine.Resolve(context.Background(), "m1", domain.Side("UNDECIDED"))
	assert.ErrorIs(t, err, domain.ErrInvalidSide)
}

func TestSettleRequiresResolution(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)

	_, err := f.engine.Settle(context.Background(), "m1")
	assert.ErrorIs(t, err, domain.ErrNotResolved)
}

func TestSettlePaysWinnersAndRecordsLosers(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)
	f.addAccount(t, "alice", 1000)
	f.addAccount(t, "bob", 1000)
	f.addBet(t, "b1", "m1", "alice", domain.SideYes, 50)
	f.addBet(t, "b2", "m1", "bob", domain.SideNo, 30)
	ctx := context.Background()

	require.NoError(t, f.engine.Resolve(ctx, "m1", domain.SideYes))

	settled, err := f.engine.Settle(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	// Winner: one currency unit per share.
	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(1050)), "got %s", alice.Balance)
	assert.True(t, alice.TotalWinnings.Equal(decimal.NewFromInt(50)))

	// Loser: no balance change.
	bob, err := f.accounts.Get(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bob.Balance.Equal(decimal.NewFromInt(1000)))

	b1, err := f.bets.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusSettled, b1.Status)
	require.NotNil(t, b1.Payout)
	assert.True(t, b1.Payout.Equal(decimal.NewFromInt(50)))

	b2, err := f.bets.Get(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusSettled, b2.Status)
	require.NotNil(t, b2.Payout)
	assert.True(t, b2.Payout.IsZero())

	// Both outcomes leave an audit trail.
	aliceLedger, err := f.ledger.ListByAccount(ctx, "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, aliceLedger, 1)
	assert.Equal(t, domain.LedgerTypePayout, aliceLedger[0].Type)
	assert.True(t, aliceLedger[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.True(t, aliceLedger[0].BalanceAfter.Equal(decimal.NewFromInt(1050)))

	bobLedger, err := f.ledger.ListByAccount(ctx, "bob", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, bobLedger, 1)
	assert.True(t, bobLedger[0].Amount.IsZero())
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)
	f.addAccount(t, "alice", 100)
	f.addBet(t, "b1", "m1", "alice", domain.SideYes, 25)
	ctx := context.Background()

	require.NoError(t, f.engine.Resolve(ctx, "m1", domain.SideYes))

	first, err := f.engine.Settle(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	// Settling again skips every already-settled bet: no double payout.
	second, err := f.engine.Settle(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, second)

	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(125)), "got %s", alice.Balance)
}

func TestSettleParallelCreditsSameAccount(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)
	f.addAccount(t, "alice", 0)
	ctx := context.Background()

	const wins = 20
	for i := 0; i < wins; i++ {
		f.addBet(t, fmt.Sprintf("b%d", i), "m1", "alice", domain.SideYes, 1)
	}

	require.NoError(t, f.engine.Resolve(ctx, "m1", domain.SideYes))

	settled, err := f.engine.Settle(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, wins, settled)

	// Credits are atomic adds, so parallel settlement of bets owned by a
	// single account never loses a payout.
	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(wins)), "got %s", alice.Balance)
}

// failingAccountStore fails a fixed number of credits to exercise partial
// settlement recovery.
type failingAccountStore struct {
	domain.AccountStore
	failures int
}

func (s *failingAccountStore) Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	if s.failures > 0 {
		s.failures--
		return decimal.Zero, fmt.Errorf("credit unavailable")
	}
	return s.AccountStore.Credit(ctx, id, amount)
}

func TestSettleRetryResumesAfterPartialFailure(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)
	f.addAccount(t, "alice", 0)
	ctx := context.Background()

	accounts := &failingAccountStore{AccountStore: f.accounts, failures: 1}
	eng := NewSettlementEngine(
		f.markets, f.bets, accounts, f.ledger,
		memory.NewLockManager(), testLogger(),
		SettlementConfig{Concurrency: 1},
	)

	f.addBet(t, "b1", "m1", "alice", domain.SideYes, 10)
	require.NoError(t, eng.Resolve(ctx, "m1", domain.SideYes))

	// First pass fails the credit; the bet must stay active so the retry
	// picks it up.
	_, err := eng.Settle(ctx, "m1")
	require.Error(t, err)

	b1, err := f.bets.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusActive, b1.Status)

	settled, err := eng.Settle(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(10)))
}

// laggyBetStore stretches the window between listing a market's bets and
// settling them.
type laggyBetStore struct {
	domain.BetStore
	delay time.Duration
}

func (s *laggyBetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	time.Sleep(s.delay)
	return s.BetStore.ListByMarket(ctx, marketID)
}

func TestConcurrentSettlePaysEachBetOnce(t *testing.T) {
	f := newSettlementFixture(t)
	openMarket(t, f.markets, "m1", 100)
	f.addAccount(t, "alice", 0)
	f.addBet(t, "b1", "m1", "alice", domain.SideYes, 10)
	ctx := context.Background()

	bets := &laggyBetStore{BetStore: f.bets, delay: 50 * time.Millisecond}
	eng := NewSettlementEngine(
		f.markets, bets, f.accounts, f.ledger,
		memory.NewLockManager(), testLogger(), SettlementConfig{},
	)

	require.NoError(t, eng.Resolve(ctx, "m1", domain.SideYes))

	var (
		wg    sync.WaitGroup
		total atomic.Int64
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := eng.Settle(ctx, "m1")
			assert.NoError(t, err)
			total.Add(int64(n))
		}()
	}
	wg.Wait()

	// The market lock serialises the two calls; the second sees the bet
	// already settled and pays nothing.
	assert.Equal(t, int64(1), total.Load())

	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(10)), "got %s", alice.Balance)
}
