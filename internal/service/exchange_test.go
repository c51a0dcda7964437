package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bettitlabs/bettit/internal/domain"
	"github.com/bettitlabs/bettit/internal/engine"
	"github.com/bettitlabs/bettit/internal/store/memory"
)

type fixture struct {
	markets  *memory.MarketStore
	bets     *memory.BetStore
	accounts *memory.AccountStore
	ledger   *memory.LedgerStore
	bus      *memory.SignalBus
	exchange *Exchange
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		markets:  memory.NewMarketStore(),
		bets:     memory.NewBetStore(),
		accounts: memory.NewAccountStore(),
		ledger:   memory.NewLedgerStore(),
		bus:      memory.NewSignalBus(),
	}
	locks := memory.NewLockManager()

	maker := engine.NewMarketMaker(f.markets, f.bets, locks, logger, engine.MakerConfig{})
	settler := engine.NewSettlementEngine(f.markets, f.bets, f.accounts, f.ledger, locks, logger, engine.SettlementConfig{})

	f.exchange = NewExchange(f.markets, f.bets, f.accounts, f.ledger, maker, settler, nil, f.bus, nil, logger)
	return f
}

func (f *fixture) createMarket(t *testing.T, b int64) domain.Market {
	t.Helper()
	m, err := f.exchange.CreateMarket(context.Background(), CreateMarketParams{
		Question:       "Will the launch happen this quarter?",
		ResolutionDate: time.Now().Add(24 * time.Hour),
		CreatedBy:      "system",
		Liquidity:      decimal.NewFromInt(b),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) fundAccount(t *testing.T, id string, balance int64) {
	t.Helper()
	require.NoError(t, f.accounts.Create(context.Background(), domain.Account{
		ID:        id,
		Username:  id,
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: time.Now().UTC(),
	}))
}

func TestCreateMarketValidatesLiquidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exchange.CreateMarket(ctx, CreateMarketParams{
		Question:  "Valid?",
		Liquidity: decimal.Zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)

	_, err = f.exchange.CreateMarket(ctx, CreateMarketParams{
		Question:  "Valid?",
		Liquidity: decimal.NewFromInt(-100),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)

	_, err = f.exchange.CreateMarket(ctx, CreateMarketParams{
		Liquidity: decimal.NewFromInt(100),
	})
	assert.Error(t, err)
}

func TestCreateMarketOpensAtEvenOdds(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)

	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.True(t, m.QYes.IsZero())
	assert.True(t, m.QNo.IsZero())
	assert.True(t, m.YesPrice.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, m.NoPrice.Equal(decimal.NewFromFloat(0.5)))
}

func TestPreviewTradeDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	ctx := context.Background()

	preview, err := f.exchange.PreviewTrade(ctx, m.ID, domain.SideYes, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, preview.Shares.IsPositive())
	assert.True(t, preview.NewYesPrice.GreaterThan(decimal.NewFromFloat(0.5)))
	assert.True(t, preview.PotentialPayout.Equal(preview.Shares))

	// Preview is pure: the stored market is untouched.
	stored, err := f.markets.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.QYes.IsZero())
	assert.Equal(t, int64(0), stored.Version)
}

func TestPreviewTradeErrors(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	ctx := context.Background()

	_, err := f.exchange.PreviewTrade(ctx, m.ID, domain.SideYes, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.exchange.PreviewTrade(ctx, "missing", domain.SideYes, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.exchange.PreviewTrade(ctx, m.ID, domain.Side("MAYBE"), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrInvalidSide)
}

func TestPlaceTradeDebitsAndRecords(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	f.fundAccount(t, "alice", 1000)
	ctx := context.Background()

	bet, quote, err := f.exchange.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, bet.Shares.IsPositive())
	assert.True(t, quote.YesPrice.GreaterThan(decimal.NewFromFloat(0.5)))

	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(900)), "got %s", alice.Balance)
	assert.Equal(t, int64(1), alice.TotalBets)

	entries, err := f.ledger.ListByAccount(ctx, "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LedgerTypeBetPlaced, entries[0].Type)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(-100)))
	assert.True(t, entries[0].BalanceAfter.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, bet.ID, entries[0].BetID)
}

func TestPlaceTradeInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	f.fundAccount(t, "alice", 50)
	ctx := context.Background()

	_, _, err := f.exchange.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Nothing moved: no bet, no debit, no market mutation.
	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(50)))

	stored, err := f.markets.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.QYes.IsZero())
}

func TestPlaceTradeUnknownAccount(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)

	_, _, err := f.exchange.PlaceTrade(context.Background(), m.ID, "ghost", domain.SideYes, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlaceTradePublishesEvent(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	f.fundAccount(t, "alice", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := f.bus.Subscribe(ctx, "trades")
	require.NoError(t, err)

	_, _, err = f.exchange.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(25))
	require.NoError(t, err)

	select {
	case payload := <-events:
		assert.Contains(t, string(payload), "trade_executed")
		assert.Contains(t, string(payload), m.ID)
	case <-time.After(time.Second):
		t.Fatal("no trade event published")
	}
}

func TestResolveMarketSettlesBets(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	f.fundAccount(t, "alice", 1000)
	f.fundAccount(t, "bob", 1000)
	ctx := context.Background()

	aliceBet, _, err := f.exchange.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, _, err = f.exchange.PlaceTrade(ctx, m.ID, "bob", domain.SideNo, decimal.NewFromInt(100))
	require.NoError(t, err)

	settled, err := f.exchange.ResolveMarket(ctx, m.ID, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	// Alice wins one unit per share on top of the 900 left after her bet.
	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	expected := decimal.NewFromInt(900).Add(aliceBet.Shares)
	assert.True(t, alice.Balance.Equal(expected), "got %s want %s", alice.Balance, expected)

	bob, err := f.accounts.Get(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bob.Balance.Equal(decimal.NewFromInt(900)))

	// Trading on the settled market is rejected.
	_, _, err = f.exchange.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	// A second resolution is rejected.
	_, err = f.exchange.ResolveMarket(ctx, m.ID, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestGetQuoteFallsBackToMarket(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)

	q, err := f.exchange.GetQuote(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, q.MarketID)
	assert.True(t, q.YesPrice.Equal(decimal.NewFromFloat(0.5)))
}

func TestLeaderboardOrdersByBalance(t *testing.T) {
	f := newFixture(t)
	f.fundAccount(t, "alice", 500)
	f.fundAccount(t, "bob", 1500)
	f.fundAccount(t, "carol", 1000)

	top, err := f.exchange.Leaderboard(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].ID)
	assert.Equal(t, "carol", top[1].ID)
}

func TestConcurrentTradesCannotOverspend(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	f.fundAccount(t, "alice", 100)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.exchange.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(100))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	// The debit is the gate: the losing trade never reaches the market
	// maker, so no shares exist that were not paid for.
	assert.Equal(t, int64(1), failures.Load())

	bets, err := f.bets.ListByAccount(ctx, "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, bets, 1)

	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.IsZero(), "got %s", alice.Balance)

	// Settlement pays only the funded bet.
	_, err = f.exchange.ResolveMarket(ctx, m.ID, domain.SideYes)
	require.NoError(t, err)

	alice, err = f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(bets[0].Shares), "got %s want %s", alice.Balance, bets[0].Shares)
}

func TestPlaceTradeRefundsWhenTradeRejected(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 100)
	f.fundAccount(t, "alice", 100)
	ctx := context.Background()

	_, err := f.exchange.ResolveMarket(ctx, m.ID, domain.SideYes)
	require.NoError(t, err)

	_, _, err = f.exchange.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(40))
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	// The rejected trade's stake came back.
	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(100)), "got %s", alice.Balance)
}

// creditFailingStore fails the first credit to force a partial settlement.
type creditFailingStore struct {
	domain.AccountStore
	mu       sync.Mutex
	failures int
}

func (s *creditFailingStore) Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return decimal.Zero, errors.New("credit unavailable")
	}
	return s.AccountStore.Credit(ctx, id, amount)
}

func TestResolveMarketRetriesPartialSettlement(t *testing.T) {
	f := newFixture(t)
	accounts := &creditFailingStore{AccountStore: f.accounts, failures: 1}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := memory.NewLockManager()
	maker := engine.NewMarketMaker(f.markets, f.bets, locks, logger, engine.MakerConfig{})
	settler := engine.NewSettlementEngine(
		f.markets, f.bets, accounts, f.ledger, locks, logger,
		engine.SettlementConfig{Concurrency: 1},
	)
	ex := NewExchange(f.markets, f.bets, accounts, f.ledger, maker, settler, nil, f.bus, nil, logger)
	ctx := context.Background()

	m, err := ex.CreateMarket(ctx, CreateMarketParams{
		Question:       "Will the vote pass?",
		ResolutionDate: time.Now().Add(24 * time.Hour),
		CreatedBy:      "system",
		Liquidity:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	f.fundAccount(t, "alice", 1000)

	bet, _, err := ex.PlaceTrade(ctx, m.ID, "alice", domain.SideYes, decimal.NewFromInt(100))
	require.NoError(t, err)

	// First attempt resolves the market but the payout fails.
	_, err = ex.ResolveMarket(ctx, m.ID, domain.SideYes)
	require.Error(t, err)

	// A mismatched outcome is still rejected.
	_, err = ex.ResolveMarket(ctx, m.ID, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// Retrying with the recorded outcome settles the remaining bet.
	settled, err := ex.ResolveMarket(ctx, m.ID, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	alice, err := f.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	expected := decimal.NewFromInt(900).Add(bet.Shares)
	assert.True(t, alice.Balance.Equal(expected), "got %s want %s", alice.Balance, expected)
}
