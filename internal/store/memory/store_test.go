package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bettitlabs/bettit/internal/domain"
)

func TestMarketSaveRejectsStaleVersion(t *testing.T) {
	s := NewMarketStore()
	ctx := context.Background()

	m := domain.Market{
		ID:        "m1",
		Question:  "Will it rain tomorrow?",
		Status:    domain.MarketStatusOpen,
		Liquidity: decimal.NewFromInt(100),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(ctx, m))

	require.NoError(t, s.Save(ctx, m, 0))

	// A writer holding the old snapshot loses.
	err := s.Save(ctx, m, 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestMarketSaveUnknownMarket(t *testing.T) {
	s := NewMarketStore()
	err := s.Save(context.Background(), domain.Market{ID: "nope"}, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDebitRejectsOverdraft(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.Account{
		ID:      "alice",
		Balance: decimal.NewFromInt(50),
	}))

	_, err := s.Debit(ctx, "alice", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The failed debit must not have changed the balance.
	a, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(50)))

	balance, err := s.Debit(ctx, "alice", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestConcurrentCreditsAllLand(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.Account{
		ID:      "bob",
		Balance: decimal.Zero,
	}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Credit(ctx, "bob", decimal.NewFromInt(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a, err := s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(n)), "balance = %s", a.Balance)
}

func TestLockManagerSerialisesHolders(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "market:m1", time.Second)
	require.NoError(t, err)

	// A second acquire on the same key must wait until release.
	acquired := make(chan struct{})
	go func() {
		u2, err := lm.Acquire(ctx, "market:m1", time.Second)
		assert.NoError(t, err)
		close(acquired)
		u2()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock after release")
	}

	// Double unlock is a no-op.
	unlock()
}

func TestLockManagerAcquireHonoursContext(t *testing.T) {
	lm := NewLockManager()

	unlock, err := lm.Acquire(context.Background(), "market:m1", time.Second)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = lm.Acquire(ctx, "market:m1", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSignalBusFanOut(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := bus.Subscribe(ctx, "trades")
	require.NoError(t, err)
	ch2, err := bus.Subscribe(ctx, "trades")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "trades", []byte("hello")))

	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "hello", string(msg))
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the message")
		}
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, paginate(items, domain.ListOpts{Limit: 2}))
	assert.Equal(t, []int{3, 4, 5}, paginate(items, domain.ListOpts{Offset: 2}))
	assert.Equal(t, []int{3, 4}, paginate(items, domain.ListOpts{Offset: 2, Limit: 2}))
	assert.Nil(t, paginate(items, domain.ListOpts{Offset: 10}))
}

func TestLeaderboardBreaksBalanceTiesByUsername(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()

	for name, balance := range map[string]int64{
		"zoe": 100,
		"amy": 100,
		"mia": 250,
	} {
		require.NoError(t, s.Create(ctx, domain.Account{
			ID:       name,
			Username: name,
			Balance:  decimal.NewFromInt(balance),
		}))
	}

	out, err := s.Leaderboard(ctx, 10)
	require.NoError(t, err)

	names := make([]string, len(out))
	for i, a := range out {
		names[i] = a.Username
	}
	assert.Equal(t, []string{"mia", "amy", "zoe"}, names)
}
