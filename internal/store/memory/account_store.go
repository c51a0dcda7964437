package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/domain"
)

// AccountStore implements domain.AccountStore in memory. Debit and Credit
// mutate the balance under the store mutex, so concurrent settlements of
// bets owned by the same account never apply a stale snapshot.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *AccountStore) Get(ctx context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

// Debit atomically subtracts amount from the balance, rejecting overdrafts
// without changing state.
func (s *AccountStore) Debit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	if a.Balance.LessThan(amount) {
		return decimal.Zero, domain.ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	s.accounts[id] = a
	return a.Balance, nil
}

// Credit atomically adds amount to the balance.
func (s *AccountStore) Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	a.Balance = a.Balance.Add(amount)
	s.accounts[id] = a
	return a.Balance, nil
}

func (s *AccountStore) RecordBet(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.TotalBets++
	s.accounts[id] = a
	return nil
}

func (s *AccountStore) RecordWinnings(ctx context.Context, id string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.TotalWinnings = a.TotalWinnings.Add(amount)
	s.accounts[id] = a
	return nil
}

func (s *AccountStore) Leaderboard(ctx context.Context, limit int) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Balance.Equal(out[j].Balance) {
			return out[i].Balance.GreaterThan(out[j].Balance)
		}
		return out[i].Username < out[j].Username
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.AccountStore = (*AccountStore)(nil)
