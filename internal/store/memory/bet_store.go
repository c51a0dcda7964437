package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bettitlabs/bettit/internal/domain"
)

// BetStore implements domain.BetStore in memory.
type BetStore struct {
	mu   sync.RWMutex
	bets map[string]domain.Bet
}

// NewBetStore creates an empty BetStore.
func NewBetStore() *BetStore {
	return &BetStore{bets: make(map[string]domain.Bet)}
}

func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.bets[b.ID] = b
	return nil
}

func (s *BetStore) Get(ctx context.Context, id string) (domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *BetStore) Update(ctx context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[b.ID]; !ok {
		return domain.ErrNotFound
	}
	s.bets[b.ID] = b
	return nil
}

func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.MarketID == marketID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *BetStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.AccountID == accountID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

var _ domain.BetStore = (*BetStore)(nil)
