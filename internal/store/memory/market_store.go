// Package memory implements the persistence interfaces with in-process maps.
// It backs the standalone mode and the test suites. Each operation holds its
// store's mutex only for its own duration; cross-operation exclusivity (the
// per-market read-modify-write window) is the caller's job via LockManager
// and the versioned market write, exactly as with the PostgreSQL backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bettitlabs/bettit/internal/domain"
)

// MarketStore implements domain.MarketStore in memory.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	return nil
}

func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// Save writes a market only when the stored version matches expectedVersion,
// bumping the version on success.
func (s *MarketStore) Save(ctx context.Context, m domain.Market, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.markets[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	m.Version = expectedVersion + 1
	s.markets[m.ID] = m
	return nil
}

func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Market
	for _, m := range s.markets {
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

var _ domain.MarketStore = (*MarketStore)(nil)
