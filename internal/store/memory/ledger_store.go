package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bettitlabs/bettit/internal/domain"
)

// LedgerStore implements domain.LedgerStore in memory. Entries are append
// only; nothing is ever mutated or deleted.
type LedgerStore struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

func (s *LedgerStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
