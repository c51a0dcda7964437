package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bettitlabs/bettit/internal/domain"
)

// LockManager implements domain.LockManager with in-process keyed locks.
// Unlike the Redis lock manager, Acquire blocks until the lock is free or
// the context is cancelled; the TTL is unused because a crashed in-process
// holder takes the whole process with it.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]chan struct{})}
}

func (lm *LockManager) sem(key string) chan struct{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ch, ok := lm.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lm.locks[key] = ch
	}
	return ch
}

// Acquire obtains the lock for key, blocking until it is available or ctx is
// done. The returned unlock function is safe to call multiple times.
func (lm *LockManager) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := lm.sem(key)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() { <-ch })
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)
