package memory

import (
	"context"
	"sync"

	"github.com/bettitlabs/bettit/internal/domain"
)

// SignalBus implements domain.SignalBus with in-process fan-out. Slow
// subscribers drop messages rather than block publishers, matching the
// fire-and-forget semantics of the Redis pub/sub implementation.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewSignalBus creates a SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	for _, ch := range sb.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to the given channel
// name. The subscription ends, and the returned channel closes, when ctx is
// cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	sb.mu.Lock()
	sb.subs[channel] = append(sb.subs[channel], ch)
	sb.mu.Unlock()

	go func() {
		<-ctx.Done()

		sb.mu.Lock()
		subs := sb.subs[channel]
		for i, c := range subs {
			if c == ch {
				sb.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		sb.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
