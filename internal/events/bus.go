// Package events is an in-process typed publish/subscribe bus.
package events

import (
	"sync"
	"sync/atomic"

	"bsc-token-scout/internal/domain"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Broker fans out values of one type to every subscriber. Publish never
// blocks: a subscriber whose buffer is full misses the value.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[uint64]chan T
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subs: make(map[uint64]chan T)}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Broker[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every subscriber with buffer space.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped on full buffers.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel and later publishes are no-ops.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Bus groups the brokers the scout publishes on.
type Bus struct {
	// NewToken carries a token as soon as it is first stored.
	NewToken *Broker[*domain.Token]
	// TokenUpdated carries a token after each completed analysis.
	TokenUpdated *Broker[*domain.Token]
	// Connection carries push feed state transitions.
	Connection *Broker[domain.ConnectionState]
}

// NewBus creates a bus with empty brokers.
func NewBus() *Bus {
	return &Bus{
		NewToken:     NewBroker[*domain.Token](),
		TokenUpdated: NewBroker[*domain.Token](),
		Connection:   NewBroker[domain.ConnectionState](),
	}
}

// Close closes every broker.
func (b *Bus) Close() {
	b.NewToken.Close()
	b.TokenUpdated.Close()
	b.Connection.Close()
}
