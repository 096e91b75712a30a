// Package broadcast propagates durable-storage changes to every
// session-aware component: in-process through Bus, and across processes
// through the AMQP bridge.
package broadcast

import (
	"context"
	"sync"

	"github.com/boddenberg/fintrack-go/internal/domain"

	"go.uber.org/zap"
)

const subscriberBuffer = 16

// Bus is the in-process broadcast channel. Every subscriber receives every
// change, including the ones published by this process.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.StorageChange
	nextID int
	origin string
	logger *zap.Logger
}

// NewBus creates a bus stamping local changes with origin.
func NewBus(origin string, logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan domain.StorageChange),
		origin: origin,
		logger: logger,
	}
}

// Origin returns the id of this process.
func (b *Bus) Origin() string {
	return b.origin
}

// Publish stamps the change with this process's origin and delivers it.
func (b *Bus) Publish(_ context.Context, change domain.StorageChange) error {
	if change.Origin == "" {
		change.Origin = b.origin
	}
	b.Deliver(change)
	return nil
}

// Deliver fans a change out to the subscribers as is.
// A subscriber whose buffer is full misses the change; the session poll catches up.
func (b *Bus) Deliver(change domain.StorageChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- change:
		default:
			b.logger.Warn("broadcast: subscriber buffer full, change dropped",
				zap.Int("subscriber", id),
				zap.String("key", change.Key),
			)
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan domain.StorageChange, func()) {
	ch := make(chan domain.StorageChange, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
