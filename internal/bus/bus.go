// Package bus is the typed in-process publish/subscribe channel behind
// mutation broadcasting. There is no retained log and no replay: a subscriber
// connecting after an event was published never receives it.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/reliefgrid/reliefgrid/internal/model"
)

// Subscription is one live viewer connection's event feed. Events arrive on C
// in publish order for this subscription; there is no ordering guarantee
// across subscriptions and no delivery acknowledgment.
type Subscription struct {
	C <-chan model.MutationEvent

	ch   chan model.MutationEvent
	once sync.Once
	bus  *Bus
}

// Close detaches the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
		close(s.ch)
	})
}

// Bus fans committed mutation events out to every current subscriber.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new viewer connection with the given channel buffer.
// After Close the returned subscription's channel is already closed.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.MutationEvent, buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every current subscriber. It is called
// synchronously by the write path immediately after the underlying write is
// committed. A subscriber whose buffer is full loses the event: delivery is
// best-effort with no retry or outbox, and the viewer recovers on its next
// full refetch.
func (b *Bus) Publish(event model.MutationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			zap.L().Warn("bus: subscriber buffer full, event dropped",
				zap.String("action", string(event.Action)),
				zap.String("kind", string(event.Kind)),
				zap.String("entity_id", event.TargetID()),
			)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches and closes every subscription. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}
