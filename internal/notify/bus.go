// Package notify implements the cross-consumer logout broadcast: a
// fire-and-forget, payload-free signal telling independent subsystems
// (upload pipelines, list fetchers) to cancel their in-flight work.
//
// Delivery is at-least-once to currently subscribed listeners with no
// ordering guarantee between listeners. Each subscription channel has a
// one-slot buffer; back-to-back broadcasts coalesce, which still satisfies
// at-least-once for a signal that carries no payload.
package notify

import "sync"

// Bus is a broadcast channel for session-end events.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan struct{})}
}

// Subscribe registers a listener and returns its signal channel plus a
// cancel function. Subscribe at component start, cancel at teardown.
func (b *Bus) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish signals every current subscriber without blocking. A subscriber
// that has not drained its previous signal keeps the single pending one.
func (b *Bus) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
