// Package event provides a small typed event bus. Each entity declares its own
// closed set of event kinds and a payload type; subscribers are invoked
// synchronously in registration order.
package event

import "sync"

// Subscriber receives one event payload.
type Subscriber[P any] func(payload P)

type entry[P any] struct {
	id uint64
	fn Subscriber[P]
}

// Bus maps event kinds to ordered subscriber lists. The zero value is ready
// to use and safe for concurrent subscription.
//
// Fire does not hold the lock while calling subscribers, so a subscriber may
// fire further events on the same bus. A panicking subscriber aborts the
// remaining ones; nothing guards against subscription cycles.
type Bus[K ~string, P any] struct {
	mu   sync.RWMutex
	next uint64
	subs map[K][]entry[P]
}

// New returns an empty bus.
func New[K ~string, P any]() *Bus[K, P] {
	return &Bus[K, P]{}
}

// On subscribes fn to kind and returns a function that removes the
// subscription. Calling the returned function more than once is harmless.
func (b *Bus[K, P]) On(kind K, fn Subscriber[P]) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[K][]entry[P])
	}
	b.next++
	id := b.next
	b.subs[kind] = append(b.subs[kind], entry[P]{id: id, fn: fn})
	return func() { b.remove(kind, id) }
}

func (b *Bus[K, P]) remove(kind K, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[kind]
	for i, e := range list {
		if e.id == id {
			next := make([]entry[P], 0, len(list)-1)
			next = append(next, list[:i]...)
			b.subs[kind] = append(next, list[i+1:]...)
			return
		}
	}
}

// Fire invokes every subscriber of kind with payload. Subscriptions added or
// removed during Fire take effect from the next Fire.
func (b *Bus[K, P]) Fire(kind K, payload P) {
	b.mu.RLock()
	list := b.subs[kind]
	b.mu.RUnlock()
	for _, e := range list {
		e.fn(payload)
	}
}

// Count returns the number of subscribers of kind.
func (b *Bus[K, P]) Count(kind K) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Clear removes every subscription.
func (b *Bus[K, P]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}
