// Package wakebus implements the cross-handle wake coordination described
// in the design notes: a path-keyed broadcast registry that lets multiple
// open handles to the same on-disk database learn of new enqueues without
// polling. It is deliberately not an ambient package-level singleton — the
// host that opens databases owns one Bus and threads it through, so tests
// can construct an isolated Bus per case instead of sharing global state.
package wakebus

import "sync"

// Bus is a process-wide (from the perspective of its owner) map from
// canonicalized database path to a set of subscriber channels. Notify
// wakes every current subscriber for a path; it never blocks, and it does
// not retain history, so a subscriber that isn't listening at the moment
// of a Notify call simply waits for the next one (or the next event it
// derives from, such as a ready row's timestamp).
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[int]chan struct{}
	next int
}

// NewBus constructs an empty registry.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan struct{})}
}

// Subscribe registers a new wake channel for path. The returned cancel
// function must be called when the subscriber is done, or its entry leaks
// for the lifetime of the Bus.
func (b *Bus) Subscribe(path string) (ch <-chan struct{}, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	c := make(chan struct{}, 1)
	if b.subs[path] == nil {
		b.subs[path] = make(map[int]chan struct{})
	}
	b.subs[path][id] = c

	return c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[path]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, path)
			}
		}
	}
}

// Notify wakes every subscriber currently registered for path. Delivery is
// non-blocking and coalescing: a subscriber with an already-pending signal
// is not signaled twice.
func (b *Bus) Notify(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.subs[path] {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of distinct paths with at least one subscriber,
// for tests that assert on leak behavior.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
