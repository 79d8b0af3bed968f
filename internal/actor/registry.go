package actor

import (
	"sync"
)

// Registry maps a key to exactly one live actor. Actors are built lazily on
// first reference and are only torn down by Shutdown; a live actor is never
// rebuilt, so per-key sequencing state survives for the life of the process.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	build   func(K) (V, error)
	closed  bool
}

type entry[V any] struct {
	ready chan struct{}
	value V
	err   error
}

// NewRegistry returns a registry that uses build to construct the actor for a
// key the first time it is requested.
func NewRegistry[K comparable, V any](build func(K) (V, error)) *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]*entry[V]),
		build:   build,
	}
}

// Get returns the actor for key, building it if needed. Concurrent callers for
// the same key wait for the single construction. A failed construction is
// forgotten so the next Get retries it.
func (r *Registry[K, V]) Get(key K) (V, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		var zero V
		return zero, ErrStopped
	}
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		<-e.ready
		return e.value, e.err
	}
	e := &entry[V]{ready: make(chan struct{})}
	r.entries[key] = e
	r.mu.Unlock()

	e.value, e.err = r.build(key)
	if e.err != nil {
		r.mu.Lock()
		delete(r.entries, key)
		r.mu.Unlock()
	}
	close(e.ready)
	return e.value, e.err
}

// Len reports how many actors are live or under construction.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown refuses further lookups and hands every successfully built actor
// to stop.
func (r *Registry[K, V]) Shutdown(stop func(K, V)) {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[K]*entry[V])
	r.mu.Unlock()

	for key, e := range entries {
		<-e.ready
		if e.err == nil && stop != nil {
			stop(key, e.value)
		}
	}
}
