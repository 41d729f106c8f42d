// Package resolve classifies raw audit detail envelopes into typed variants
// and owns the asynchronous name-resolution caches feeding that process.
package resolve

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader is a process-lifetime memoizing loader: cached value, else shared
// in-flight fetch, else start a fetch. Concurrent callers for the same key
// share one underlying fetch and receive the same result. Failed fetches are
// not cached, so a later call retries.
type Loader[K comparable, V any] struct {
	mu     sync.RWMutex
	values map[K]V
	flight singleflight.Group
	fetch  func(ctx context.Context, key K) (V, error)
}

// NewLoader creates a Loader around the given fetch function.
func NewLoader[K comparable, V any](fetch func(ctx context.Context, key K) (V, error)) *Loader[K, V] {
	return &Loader[K, V]{
		values: make(map[K]V),
		fetch:  fetch,
	}
}

// Get returns the cached value for key, joining an in-flight fetch when one
// exists. The context of the caller that starts a fetch governs it; joiners
// share its outcome.
func (l *Loader[K, V]) Get(ctx context.Context, key K) (V, error) {
	l.mu.RLock()
	if v, ok := l.values[key]; ok {
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.flight.Do(fmt.Sprint(key), func() (any, error) {
		// A fetch that completed while this call waited for the flight
		// slot already populated the cache.
		l.mu.RLock()
		if v, ok := l.values[key]; ok {
			l.mu.RUnlock()
			return v, nil
		}
		l.mu.RUnlock()

		value, err := l.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.values[key] = value
		l.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Peek returns the cached value without triggering a fetch.
func (l *Loader[K, V]) Peek(key K) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.values[key]
	return v, ok
}

// Put stores a value directly, bypassing the fetch path.
func (l *Loader[K, V]) Put(key K, value V) {
	l.mu.Lock()
	l.values[key] = value
	l.mu.Unlock()
}

// Len reports the number of cached values.
func (l *Loader[K, V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.values)
}

// Clear drops every cached value. In-flight fetches are unaffected; their
// results land in the cleared map.
func (l *Loader[K, V]) Clear() {
	l.mu.Lock()
	l.values = make(map[K]V)
	l.mu.Unlock()
}
