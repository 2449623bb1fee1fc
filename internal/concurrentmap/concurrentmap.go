// Package concurrentmap provides a generic thread-safe map with an
// atomic insert-if-absent primitive. It is the Go analogue of the
// original's ConcurrentMap: the connection pool and pending-call
// tracking both depend on "insert, and tell me whether I was the one
// who inserted" rather than a plain map + mutex, so that exactly one
// goroutine wins a race to initialize shared state.
package concurrentmap

import "sync"

// Map is a generic thread-safe map guarded by a single RWMutex. Reads
// use RLock; mutating operations use Lock.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New constructs an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

// Find looks up key and reports whether it was present.
func (m *Map[K, V]) Find(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[key]
	return v, ok
}

// Insert inserts value under key only if key is not already present.
// It reports true when this call performed the insertion (i.e. the
// caller won the race), false if key was already present (in which
// case the map is left untouched and the existing value is not
// returned — callers that need it should follow with Find).
func (m *Map[K, V]) Insert(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.m[key]; ok {
		return false
	}
	m.m[key] = value
	return true
}

// Erase removes key, reporting whether it was present. Concurrent
// Erase calls for the same key are safe: only the call that actually
// found and removed the entry returns true, matching the "erase races
// are skipped, not double-finished" discipline used when canceling
// pending calls.
func (m *Map[K, V]) Erase(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.m[key]; !ok {
		return false
	}
	delete(m.m, key)
	return true
}

// Keys returns a snapshot of the current keys. Because the map may be
// mutated concurrently, callers must tolerate a subsequent Find/Erase
// on a returned key failing.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.m))
	for k := range m.m {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the current number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Range calls f for every entry currently in the map. If f returns
// false, iteration stops early. Range takes the read lock for the
// whole iteration, so f must not call back into the same Map.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.m {
		if !f(k, v) {
			return
		}
	}
}
