package syncmap

import (
	"sync"

	"go.uber.org/atomic"
)

// Map is a type-safe wrapper around sync.Map
type Map[K comparable, V any] struct {
	m     sync.Map
	count atomic.Int64

	createMu sync.Mutex
}

// Store stores the value for the key
func (m *Map[K, V]) Store(key K, value V) {
	_, loaded := m.m.Load(key)
	m.m.Store(key, value)
	if !loaded {
		m.count.Add(1)
	}
}

// Load loads the value for the key
func (m *Map[K, V]) Load(key K) (V, bool) {
	value, ok := m.m.Load(key)
	if !ok {
		var zero V

		return zero, false
	}

	return value.(V), true
}

// Delete deletes the value for the key
func (m *Map[K, V]) Delete(key K) {
	_, loaded := m.m.LoadAndDelete(key)
	if loaded {
		m.count.Add(-1)
	}
}

// LoadAndDelete loads and deletes the value for the key
func (m *Map[K, V]) LoadAndDelete(key K) (V, bool) {
	value, ok := m.m.LoadAndDelete(key)
	if !ok {
		var zero V

		return zero, false
	}

	m.count.Add(-1)
	return value.(V), true
}

// LoadOrStore loads the value for the key if it exists, otherwise stores and returns the given value
func (m *Map[K, V]) LoadOrStore(key K, value V) (V, bool) {
	actual, loaded := m.m.LoadOrStore(key, value)
	if !loaded {
		m.count.Add(1)
	}

	return actual.(V), loaded
}

// LoadOrCreate returns the value for the key, calling create to build and
// store one when the key is absent. create runs at most once per key for
// callers sharing the map; loaded reports whether the value already existed.
func (m *Map[K, V]) LoadOrCreate(key K, create func() V) (value V, loaded bool) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	if value, ok := m.Load(key); ok {
		return value, true
	}

	value = create()
	m.Store(key, value)

	return value, false
}

// Range calls f for each key-value pair in the map
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(key, value interface{}) bool {
		return f(key.(K), value.(V))
	})
}

// Count returns the number of items in the map
// This is an O(1) operation using atomic counter
func (m *Map[K, V]) Count() int {
	return int(m.count.Load())
}
