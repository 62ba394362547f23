package counterstore

import (
	"fmt"

	"github.com/WelcomerTeam/Sandwich-Roulette/pkg/rwlock"
	"golang.org/x/xerrors"
)

var ErrNotFound = xerrors.New("key not found")

// Store is a map of signed counters that is safe for concurrent use.
// Keys that have never been written read as absent; the first Increment or
// Decrement of a key starts it from 0.
type Store struct {
	lock   rwlock.RWLock
	values map[string]int64
}

// New creates a Store seeded with a copy of initial, which may be nil.
func New(initial map[string]int64) *Store {
	values := make(map[string]int64, len(initial))
	for key, value := range initial {
		values[key] = value
	}

	return &Store{values: values}
}

// Increment adds delta to key and returns the new value.
func (s *Store) Increment(key string, delta int64) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values[key] += delta

	return s.values[key]
}

// Decrement subtracts delta from key and returns the new value.
func (s *Store) Decrement(key string, delta int64) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values[key] -= delta

	return s.values[key]
}

// Get returns the value of key or ErrNotFound.
func (s *Store) Get(key string) (int64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return value, nil
}

// GetOrDefault returns the value of key, or def when the key is absent.
// The store is not modified.
func (s *Store) GetOrDefault(key string, def int64) int64 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if value, ok := s.values[key]; ok {
		return value
	}

	return def
}

// Snapshot returns a copy of every counter.
func (s *Store) Snapshot() map[string]int64 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	snapshot := make(map[string]int64, len(s.values))
	for key, value := range s.values {
		snapshot[key] = value
	}

	return snapshot
}

// Len returns the number of keys in the store.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.values)
}
