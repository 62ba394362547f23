package lockset

import "sync"

type void struct{}

// LockSet is a set that is safe for concurrent use.
type LockSet[T comparable] struct {
	mu     sync.RWMutex
	values map[T]void
}

// New returns an empty LockSet.
func New[T comparable]() *LockSet[T] {
	return &LockSet[T]{values: make(map[T]void)}
}

// Contains returns a boolean if the set contains a specific value
func (ls *LockSet[T]) Contains(val T) (contains bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	_, contains = ls.values[val]

	return
}

// Values returns a copy of the set contents in no particular order.
func (ls *LockSet[T]) Values() (values []T) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	values = make([]T, 0, len(ls.values))
	for key := range ls.values {
		values = append(values, key)
	}

	return
}

// Len returns the size of the LockSet
func (ls *LockSet[T]) Len() (count int) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	return len(ls.values)
}

// Remove removes a value and reports whether it was present.
func (ls *LockSet[T]) Remove(val T) (change bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if _, ok := ls.values[val]; ok {
		delete(ls.values, val)
		change = true
	}

	return
}

// Add adds a value and reports whether it was absent.
func (ls *LockSet[T]) Add(val T) (change bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.values == nil {
		ls.values = make(map[T]void)
	}

	if _, ok := ls.values[val]; !ok {
		ls.values[val] = void{}
		change = true
	}

	return
}
