package rwlock

import "sync"

// RWLock allows any number of concurrent readers or a single writer.
//
// A writer that arrives while readers are active only waits for the readers
// that already hold the lock. Readers arriving after it queue behind the writer
// mutex until the writer is done.
type RWLock struct {
	// Held by a writer for the whole write, and briefly by readers entering.
	w sync.Mutex

	// Guards readers and drained.
	r       sync.Mutex
	readers int
	drained chan struct{}
}

// RLock acquires the lock for reading.
func (l *RWLock) RLock() {
	l.w.Lock()
	l.r.Lock()

	if l.readers == 0 {
		l.drained = make(chan struct{})
	}

	l.readers++

	l.r.Unlock()
	l.w.Unlock()
}

// RUnlock releases a read lock. Releasing a lock that is not held panics.
func (l *RWLock) RUnlock() {
	l.r.Lock()
	defer l.r.Unlock()

	if l.readers <= 0 {
		panic("rwlock: RUnlock of unlocked RWLock")
	}

	l.readers--

	if l.readers == 0 {
		close(l.drained)
	}
}

// Lock acquires the lock for writing.
func (l *RWLock) Lock() {
	l.w.Lock()

	l.r.Lock()
	if l.readers == 0 {
		l.r.Unlock()

		return
	}

	drained := l.drained
	l.r.Unlock()

	// New readers block on w, so drained closes once the current ones release.
	<-drained
}

// Unlock releases the write lock.
func (l *RWLock) Unlock() {
	l.w.Unlock()
}

// Readers returns the number of readers currently holding the lock.
func (l *RWLock) Readers() int {
	l.r.Lock()
	defer l.r.Unlock()

	return l.readers
}
