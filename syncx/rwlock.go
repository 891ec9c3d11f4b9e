package syncx

import "sync"

// RWLock wraps sync.RWMutex with convenience closures and spells out the
// fairness contract callers can rely on.
//
// Fairness: once a writer blocks on Lock, later readers wait behind it, so
// writers cannot be starved by a steady reader stream. There is no strict
// FIFO ordering between readers and writers beyond that; readers admitted
// together proceed concurrently. These are the Go runtime's RWMutex
// semantics; the lock is neither reader-priority nor writer-priority and
// exposes no tuning knobs.
//
// The zero value is an unlocked lock.
type RWLock struct {
	mu sync.RWMutex
}

// Lock acquires the write lock.
func (l *RWLock) Lock() { l.mu.Lock() }

// Unlock releases the write lock.
func (l *RWLock) Unlock() { l.mu.Unlock() }

// RLock acquires a read lock.
func (l *RWLock) RLock() { l.mu.RLock() }

// RUnlock releases a read lock.
func (l *RWLock) RUnlock() { l.mu.RUnlock() }

// TryLock acquires the write lock without blocking and reports success.
func (l *RWLock) TryLock() bool { return l.mu.TryLock() }

// TryRLock acquires a read lock without blocking and reports success.
func (l *RWLock) TryRLock() bool { return l.mu.TryRLock() }

// WithRead runs fn while holding a read lock.
func (l *RWLock) WithRead(fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn()
}

// WithWrite runs fn while holding the write lock.
func (l *RWLock) WithWrite(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}
