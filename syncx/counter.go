package syncx

import "sync/atomic"

// Counter is a thread-safe monotonic-friendly counter.
// The zero value is ready to use.
type Counter struct {
	v atomic.Int64
}

// Inc increments the counter and returns the new value.
func (c *Counter) Inc() int64 { return c.v.Add(1) }

// Dec decrements the counter and returns the new value.
func (c *Counter) Dec() int64 { return c.v.Add(-1) }

// Add adds delta (which may be negative) and returns the new value.
func (c *Counter) Add(delta int64) int64 { return c.v.Add(delta) }

// Load returns the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// Store sets the counter to v.
func (c *Counter) Store(v int64) { c.v.Store(v) }

// CompareAndSwap sets the counter to new if it currently holds old.
func (c *Counter) CompareAndSwap(old, new int64) bool {
	return c.v.CompareAndSwap(old, new)
}

// Reset sets the counter to zero and returns the previous value.
func (c *Counter) Reset() int64 { return c.v.Swap(0) }
