package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/grit/metrics"
)

var (
	// ErrExhausted is returned by Acquire when all Capacity instances are
	// borrowed.
	ErrExhausted = errors.New("object pool exhausted")
	// ErrClosed is returned when acquiring from a closed pool.
	ErrClosed = errors.New("object pool is closed")
	// ErrInvalidCapacity is returned when constructing a pool with capacity < 1.
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrNilFactory is returned when constructing a pool without a factory.
	ErrNilFactory = errors.New("factory must not be nil")
)

// Factory constructs a new poolable instance.
type Factory[T any] func() (T, error)

// Reset restores a released instance to a reusable state. It runs on every
// Release before the instance re-enters the free list.
type Reset[T any] func(T)

// Options contains configuration for a Pool.
type Options[T any] struct {
	// Capacity bounds the number of live instances (borrowed + idle).
	Capacity int

	// Prealloc instances are constructed eagerly by New to absorb bursty
	// demand without allocation spikes. Must not exceed Capacity.
	Prealloc int

	// Reset restores an instance on release. Optional.
	Reset Reset[T]

	// Logger receives debug output. Defaults to a discard logger.
	Logger *slog.Logger

	// Metrics receives per-acquisition signals.
	Metrics metrics.Collector
}

// Pool is a bounded, thread-safe object pool.
type Pool[T any] struct {
	factory Factory[T]
	reset   Reset[T]
	cap     int
	logger  *slog.Logger
	metrics metrics.Collector

	// sem gates borrowed instances: at most cap outstanding.
	sem *semaphore.Weighted

	mu          sync.Mutex
	free        []T
	constructed int
	closed      bool
}

// New creates a pool producing instances with factory.
//
// Defaults follow the shared toolkit configuration: Capacity 100, Prealloc
// 10. A factory error during preallocation fails the constructor.
func New[T any](factory Factory[T], optFns ...func(*Options[T])) (*Pool[T], error) {
	o := Options[T]{
		Capacity: 100,
		Prealloc: 10,
		Logger:   slog.New(slog.DiscardHandler),
		Metrics:  metrics.Default,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	if factory == nil {
		return nil, ErrNilFactory
	}
	if o.Capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if o.Prealloc < 0 || o.Prealloc > o.Capacity {
		return nil, fmt.Errorf("prealloc %d out of range [0, %d]", o.Prealloc, o.Capacity)
	}

	p := &Pool[T]{
		factory: factory,
		reset:   o.Reset,
		cap:     o.Capacity,
		logger:  o.Logger,
		metrics: o.Metrics,
		sem:     semaphore.NewWeighted(int64(o.Capacity)),
		free:    make([]T, 0, o.Prealloc),
	}

	for range o.Prealloc {
		item, err := factory()
		if err != nil {
			p.drainLocked()
			return nil, fmt.Errorf("failed to preallocate pool object: %w", err)
		}
		p.free = append(p.free, item)
		p.constructed++
	}

	return p, nil
}

// Acquire returns a ready-to-use instance without blocking.
//
// It prefers the free list, constructs a new instance while fewer than
// Capacity exist, and otherwise fails with ErrExhausted.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if !p.sem.TryAcquire(1) {
		p.metrics.RecordPoolAcquire(ErrExhausted)
		return zero, ErrExhausted
	}
	return p.take()
}

// AcquireWait is the blocking variant of Acquire: at the capacity limit it
// waits for a Release or for ctx to be done.
func (p *Pool[T]) AcquireWait(ctx context.Context) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.metrics.RecordPoolAcquire(err)
		return zero, err
	}
	return p.take()
}

// take pops a free instance or constructs one. The caller must already hold
// a semaphore slot, which is returned on failure.
func (p *Pool[T]) take() (T, error) {
	var zero T

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return zero, ErrClosed
	}
	if n := len(p.free); n > 0 {
		item := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		p.metrics.RecordPoolAcquire(nil)
		return item, nil
	}
	p.constructed++
	p.mu.Unlock()

	item, err := p.factory()
	if err != nil {
		p.mu.Lock()
		p.constructed--
		p.mu.Unlock()
		p.sem.Release(1)
		p.metrics.RecordPoolAcquire(err)
		return zero, fmt.Errorf("failed to construct pool object: %w", err)
	}
	p.metrics.RecordPoolAcquire(nil)
	return item, nil
}

// Release resets item and returns it to the free list.
//
// Releasing into a closed pool discards the item (closing it when it
// implements io.Closer). Release must be called exactly once per successful
// acquisition; the pool cannot detect double releases.
func (p *Pool[T]) Release(item T) {
	if p.reset != nil {
		p.reset(item)
	}

	p.mu.Lock()
	if p.closed {
		p.constructed--
		p.mu.Unlock()
		p.closeItem(item)
		p.sem.Release(1)
		return
	}
	p.free = append(p.free, item)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Len returns the number of idle instances in the free list.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Cap returns the configured capacity.
func (p *Pool[T]) Cap() int { return p.cap }

// Live returns the number of constructed instances (borrowed + idle).
func (p *Pool[T]) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.constructed
}

// Close discards all idle instances. Borrowed instances are discarded as
// they come back. Close is idempotent.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	items := p.free
	p.free = nil
	p.constructed -= len(items)
	p.mu.Unlock()

	for _, item := range items {
		p.closeItem(item)
	}
}

// drainLocked discards preallocated items after a constructor failure.
func (p *Pool[T]) drainLocked() {
	for _, item := range p.free {
		p.closeItem(item)
	}
	p.free = nil
}

// closeItem closes the discarded item when it owns resources.
func (p *Pool[T]) closeItem(item T) {
	if c, ok := any(item).(io.Closer); ok {
		if err := c.Close(); err != nil {
			p.logger.Warn("failed to close discarded pool object", "error", err)
		}
	}
}
