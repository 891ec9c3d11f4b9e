package ratelimit

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hupe1980/grit/metrics"
)

var (
	// ErrLimitExceeded is returned by TryAcquire when the bucket cannot
	// satisfy the request immediately.
	ErrLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidRate is returned when constructing a bucket with rate <= 0.
	ErrInvalidRate = errors.New("rate must be positive")
	// ErrInvalidCapacity is returned when constructing a bucket with capacity <= 0.
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrRequestTooLarge is returned when a request exceeds the bucket capacity
	// and therefore could never be satisfied.
	ErrRequestTooLarge = errors.New("requested tokens exceed bucket capacity")
)

// LimitError reports a failed non-blocking acquisition.
//
// It unwraps to ErrLimitExceeded.
type LimitError struct {
	Need      float64
	Available float64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: need %.2f tokens, %.2f available", e.Need, e.Available)
}

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// Options contains optional settings for a TokenBucket.
type Options struct {
	// Clock is the time source. Defaults to the wall clock; tests inject
	// clock.NewMock().
	Clock clock.Clock

	// Logger receives debug output. Defaults to a discard logger.
	Logger *slog.Logger

	// Metrics receives per-acquisition signals.
	Metrics metrics.Collector
}

// TokenBucket is a thread-safe token-bucket rate limiter.
//
// The token count is a float so fractional refill accumulates precisely
// between accesses. It never drops below zero and never exceeds Capacity.
type TokenBucket struct {
	rate     float64 // tokens per second; guarded by mu
	capacity float64

	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Collector

	mu      sync.Mutex
	tokens  float64
	last    time.Time  // last refill instant
	waiters *list.List // of *waiter, FIFO
}

type waiter struct {
	n      float64
	head   chan struct{} // closed when the waiter reaches the queue head
	headed bool
}

// NewTokenBucket creates a bucket refilled at rate tokens per second with
// the given burst capacity. The bucket starts full.
func NewTokenBucket(rate, capacity float64, optFns ...func(*Options)) (*TokenBucket, error) {
	o := Options{
		Clock:   clock.New(),
		Logger:  slog.New(slog.DiscardHandler),
		Metrics: metrics.Default,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	if rate <= 0 {
		return nil, ErrInvalidRate
	}
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	return &TokenBucket{
		rate:     rate,
		capacity: capacity,
		clock:    o.Clock,
		logger:   o.Logger,
		metrics:  o.Metrics,
		tokens:   capacity,
		last:     o.Clock.Now(),
		waiters:  list.New(),
	}, nil
}

// refillLocked advances the token count from elapsed clock time.
// Callers must hold mu.
func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.last = now
	b.tokens = min(b.capacity, b.tokens+b.rate*elapsed.Seconds())
}

// promoteLocked signals the new queue head, if any. Callers must hold mu.
func (b *TokenBucket) promoteLocked() {
	front := b.waiters.Front()
	if front == nil {
		return
	}
	w := front.Value.(*waiter)
	if !w.headed {
		w.headed = true
		close(w.head)
	}
}

// TryAcquire takes n tokens without blocking.
//
// It fails with a *LimitError (unwrapping to ErrLimitExceeded) when the
// bucket holds fewer than n tokens or when blocked acquirers are already
// queued; jumping the queue would starve them.
func (b *TokenBucket) TryAcquire(n float64) error {
	if n <= 0 {
		return nil
	}
	if n > b.capacity {
		return ErrRequestTooLarge
	}

	b.mu.Lock()
	b.refillLocked()
	if b.waiters.Len() > 0 || b.tokens < n {
		available := b.tokens
		b.mu.Unlock()
		b.metrics.RecordRateLimit(false)
		return &LimitError{Need: n, Available: available}
	}
	b.tokens -= n
	b.mu.Unlock()
	b.metrics.RecordRateLimit(true)
	return nil
}

// Acquire takes n tokens, blocking until they are available or ctx is done.
//
// Waiters are granted strictly in arrival order. A cancelled waiter is
// removed from the queue without consuming tokens. Use a context deadline
// for a bounded wait.
func (b *TokenBucket) Acquire(ctx context.Context, n float64) error {
	if n <= 0 {
		return nil
	}
	if n > b.capacity {
		return ErrRequestTooLarge
	}

	b.mu.Lock()
	b.refillLocked()
	if b.waiters.Len() == 0 && b.tokens >= n {
		b.tokens -= n
		b.mu.Unlock()
		b.metrics.RecordRateLimit(true)
		return nil
	}

	w := &waiter{n: n, head: make(chan struct{})}
	elem := b.waiters.PushBack(w)
	if b.waiters.Front() == elem {
		w.headed = true
		close(w.head)
	}
	b.mu.Unlock()

	// Wait to reach the queue head.
	select {
	case <-w.head:
	case <-ctx.Done():
		b.abandon(elem)
		b.metrics.RecordRateLimit(false)
		return ctx.Err()
	}

	// Head of the queue: sleep on a timer sized to the deficit, re-check
	// after each wake. Tokens only arrive with time, so nobody behind us
	// can be served first.
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= n {
			b.tokens -= n
			b.waiters.Remove(elem)
			b.promoteLocked()
			b.mu.Unlock()
			b.metrics.RecordRateLimit(true)
			return nil
		}
		deficit := n - b.tokens
		rate := b.rate
		b.mu.Unlock()

		d := time.Duration(deficit / rate * float64(time.Second))
		if d <= 0 {
			d = time.Nanosecond
		}
		timer := b.clock.Timer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			b.abandon(elem)
			b.metrics.RecordRateLimit(false)
			return ctx.Err()
		}
	}
}

// abandon removes a cancelled waiter and promotes its successor.
func (b *TokenBucket) abandon(elem *list.Element) {
	b.mu.Lock()
	b.waiters.Remove(elem)
	b.promoteLocked()
	b.mu.Unlock()
}

// Tokens refreshes the bucket from the clock and returns the current count.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// Rate returns the configured refill rate in tokens per second.
func (b *TokenBucket) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

// Capacity returns the burst capacity.
func (b *TokenBucket) Capacity() float64 { return b.capacity }

// SetRate re-tunes the refill rate at runtime.
//
// Accrual up to now is settled at the old rate first. A waiter already
// parked on a timer re-checks on wake, so a rate change takes effect for it
// no later than its next wake-up.
func (b *TokenBucket) SetRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	b.rate = rate
	return nil
}
