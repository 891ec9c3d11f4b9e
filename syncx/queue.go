package syncx

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned by non-blocking pushes when the queue is at capacity.
	ErrFull = errors.New("queue is full")
	// ErrEmpty is returned by non-blocking pops when the queue holds no items.
	ErrEmpty = errors.New("queue is empty")
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue is closed")
	// ErrTimedOut is returned when a timed push or pop expires.
	ErrTimedOut = errors.New("operation timed out")
	// ErrInvalidCapacity is returned when constructing a queue with capacity < 1.
	ErrInvalidCapacity = errors.New("capacity must be positive")
)

// BoundedQueue is a thread-safe FIFO queue with a fixed capacity.
//
// Producers block (or fail, for the Try/Timeout variants) while the queue is
// full; consumers block while it is empty. After Close, pushes fail with
// ErrClosed and pops drain the remaining items before reporting ErrClosed.
//
// The implementation is a buffered channel plus a close latch: blocking, not
// lock-free. Items are delivered in push order to exactly one consumer.
type BoundedQueue[T any] struct {
	ch   chan T
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewBoundedQueue creates a queue holding at most capacity items.
func NewBoundedQueue[T any](capacity int) (*BoundedQueue[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &BoundedQueue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}, nil
}

// Push enqueues v, blocking while the queue is full.
// It returns ErrClosed if the queue is closed and ctx.Err() if the context
// is cancelled first.
func (q *BoundedQueue[T]) Push(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush enqueues v without blocking.
// It returns ErrFull when the queue is at capacity.
func (q *BoundedQueue[T]) TryPush(v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

// PushTimeout enqueues v, waiting at most d for free capacity.
func (q *BoundedQueue[T]) PushTimeout(v T, d time.Duration) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-timer.C:
		return ErrTimedOut
	}
}

// Pop dequeues the oldest item, blocking while the queue is empty.
// After Close, remaining items are drained before ErrClosed is reported.
func (q *BoundedQueue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-q.ch:
		return v, nil
	default:
	}

	select {
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		// A concurrent push may have landed between the selects.
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryPop dequeues without blocking.
// It returns ErrEmpty when nothing is queued, or ErrClosed once the queue is
// closed and drained.
func (q *BoundedQueue[T]) TryPop() (T, error) {
	var zero T

	select {
	case v := <-q.ch:
		return v, nil
	default:
	}

	select {
	case <-q.done:
		return zero, ErrClosed
	default:
		return zero, ErrEmpty
	}
}

// PopTimeout dequeues, waiting at most d for an item.
func (q *BoundedQueue[T]) PopTimeout(d time.Duration) (T, error) {
	var zero T

	select {
	case v := <-q.ch:
		return v, nil
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-timer.C:
		return zero, ErrTimedOut
	}
}

// Close marks the queue closed. It is idempotent and does not discard queued
// items; consumers drain them before seeing ErrClosed.
func (q *BoundedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the number of queued items.
func (q *BoundedQueue[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *BoundedQueue[T]) Cap() int { return cap(q.ch) }
