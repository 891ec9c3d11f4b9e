package worker

import (
	"context"
	"sync/atomic"
)

// Task states tracked by a Handle.
const (
	statePending int32 = iota
	stateRunning
	stateDone
)

// Handle tracks one submitted task. The pool resolves it exactly once, with
// the task's error, a panic error, or ErrClosed for tasks cancelled before
// they started.
type Handle struct {
	fn    func(context.Context) error
	state atomic.Int32
	err   error // written before done is closed
	done  chan struct{}
}

func newHandle(fn func(context.Context) error) *Handle {
	return &Handle{fn: fn, done: make(chan struct{})}
}

// begin claims the task for execution. It fails if the task was already
// cancelled (CloseNow resolved it while still queued).
func (h *Handle) begin() bool {
	return h.state.CompareAndSwap(statePending, stateRunning)
}

// complete resolves the handle. Only the first call wins.
func (h *Handle) complete(err error) {
	for {
		s := h.state.Load()
		if s == stateDone {
			return
		}
		if h.state.CompareAndSwap(s, stateDone) {
			h.err = err
			close(h.done)
			return
		}
	}
}

// Done returns a channel closed when the task has finished or was cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's result. It is nil until Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes and returns its error, or returns
// ctx.Err() if the context is done first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Future is a Handle carrying a typed result. Created by Go.
type Future[T any] struct {
	h   *Handle
	val T // written by the task before the handle resolves
}

// Done returns a channel closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.h.Done() }

// Wait blocks until the task finishes and returns its result.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if err := f.h.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return f.val, nil
}
