// Package syncx provides small synchronization primitives shared by the
// toolkit: a bounded FIFO queue, an atomic counter and a read-write lock
// wrapper with a documented fairness contract.
//
// # Guarantees
//
// All primitives here are blocking, channel- or mutex-based implementations.
// None of them are lock-free; waiters park instead of spinning. Operations
// that can block take either a context.Context or an explicit timeout.
//
// # Quick Start
//
//	q, _ := syncx.NewBoundedQueue[int](64)
//	_ = q.Push(ctx, 1)       // blocks while full
//	err := q.TryPush(2)      // syncx.ErrFull when full
//	v, err := q.Pop(ctx)     // blocks while empty
//
//	var c syncx.Counter
//	c.Inc()
//
//	var l syncx.RWLock
//	l.WithRead(func() { ... })
package syncx
