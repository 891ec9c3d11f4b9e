// Package pool provides a bounded generic object pool.
//
// A pool hands out reusable instances produced by a caller-supplied factory.
// Released instances pass through a caller-supplied reset function before
// re-entering the free list, so borrowers always receive a clean object. The
// factory/reset pair is the single customization point; there is no
// per-instance construction hook.
//
// The number of simultaneously borrowed instances never exceeds Capacity.
// Acquire fails fast with ErrExhausted at the limit; AcquireWait blocks on a
// weighted semaphore until an instance is released or the context is done.
//
// # Quick Start
//
//	p, err := pool.New(func() (*bytes.Buffer, error) {
//	    return new(bytes.Buffer), nil
//	}, func(o *pool.Options[*bytes.Buffer]) {
//	    o.Capacity = 32
//	    o.Prealloc = 4
//	    o.Reset = func(b *bytes.Buffer) { b.Reset() }
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	buf, err := p.Acquire(ctx)
//	if err != nil {
//	    return err // pool.ErrExhausted under load
//	}
//	defer p.Release(buf)
package pool
