// Package resource budgets memory, background concurrency and IO bandwidth
// shared by the toolkit's components.
//
// The controller is advisory: components reserve before they allocate or
// spawn and release when done. A nil *Controller is valid and enforces
// nothing, so optional wiring stays uncluttered.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Options contains configuration for the controller.
type Options struct {
	// MaxMemory is the hard limit for reserved memory in bytes. Zero
	// disables enforcement; usage is still tracked.
	MaxMemory int64

	// MaxWorkers is the maximum number of concurrent background jobs.
	// Zero or negative defaults to 1.
	MaxWorkers int64

	// IORate is the maximum background IO throughput in bytes per second.
	// Zero disables throttling.
	IORate rate.Limit

	// IOBurst is the burst size for the IO throttle. Defaults to one
	// second of IORate.
	IOBurst int
}

// DefaultOptions returns default controller options.
var DefaultOptions = Options{
	MaxMemory:  0,
	MaxWorkers: 1,
	IORate:     0,
}

// Stats is a point-in-time snapshot of the controller's budgets.
type Stats struct {
	MemoryUsed  int64
	MemoryLimit int64
	WorkersBusy int64
	WorkersMax  int64
}

// Controller tracks and enforces the process-wide resource budgets.
// All methods are safe on a nil receiver.
type Controller struct {
	opts Options

	memSem  *semaphore.Weighted // nil when unlimited
	memUsed atomic.Int64

	workerSem  *semaphore.Weighted
	workerBusy atomic.Int64

	ioLimiter *rate.Limiter // nil when unthrottled
}

// NewController creates a controller.
func NewController(optFns ...func(o *Options)) *Controller {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}

	c := &Controller{
		opts:      opts,
		workerSem: semaphore.NewWeighted(opts.MaxWorkers),
	}
	if opts.MaxMemory > 0 {
		c.memSem = semaphore.NewWeighted(opts.MaxMemory)
	}
	if opts.IORate > 0 {
		burst := opts.IOBurst
		if burst <= 0 {
			burst = int(opts.IORate)
		}
		c.ioLimiter = rate.NewLimiter(opts.IORate, burst)
	}
	return c
}

// AcquireMemory reserves n bytes, blocking until the budget allows it or ctx
// is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, n int64) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, n); err != nil {
			return err
		}
	}
	c.memUsed.Add(n)
	return nil
}

// TryAcquireMemory reserves n bytes without blocking.
func (c *Controller) TryAcquireMemory(n int64) bool {
	if c == nil || n <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(n) {
		return false
	}
	c.memUsed.Add(n)
	return true
}

// ReleaseMemory returns n reserved bytes to the budget.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(n)
	}
	c.memUsed.Add(-n)
}

// AcquireWorker reserves a background worker slot, blocking until one is
// free or ctx is canceled.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.workerSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.workerBusy.Add(1)
	return nil
}

// TryAcquireWorker reserves a worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}
	if !c.workerSem.TryAcquire(1) {
		return false
	}
	c.workerBusy.Add(1)
	return true
}

// ReleaseWorker returns a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workerSem.Release(1)
	c.workerBusy.Add(-1)
}

// WaitIO blocks until the IO throttle admits n bytes. Requests beyond the
// burst size are admitted in burst-sized chunks.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// MemoryUsage returns the currently reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// Stats returns a snapshot of the budgets.
func (c *Controller) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		MemoryUsed:  c.memUsed.Load(),
		MemoryLimit: c.opts.MaxMemory,
		WorkersBusy: c.workerBusy.Load(),
		WorkersMax:  c.opts.MaxWorkers,
	}
}
