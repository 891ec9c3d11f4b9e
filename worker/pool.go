package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/grit/metrics"
	"github.com/hupe1980/grit/syncx"
)

var (
	// ErrQueueFull is returned by Submit when the task queue is at capacity.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrClosed is returned by submissions to a closed pool and resolves
	// the handles of tasks cancelled before they started.
	ErrClosed = errors.New("worker pool is closed")
	// ErrTaskPanicked resolves the handle of a task that panicked.
	ErrTaskPanicked = errors.New("task panicked")
	// ErrInvalidOptions is returned by New for inconsistent sizing options.
	ErrInvalidOptions = errors.New("invalid worker pool options")
)

// Options contains configuration for a Pool.
type Options struct {
	// MinWorkers is the number of workers kept alive regardless of load.
	MinWorkers int

	// MaxWorkers bounds the worker count under load.
	MaxWorkers int

	// QueueSize bounds the number of queued (not yet started) tasks.
	QueueSize int

	// ScaleInterval is the period of the scaling check.
	ScaleInterval time.Duration

	// ScaleUpThreshold is the queue occupancy fraction (0..1] above which
	// a check counts toward growing the pool.
	ScaleUpThreshold float64

	// ScaleDownThreshold is the occupancy fraction below which a check
	// counts toward shrinking the pool, provided a worker is idle.
	ScaleDownThreshold float64

	// GrowChecks is how many consecutive busy checks trigger adding one
	// worker.
	GrowChecks int

	// ShrinkChecks is how many consecutive quiet checks trigger retiring
	// one idle worker.
	ShrinkChecks int

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock

	// Logger receives scaling and panic logs. Defaults to a discard logger.
	Logger *slog.Logger

	// Metrics receives submit/task/scale signals.
	Metrics metrics.Collector
}

// DefaultOptions are the settings used when New is called without overrides.
var DefaultOptions = Options{
	MinWorkers:         1,
	MaxWorkers:         0, // runtime.NumCPU() at construction
	QueueSize:          256,
	ScaleInterval:      time.Second,
	ScaleUpThreshold:   0.5,
	ScaleDownThreshold: 0.1,
	GrowChecks:         3,
	ShrinkChecks:       3,
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers    int
	Busy       int
	QueueDepth int
	Submitted  int64
	Completed  int64
	Failed     int64
	Rejected   int64
	Panicked   int64
}

// Pool is a self-scaling worker pool.
type Pool struct {
	opts    Options
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Collector

	queue *syncx.BoundedQueue[*Handle]

	// taskCtx is handed to every task; CloseNow cancels it so in-flight
	// tasks can stop cooperatively.
	taskCtx    context.Context
	taskCancel context.CancelFunc

	// workerCtx parents each worker's pop context; CloseNow cancels it to
	// release idle workers immediately.
	workerCtx    context.Context
	workerCancel context.CancelFunc

	mu      sync.Mutex
	workers map[*workerEntry]struct{}

	closed     atomic.Bool
	stopScaler chan struct{}
	scalerDone chan struct{}
	wg         sync.WaitGroup

	busy      syncx.Counter
	submitted syncx.Counter
	completed syncx.Counter
	failed    syncx.Counter
	rejected  syncx.Counter
	panicked  syncx.Counter

	growStreak   int
	shrinkStreak int
}

type workerEntry struct {
	cancel context.CancelFunc
}

// New creates a pool and starts MinWorkers workers plus the scaling loop.
func New(optFns ...func(*Options)) (*Pool, error) {
	o := DefaultOptions
	o.Clock = clock.New()
	o.Logger = slog.New(slog.DiscardHandler)
	o.Metrics = metrics.Default
	for _, fn := range optFns {
		fn(&o)
	}

	if o.MaxWorkers <= 0 {
		o.MaxWorkers = runtime.NumCPU()
	}
	if o.MinWorkers < 1 {
		o.MinWorkers = 1
	}
	if o.MinWorkers > o.MaxWorkers {
		return nil, fmt.Errorf("%w: min workers %d > max workers %d", ErrInvalidOptions, o.MinWorkers, o.MaxWorkers)
	}
	if o.QueueSize < 1 {
		return nil, fmt.Errorf("%w: queue size %d", ErrInvalidOptions, o.QueueSize)
	}
	if o.ScaleInterval <= 0 {
		o.ScaleInterval = DefaultOptions.ScaleInterval
	}
	if o.GrowChecks < 1 {
		o.GrowChecks = 1
	}
	if o.ShrinkChecks < 1 {
		o.ShrinkChecks = 1
	}

	queue, err := syncx.NewBoundedQueue[*Handle](o.QueueSize)
	if err != nil {
		return nil, err
	}

	taskCtx, taskCancel := context.WithCancel(context.Background())
	workerCtx, workerCancel := context.WithCancel(context.Background())

	p := &Pool{
		opts:         o,
		clock:        o.Clock,
		logger:       o.Logger,
		metrics:      o.Metrics,
		queue:        queue,
		taskCtx:      taskCtx,
		taskCancel:   taskCancel,
		workerCtx:    workerCtx,
		workerCancel: workerCancel,
		workers:      make(map[*workerEntry]struct{}),
		stopScaler:   make(chan struct{}),
		scalerDone:   make(chan struct{}),
	}

	p.mu.Lock()
	for range o.MinWorkers {
		p.spawnLocked()
	}
	p.mu.Unlock()

	go p.runScaler()

	return p, nil
}

// Submit enqueues fn without blocking.
//
// A full queue fails with ErrQueueFull; a closed pool with ErrClosed. The
// returned handle resolves when the task finishes. Use SubmitWait when
// backpressure should block the producer instead.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) (*Handle, error) {
	h, err := p.submit(ctx, fn, false)
	return h, err
}

// SubmitWait enqueues fn, blocking while the queue is full until space
// frees up or ctx is done. Bound the wait with a context deadline.
func (p *Pool) SubmitWait(ctx context.Context, fn func(context.Context) error) (*Handle, error) {
	return p.submit(ctx, fn, true)
}

func (p *Pool) submit(ctx context.Context, fn func(context.Context) error, wait bool) (*Handle, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil task", ErrInvalidOptions)
	}
	if p.closed.Load() {
		p.rejected.Inc()
		p.metrics.RecordSubmit(ErrClosed)
		return nil, ErrClosed
	}

	h := newHandle(fn)

	var err error
	if wait {
		err = p.queue.Push(ctx, h)
	} else {
		err = p.queue.TryPush(h)
	}
	switch {
	case err == nil:
		p.submitted.Inc()
		p.metrics.RecordSubmit(nil)
		return h, nil
	case errors.Is(err, syncx.ErrFull):
		p.rejected.Inc()
		p.metrics.RecordSubmit(ErrQueueFull)
		return nil, ErrQueueFull
	case errors.Is(err, syncx.ErrClosed):
		p.rejected.Inc()
		p.metrics.RecordSubmit(ErrClosed)
		return nil, ErrClosed
	default:
		p.rejected.Inc()
		p.metrics.RecordSubmit(err)
		return nil, err
	}
}

// Go submits a result-carrying task to p and returns its Future.
func Go[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{}
	h, err := p.Submit(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		f.val = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.h = h
	return f, nil
}

// spawnLocked starts one worker. Callers must hold p.mu and have checked
// the MaxWorkers bound.
func (p *Pool) spawnLocked() {
	ctx, cancel := context.WithCancel(p.workerCtx)
	entry := &workerEntry{cancel: cancel}
	p.workers[entry] = struct{}{}
	p.wg.Add(1)
	go p.runWorker(ctx, entry)
}

func (p *Pool) runWorker(ctx context.Context, entry *workerEntry) {
	defer func() {
		p.mu.Lock()
		delete(p.workers, entry)
		p.mu.Unlock()
		p.wg.Done()
	}()

	for {
		h, err := p.queue.Pop(ctx)
		if err != nil {
			// Queue drained after Close, or this worker was retired.
			return
		}
		p.runTask(h)
	}
}

func (p *Pool) runTask(h *Handle) {
	if !h.begin() {
		// Already resolved by CloseNow while queued.
		return
	}

	p.busy.Inc()
	start := p.clock.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 64<<10)
				buf = buf[:runtime.Stack(buf, false)]
				p.logger.Error("task panicked",
					"panic", r,
					"stack", string(buf),
				)
				p.panicked.Inc()
				err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			}
		}()
		err = h.fn(p.taskCtx)
	}()

	p.busy.Dec()
	p.completed.Inc()
	if err != nil {
		p.failed.Inc()
	}
	p.metrics.RecordTask(p.clock.Since(start), err)
	h.complete(err)
}

// runScaler periodically adjusts the worker count toward the load.
func (p *Pool) runScaler() {
	defer close(p.scalerDone)

	ticker := p.clock.Ticker(p.opts.ScaleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.scaleCheck()
		case <-p.stopScaler:
			return
		}
	}
}

func (p *Pool) scaleCheck() {
	occupancy := float64(p.queue.Len()) / float64(p.queue.Cap())
	busy := int(p.busy.Load())

	p.mu.Lock()
	workers := len(p.workers)

	switch {
	case occupancy >= p.opts.ScaleUpThreshold && workers < p.opts.MaxWorkers:
		p.shrinkStreak = 0
		p.growStreak++
		if p.growStreak >= p.opts.GrowChecks {
			p.growStreak = 0
			p.spawnLocked()
			workers++
			p.logger.Debug("worker pool scaled up",
				"workers", workers,
				"queue_occupancy", occupancy,
			)
		}

	case occupancy <= p.opts.ScaleDownThreshold && busy < workers && workers > p.opts.MinWorkers:
		p.growStreak = 0
		p.shrinkStreak++
		if p.shrinkStreak >= p.opts.ShrinkChecks {
			p.shrinkStreak = 0
			p.retireLocked()
			workers--
			p.logger.Debug("worker pool scaled down",
				"workers", workers,
				"queue_occupancy", occupancy,
			)
		}

	default:
		p.growStreak = 0
		p.shrinkStreak = 0
	}
	p.mu.Unlock()

	p.metrics.RecordScale(workers)
}

// retireLocked cancels one worker's pop context. The worker finishes its
// current task, if any, before exiting.
func (p *Pool) retireLocked() {
	for entry := range p.workers {
		entry.cancel()
		return
	}
}

// Close stops intake and drains: queued and in-flight tasks run to
// completion before workers exit. It returns ctx.Err() if ctx expires
// first; the pool keeps draining in the background in that case.
func (p *Pool) Close(ctx context.Context) error {
	if p.closed.CompareAndSwap(false, true) {
		p.queue.Close()
		close(p.stopScaler)
	}
	<-p.scalerDone

	// Workers exit once the queue is drained. Retired-but-blocked workers
	// already exited via their own context.
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.taskCancel()
		p.workerCancel()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseNow stops intake, resolves queued tasks with ErrClosed and signals
// in-flight tasks through their context. In-flight tasks are cancelled
// cooperatively: CloseNow waits for them to return.
func (p *Pool) CloseNow() {
	if p.closed.CompareAndSwap(false, true) {
		p.queue.Close()
		close(p.stopScaler)
	}
	<-p.scalerDone

	// Cancel queued tasks before workers can claim them.
	for {
		h, err := p.queue.TryPop()
		if err != nil {
			break
		}
		if h.state.CompareAndSwap(statePending, stateDone) {
			h.err = ErrClosed
			close(h.done)
		}
	}

	p.taskCancel()
	p.workerCancel()
	p.wg.Wait()
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	workers := len(p.workers)
	p.mu.Unlock()

	return PoolStats{
		Workers:    workers,
		Busy:       int(p.busy.Load()),
		QueueDepth: p.queue.Len(),
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
		Panicked:   p.panicked.Load(),
	}
}

// Workers returns the current worker count.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
