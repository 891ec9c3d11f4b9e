package batch

import (
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
	// ErrClosed is returned by Add and Flush after Close.
	ErrClosed = errors.New("batch writer is closed")
	// ErrNilSink is returned when constructing a writer without a sink.
	ErrNilSink = errors.New("sink must not be nil")
)

// Sink receives a flushed batch. It is never called with an empty batch and
// never concurrently with itself. A batch whose delivery fails stays
// buffered and is redelivered by a later flush, so a sink must either fail
// without side effects or tolerate seeing the same items again.
type Sink[T any] func(ctx context.Context, items []T) error

// Options contains configuration for a Writer.
type Options struct {
	// BatchSize triggers a synchronous flush when the buffer reaches it.
	BatchSize int

	// FlushInterval triggers a timed flush of partial buffers.
	FlushInterval time.Duration

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock

	// Logger receives flush failures. Defaults to a discard logger.
	Logger *slog.Logger

	// Metrics receives per-flush signals.
	Metrics metrics.Collector
}

// DefaultOptions are the settings used when NewWriter is called without
// overrides.
var DefaultOptions = Options{
	BatchSize:     100,
	FlushInterval: 5 * time.Second,
}

// Writer accumulates items and flushes them to a sink in batches.
type Writer[T any] struct {
	opts    Options
	sink    Sink[T]
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Collector

	// mu guards buf, closed and lastErr. The sink runs under mu, so Adds
	// block during a flush; that is what keeps delivery in Add order.
	mu      sync.Mutex
	buf     []T
	closed  bool
	lastErr error

	stop chan struct{}
	done chan struct{}
}

// NewWriter creates a writer delivering batches to sink.
func NewWriter[T any](sink Sink[T], optFns ...func(*Options)) (*Writer[T], error) {
	o := DefaultOptions
	o.Clock = clock.New()
	o.Logger = slog.New(slog.DiscardHandler)
	o.Metrics = metrics.Default
	for _, fn := range optFns {
		fn(&o)
	}

	if sink == nil {
		return nil, ErrNilSink
	}
	if o.BatchSize < 1 {
		o.BatchSize = DefaultOptions.BatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultOptions.FlushInterval
	}

	w := &Writer[T]{
		opts:    o,
		sink:    sink,
		clock:   o.Clock,
		logger:  o.Logger,
		metrics: o.Metrics,
		buf:     make([]T, 0, o.BatchSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go w.runTicker()

	return w, nil
}

// Add buffers item. Reaching BatchSize flushes synchronously, so a sink
// error for that batch is observed by the caller that filled it; that
// caller's item is then removed and owned by the caller to retry, while
// earlier accepted items stay buffered for a later flush. Add also surfaces
// any error latched by an earlier timed flush, without buffering item.
func (w *Writer[T]) Add(ctx context.Context, item T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.takeErrLocked(); err != nil {
		return err
	}

	w.buf = append(w.buf, item)
	if len(w.buf) >= w.opts.BatchSize {
		if err := w.flushLocked(ctx); err != nil {
			// The rejected call must not leave its item behind: the
			// caller retries it, or its slot is never acknowledged.
			w.buf = w.buf[:len(w.buf)-1]
			return err
		}
	}
	return nil
}

// Flush delivers the buffered items now. It is idempotent: flushing an
// empty buffer is a no-op.
func (w *Writer[T]) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.takeErrLocked(); err != nil {
		return err
	}
	return w.flushLocked(ctx)
}

// takeErrLocked returns and clears the error latched by a timed flush.
func (w *Writer[T]) takeErrLocked() error {
	err := w.lastErr
	w.lastErr = nil
	return err
}

// flushLocked hands the buffer to the sink. Callers must hold w.mu.
func (w *Writer[T]) flushLocked(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}

	items := w.buf
	w.buf = make([]T, 0, w.opts.BatchSize)

	start := w.clock.Now()
	err := w.sink(ctx, items)
	w.metrics.RecordFlush(len(items), w.clock.Since(start), err)
	if err != nil {
		// The failed batch stays buffered, in order, so a later Flush or
		// Close can still deliver every acknowledged item.
		w.buf = append(items, w.buf...)
		w.logger.Error("batch flush failed",
			"items", len(items),
			"error", err,
		)
		return fmt.Errorf("failed to flush batch of %d items: %w", len(items), err)
	}
	return nil
}

// runTicker flushes partial buffers every FlushInterval.
func (w *Writer[T]) runTicker() {
	defer close(w.done)

	ticker := w.clock.Ticker(w.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				return
			}
			if err := w.flushLocked(context.Background()); err != nil {
				// Latched; the next Add or Flush reports it.
				w.lastErr = err
			}
			w.mu.Unlock()
		case <-w.stop:
			return
		}
	}
}

// Len returns the number of buffered items.
func (w *Writer[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Close stops the timed flusher, flushes all buffered items and rejects
// further Adds. Close is idempotent; the first call's error is the final
// flush result.
func (w *Writer[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stop)

	err := w.takeErrLocked()
	if flushErr := w.flushLocked(ctx); flushErr != nil && err == nil {
		err = flushErr
	}
	w.mu.Unlock()

	<-w.done
	return err
}
