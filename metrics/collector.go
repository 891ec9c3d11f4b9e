// Package metrics defines the toolkit-wide metrics collection surface.
//
// Components report through the [Collector] interface. Three implementations
// ship with the library: [NoopCollector] (default), [BasicCollector]
// (in-memory atomics, useful for debugging and tests) and
// [PrometheusCollector] (client_golang).
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector receives operational signals from toolkit components.
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordSubmit is called for each worker pool submission.
	// err is nil when the task was accepted.
	RecordSubmit(err error)

	// RecordTask is called after a worker finishes a task.
	RecordTask(duration time.Duration, err error)

	// RecordScale is called after a scaling check with the live worker count.
	RecordScale(workers int)

	// RecordBreaker is called on every circuit breaker state transition.
	RecordBreaker(name, state string)

	// RecordRateLimit is called per token acquisition attempt.
	RecordRateLimit(allowed bool)

	// RecordPoolAcquire is called per object pool acquisition attempt.
	RecordPoolAcquire(err error)

	// RecordCacheGet is called per cache lookup.
	RecordCacheGet(hit bool)

	// RecordCacheEvict is called when the cache drops an entry.
	RecordCacheEvict(reason string)

	// RecordAppend is called after each event store append.
	RecordAppend(duration time.Duration, err error)

	// RecordFlush is called after each batch writer flush with the number
	// of items flushed.
	RecordFlush(count int, duration time.Duration, err error)

	// RecordLogWrite is called after each append to the mapped log.
	RecordLogWrite(bytes int)
}

// NoopCollector is a no-op implementation of Collector.
// Use this when metrics collection is not needed.
type NoopCollector struct{}

func (NoopCollector) RecordSubmit(error)                    {}
func (NoopCollector) RecordTask(time.Duration, error)       {}
func (NoopCollector) RecordScale(int)                       {}
func (NoopCollector) RecordBreaker(string, string)          {}
func (NoopCollector) RecordRateLimit(bool)                  {}
func (NoopCollector) RecordPoolAcquire(error)               {}
func (NoopCollector) RecordCacheGet(bool)                   {}
func (NoopCollector) RecordCacheEvict(string)               {}
func (NoopCollector) RecordAppend(time.Duration, error)     {}
func (NoopCollector) RecordFlush(int, time.Duration, error) {}
func (NoopCollector) RecordLogWrite(int)                    {}

// Default is the collector components fall back to when none is configured.
var Default Collector = NoopCollector{}

// BasicCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicCollector struct {
	Submits          atomic.Int64
	SubmitRejections atomic.Int64
	Tasks            atomic.Int64
	TaskErrors       atomic.Int64
	TaskTotalNanos   atomic.Int64
	Workers          atomic.Int64
	BreakerChanges   atomic.Int64
	Allowed          atomic.Int64
	Limited          atomic.Int64
	PoolAcquires     atomic.Int64
	PoolExhaustions  atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	CacheEvictions   atomic.Int64
	Appends          atomic.Int64
	AppendErrors     atomic.Int64
	AppendTotalNanos atomic.Int64
	Flushes          atomic.Int64
	FlushErrors      atomic.Int64
	FlushedItems     atomic.Int64
	LogBytes         atomic.Int64
}

// RecordSubmit implements Collector.
func (b *BasicCollector) RecordSubmit(err error) {
	b.Submits.Add(1)
	if err != nil {
		b.SubmitRejections.Add(1)
	}
}

// RecordTask implements Collector.
func (b *BasicCollector) RecordTask(duration time.Duration, err error) {
	b.Tasks.Add(1)
	b.TaskTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TaskErrors.Add(1)
	}
}

// RecordScale implements Collector.
func (b *BasicCollector) RecordScale(workers int) {
	b.Workers.Store(int64(workers))
}

// RecordBreaker implements Collector.
func (b *BasicCollector) RecordBreaker(name, state string) {
	b.BreakerChanges.Add(1)
}

// RecordRateLimit implements Collector.
func (b *BasicCollector) RecordRateLimit(allowed bool) {
	if allowed {
		b.Allowed.Add(1)
	} else {
		b.Limited.Add(1)
	}
}

// RecordPoolAcquire implements Collector.
func (b *BasicCollector) RecordPoolAcquire(err error) {
	b.PoolAcquires.Add(1)
	if err != nil {
		b.PoolExhaustions.Add(1)
	}
}

// RecordCacheGet implements Collector.
func (b *BasicCollector) RecordCacheGet(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// RecordCacheEvict implements Collector.
func (b *BasicCollector) RecordCacheEvict(reason string) {
	b.CacheEvictions.Add(1)
}

// RecordAppend implements Collector.
func (b *BasicCollector) RecordAppend(duration time.Duration, err error) {
	b.Appends.Add(1)
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordFlush implements Collector.
func (b *BasicCollector) RecordFlush(count int, duration time.Duration, err error) {
	b.Flushes.Add(1)
	b.FlushedItems.Add(int64(count))
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordLogWrite implements Collector.
func (b *BasicCollector) RecordLogWrite(bytes int) {
	b.LogBytes.Add(int64(bytes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicCollector) GetStats() BasicStats {
	return BasicStats{
		Submits:          b.Submits.Load(),
		SubmitRejections: b.SubmitRejections.Load(),
		Tasks:            b.Tasks.Load(),
		TaskErrors:       b.TaskErrors.Load(),
		TaskAvgNanos:     b.avgTaskNanos(),
		Workers:          b.Workers.Load(),
		BreakerChanges:   b.BreakerChanges.Load(),
		Allowed:          b.Allowed.Load(),
		Limited:          b.Limited.Load(),
		PoolAcquires:     b.PoolAcquires.Load(),
		PoolExhaustions:  b.PoolExhaustions.Load(),
		CacheHits:        b.CacheHits.Load(),
		CacheMisses:      b.CacheMisses.Load(),
		CacheEvictions:   b.CacheEvictions.Load(),
		Appends:          b.Appends.Load(),
		AppendErrors:     b.AppendErrors.Load(),
		AppendAvgNanos:   b.avgAppendNanos(),
		Flushes:          b.Flushes.Load(),
		FlushErrors:      b.FlushErrors.Load(),
		FlushedItems:     b.FlushedItems.Load(),
		LogBytes:         b.LogBytes.Load(),
	}
}

func (b *BasicCollector) avgTaskNanos() int64 {
	count := b.Tasks.Load()
	if count == 0 {
		return 0
	}
	return b.TaskTotalNanos.Load() / count
}

func (b *BasicCollector) avgAppendNanos() int64 {
	count := b.Appends.Load()
	if count == 0 {
		return 0
	}
	return b.AppendTotalNanos.Load() / count
}

// BasicStats is a snapshot of BasicCollector state.
type BasicStats struct {
	Submits          int64
	SubmitRejections int64
	Tasks            int64
	TaskErrors       int64
	TaskAvgNanos     int64
	Workers          int64
	BreakerChanges   int64
	Allowed          int64
	Limited          int64
	PoolAcquires     int64
	PoolExhaustions  int64
	CacheHits        int64
	CacheMisses      int64
	CacheEvictions   int64
	Appends          int64
	AppendErrors     int64
	AppendAvgNanos   int64
	Flushes          int64
	FlushErrors      int64
	FlushedItems     int64
	LogBytes         int64
}
