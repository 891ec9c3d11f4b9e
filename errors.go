package grit

import (
	"github.com/hupe1980/grit/breaker"
	"github.com/hupe1980/grit/cache"
	"github.com/hupe1980/grit/eventstore"
	"github.com/hupe1980/grit/mlog"
	"github.com/hupe1980/grit/pool"
	"github.com/hupe1980/grit/ratelimit"
	"github.com/hupe1980/grit/worker"
)

// The toolkit's error kinds, re-exported so callers matching with errors.Is
// can import a single package.
var (
	// ErrQueueFull is returned by Submit when the worker queue is at
	// capacity.
	ErrQueueFull = worker.ErrQueueFull

	// ErrCircuitOpen is returned while a breaker rejects calls.
	ErrCircuitOpen = breaker.ErrOpen

	// ErrRateLimitExceeded is returned by non-blocking token acquisition
	// when the bucket cannot satisfy the request.
	ErrRateLimitExceeded = ratelimit.ErrLimitExceeded

	// ErrPoolExhausted is returned by non-blocking Acquire when all pooled
	// instances are in use.
	ErrPoolExhausted = pool.ErrExhausted

	// ErrLogCorrupted matches mapped-log corruption errors; inspect the
	// *mlog.CorruptionError for the segment and offset.
	ErrLogCorrupted = mlog.ErrCorrupted
)

// Structural error types, re-exported for errors.As.
type (
	// BreakerOpenError carries the breaker name and the earliest retry time.
	BreakerOpenError = breaker.OpenError

	// RateLimitError carries the demanded and available token counts.
	RateLimitError = ratelimit.LimitError

	// CacheLoadError wraps a loader failure for a cache key.
	CacheLoadError = cache.LoadError

	// EventAppendError wraps a failure to persist an event.
	EventAppendError = eventstore.AppendError

	// LogCorruptionError locates a corrupt log record.
	LogCorruptionError = mlog.CorruptionError
)
