package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/grit/metrics"
)

var (
	// ErrInvalidBudget is returned when constructing a cache without a
	// positive entry or byte budget.
	ErrInvalidBudget = errors.New("cache needs a positive entry or byte budget")
	// ErrInvalidTTL is returned for negative TTLs.
	ErrInvalidTTL = errors.New("ttl must not be negative")
)

// NoExpiry marks an entry that never expires.
const NoExpiry time.Duration = 1<<63 - 1

// entryOverhead is the fixed per-entry byte charge covering map/list
// bookkeeping. The value is a heuristic, not a measurement.
const entryOverhead = 64

// LoadError reports a failed loader invocation. Nothing is cached for the
// key; the next GetOrLoad retries the loader.
type LoadError struct {
	Key   any
	cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cache loader failed for key %v: %v", e.Key, e.cause)
}

func (e *LoadError) Unwrap() error { return e.cause }

// Reason explains why an entry left the cache.
type Reason int

const (
	// ReasonEvicted means the entry was dropped to satisfy a budget.
	ReasonEvicted Reason = iota
	// ReasonExpired means the entry's TTL elapsed.
	ReasonExpired
	// ReasonReplaced means a Put overwrote the entry.
	ReasonReplaced
	// ReasonRemoved means the caller deleted the entry.
	ReasonRemoved
)

// String returns the reason label used in logs and metrics.
func (r Reason) String() string {
	switch r {
	case ReasonEvicted:
		return "evicted"
	case ReasonExpired:
		return "expired"
	case ReasonReplaced:
		return "replaced"
	case ReasonRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Sizer estimates the byte cost of a value for budget accounting.
type Sizer[K comparable, V any] func(key K, value V) int64

// Options contains configuration for a Cache.
type Options[K comparable, V any] struct {
	// MaxEntries bounds the number of cached entries. 0 disables the
	// entry budget (MaxBytes must then be set).
	MaxEntries int

	// MaxBytes bounds the approximate cached byte size. 0 disables the
	// byte budget (MaxEntries must then be set).
	MaxBytes int64

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration

	// Sizer estimates value sizes. The default recognizes string and
	// []byte values and charges only the fixed overhead for other types.
	Sizer Sizer[K, V]

	// OnEvict is invoked after an entry leaves the cache, outside the
	// cache lock.
	OnEvict func(key K, value V, reason Reason)

	// CleanupInterval is the period of the optional background sweep
	// started by StartCleanup.
	CleanupInterval time.Duration

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock

	// Logger receives debug output. Defaults to a discard logger.
	Logger *slog.Logger

	// Metrics receives hit/miss/eviction signals.
	Metrics metrics.Collector
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits        int64
	Misses      int64
	Loads       int64
	LoadErrors  int64
	Evictions   int64
	Expirations int64
	Entries     int
	Bytes       int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	size      int64
	expiresAt time.Time // zero means no expiry
}

// Cache is a thread-safe TTL + LRU cache.
type Cache[K comparable, V any] struct {
	opts    Options[K, V]
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Collector

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[K]*list.Element
	bytes int64

	group singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	loads       atomic.Int64
	loadErrors  atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// New creates a cache.
//
// Defaults follow the shared toolkit configuration: 1000 entries, 100 MiB,
// 60s default TTL.
func New[K comparable, V any](optFns ...func(*Options[K, V])) (*Cache[K, V], error) {
	o := Options[K, V]{
		MaxEntries: 1000,
		MaxBytes:   100 << 20,
		DefaultTTL: 60 * time.Second,
		Clock:      clock.New(),
		Logger:     slog.New(slog.DiscardHandler),
		Metrics:    metrics.Default,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	if o.MaxEntries <= 0 && o.MaxBytes <= 0 {
		return nil, ErrInvalidBudget
	}
	if o.DefaultTTL < 0 {
		return nil, ErrInvalidTTL
	}
	if o.Sizer == nil {
		o.Sizer = defaultSizer[K, V]
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Minute
	}

	return &Cache[K, V]{
		opts:    o,
		clock:   o.Clock,
		logger:  o.Logger,
		metrics: o.Metrics,
		ll:      list.New(),
		items:   make(map[K]*list.Element),
	}, nil
}

// defaultSizer charges byte-like values their length; everything else only
// carries the fixed per-entry overhead.
func defaultSizer[K comparable, V any](_ K, value V) int64 {
	switch v := any(value).(type) {
	case []byte:
		return int64(len(v))
	case string:
		return int64(len(v))
	default:
		return 0
	}
}

// Get returns the cached value for key.
//
// An expired entry counts as a miss and is removed inline.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V

	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		c.metrics.RecordCacheGet(false)
		return zero, false
	}

	ent := elem.Value.(*entry[K, V])
	if c.expiredLocked(ent) {
		c.removeLocked(elem, ReasonExpired)
		c.mu.Unlock()
		c.misses.Add(1)
		c.metrics.RecordCacheGet(false)
		return zero, false
	}

	c.ll.MoveToFront(elem)
	value := ent.value
	c.mu.Unlock()

	c.hits.Add(1)
	c.metrics.RecordCacheGet(true)
	return value, true
}

// GetOrLoad returns the cached value for key, invoking loader on a miss.
//
// Concurrent callers loading the same key share a single loader invocation.
// The loaded value is stored with the default TTL. A loader error is
// wrapped in a *LoadError and nothing is cached, so the next call retries.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, loader func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		// Re-check: another caller may have finished loading while we
		// queued on the flight group.
		if v, ok := c.Get(ctx, key); ok {
			return v, nil
		}

		c.loads.Add(1)
		value, err := loader(ctx)
		if err != nil {
			c.loadErrors.Add(1)
			return nil, &LoadError{Key: key, cause: err}
		}
		c.Put(ctx, key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Put stores value under key with the default TTL.
func (c *Cache[K, V]) Put(ctx context.Context, key K, value V) {
	c.PutTTL(ctx, key, value, c.opts.DefaultTTL)
}

// PutTTL stores value under key. A ttl of NoExpiry pins the entry until it
// is evicted or replaced; ttl 0 falls back to the default TTL.
func (c *Cache[K, V]) PutTTL(ctx context.Context, key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	var expiresAt time.Time
	if ttl != NoExpiry {
		expiresAt = c.clock.Now().Add(ttl)
	}

	size := entryOverhead + c.opts.Sizer(key, value)

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem, ReasonReplaced)
	}

	ent := &entry[K, V]{key: key, value: value, size: size, expiresAt: expiresAt}
	c.items[key] = c.ll.PushFront(ent)
	c.bytes += size

	c.enforceBudgetsLocked()
	c.mu.Unlock()
}

// expiredLocked reports whether ent's TTL has elapsed.
func (c *Cache[K, V]) expiredLocked(ent *entry[K, V]) bool {
	return !ent.expiresAt.IsZero() && !c.clock.Now().Before(ent.expiresAt)
}

// enforceBudgetsLocked restores the entry and byte budgets, dropping
// expired entries before sacrificing live ones in LRU order.
func (c *Cache[K, V]) enforceBudgetsLocked() {
	if !c.overBudgetLocked() {
		return
	}

	// Expired entries go first, scanning from the cold end.
	for elem := c.ll.Back(); elem != nil && c.overBudgetLocked(); {
		prev := elem.Prev()
		if c.expiredLocked(elem.Value.(*entry[K, V])) {
			c.removeLocked(elem, ReasonExpired)
		}
		elem = prev
	}

	for c.overBudgetLocked() {
		elem := c.ll.Back()
		if elem == nil {
			return
		}
		c.removeLocked(elem, ReasonEvicted)
	}
}

func (c *Cache[K, V]) overBudgetLocked() bool {
	if c.opts.MaxEntries > 0 && c.ll.Len() > c.opts.MaxEntries {
		return true
	}
	if c.opts.MaxBytes > 0 && c.bytes > c.opts.MaxBytes {
		return true
	}
	return false
}

// removeLocked unlinks elem and dispatches the eviction callback.
func (c *Cache[K, V]) removeLocked(elem *list.Element, reason Reason) {
	ent := elem.Value.(*entry[K, V])
	c.ll.Remove(elem)
	delete(c.items, ent.key)
	c.bytes -= ent.size

	switch reason {
	case ReasonExpired:
		c.expirations.Add(1)
	case ReasonEvicted:
		c.evictions.Add(1)
	}
	c.metrics.RecordCacheEvict(reason.String())

	if c.opts.OnEvict != nil {
		// Outside the lock: the callback may call back into the cache.
		go c.opts.OnEvict(ent.key, ent.value, reason)
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(ctx context.Context, key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(elem, ReasonRemoved)
	return true
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.ll.Len() > 0 {
		c.removeLocked(c.ll.Back(), ReasonRemoved)
	}
}

// Len returns the number of entries, including not-yet-purged expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Bytes returns the approximate cached byte size.
func (c *Cache[K, V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Stats returns a snapshot of cache activity.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	entries := c.ll.Len()
	bytes := c.bytes
	c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Loads:       c.loads.Load(),
		LoadErrors:  c.loadErrors.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Entries:     entries,
		Bytes:       bytes,
	}
}

// StartCleanup runs a background sweep every CleanupInterval until ctx is
// done. Most workloads do not need it; expired entries are already purged
// when touched. Use it when keys go cold and their memory matters.
func (c *Cache[K, V]) StartCleanup(ctx context.Context) {
	go func() {
		ticker := c.clock.Ticker(c.opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// sweep removes every expired entry.
func (c *Cache[K, V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.ll.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expiredLocked(elem.Value.(*entry[K, V])) {
			c.removeLocked(elem, ReasonExpired)
		}
		elem = prev
	}
}
