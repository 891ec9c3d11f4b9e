// Package cache provides a generic in-memory cache with TTL expiry and LRU
// eviction under entry-count and byte-size budgets.
//
// Expired entries are purged lazily when they are touched by Get/Put; an
// optional background sweep can be started for caches whose keys go cold.
// Loader failures propagate to the caller and are never cached.
//
// Byte accounting is approximate: each entry is charged a fixed overhead
// plus the Sizer estimate, and budgets are enforced to within one entry.
// Treat MaxBytes as a working-set target, not a hard memory bound.
//
// # Quick Start
//
//	c, _ := cache.New[string, []byte](func(o *cache.Options[string, []byte]) {
//	    o.MaxEntries = 1024
//	    o.DefaultTTL = time.Minute
//	})
//
//	v, err := c.GetOrLoad(ctx, "cpu-topology", func(ctx context.Context) ([]byte, error) {
//	    return readTopology(ctx) // concurrent callers share one load
//	})
package cache
