package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// PerKey manages one TokenBucket per string key, creating buckets lazily.
//
// Typical use is throttling noisy operations per resource name ("disk",
// "gpu", ...) without pre-registering every key.
type PerKey struct {
	rate     float64
	capacity float64
	optFns   []func(*Options)
	clk      clock.Clock

	mu      sync.RWMutex
	buckets map[string]*entry
}

type entry struct {
	bucket   *TokenBucket
	lastUsed time.Time
}

// NewPerKey creates a per-key limiter. Every key's bucket is created with
// the same rate, capacity and options.
func NewPerKey(rate, capacity float64, optFns ...func(*Options)) (*PerKey, error) {
	// Validate eagerly so Get never has to return an error.
	if _, err := NewTokenBucket(rate, capacity, optFns...); err != nil {
		return nil, err
	}

	o := Options{Clock: clock.New()}
	for _, fn := range optFns {
		fn(&o)
	}

	return &PerKey{
		rate:     rate,
		capacity: capacity,
		optFns:   optFns,
		clk:      o.Clock,
		buckets:  make(map[string]*entry),
	}, nil
}

// Get returns the bucket for key, creating it on first use.
func (p *PerKey) Get(key string) *TokenBucket {
	now := p.clk.Now()

	p.mu.RLock()
	e, ok := p.buckets[key]
	p.mu.RUnlock()
	if ok {
		p.touch(e, now)
		return e.bucket
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.buckets[key]; ok {
		e.lastUsed = now
		return e.bucket
	}
	b, _ := NewTokenBucket(p.rate, p.capacity, p.optFns...) // validated in NewPerKey
	p.buckets[key] = &entry{bucket: b, lastUsed: now}
	return b
}

func (p *PerKey) touch(e *entry, now time.Time) {
	p.mu.Lock()
	e.lastUsed = now
	p.mu.Unlock()
}

// Acquire blocks on the bucket for key.
func (p *PerKey) Acquire(ctx context.Context, key string, n float64) error {
	return p.Get(key).Acquire(ctx, n)
}

// TryAcquire is the non-blocking variant of Acquire.
func (p *PerKey) TryAcquire(key string, n float64) error {
	return p.Get(key).TryAcquire(n)
}

// Len returns the number of live buckets.
func (p *PerKey) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.buckets)
}

// Sweep removes buckets that have not been used for at least idleFor and
// returns how many were dropped. A swept key is recreated (full) on next use.
func (p *PerKey) Sweep(idleFor time.Duration) int {
	cutoff := p.clk.Now().Add(-idleFor)

	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for key, e := range p.buckets {
		if e.lastUsed.Before(cutoff) {
			delete(p.buckets, key)
			removed++
		}
	}
	return removed
}
