// Package ratelimit implements a token-bucket rate limiter.
//
// A bucket holds at most Capacity tokens and gains Rate tokens per second.
// Tokens are refilled lazily from the clock on every state access; there is
// no background refill goroutine. Blocked acquirers park on a timer sized to
// their deficit instead of polling.
//
// # Fairness
//
// Waiters are served strictly in arrival order: a later small request never
// overtakes an earlier large one, and non-blocking TryAcquire fails while
// any waiter is queued.
//
// # Quick Start
//
//	tb, _ := ratelimit.NewTokenBucket(100, 200) // 100 tokens/s, burst 200
//	if err := tb.Acquire(ctx, 1); err != nil {
//	    return err
//	}
//
//	if err := tb.TryAcquire(5); errors.Is(err, ratelimit.ErrLimitExceeded) {
//	    // shed load
//	}
package ratelimit
