// Package breaker implements the circuit breaker pattern with exponential
// recovery backoff.
//
// A breaker guards one operation. While Closed, calls pass through and
// failures are counted inside a sliding window. Reaching the failure
// threshold opens the circuit: calls fail fast with ErrOpen without touching
// the guarded operation. After the open interval elapses the breaker goes
// HalfOpen and admits a limited number of trial calls; enough consecutive
// trial successes close it again, any trial failure reopens it with a doubled
// interval (capped).
//
// Open/HalfOpen transitions are evaluated lazily on each call from the
// injected clock; there is no background timer goroutine.
//
// # Quick Start
//
//	b := breaker.New("gpu-probe")
//
//	err := b.Execute(ctx, func(ctx context.Context) error {
//	    return probeGPU(ctx)
//	})
//	if errors.Is(err, breaker.ErrOpen) {
//	    // skip this cycle; the probe is known bad
//	}
//
// Rejections are deliberate signals: the breaker never retries on the
// caller's behalf.
package breaker
