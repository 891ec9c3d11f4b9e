package breaker

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

// ErrOpen is returned when the circuit rejects a call without invoking the
// guarded operation.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError carries rejection context. It unwraps to ErrOpen.
type OpenError struct {
	Name string
	// RetryAfter is the remaining open interval at rejection time.
	// Zero when rejected because the half-open trial quota was taken.
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open: retry after %s", e.Name, e.RetryAfter)
	}
	return fmt.Sprintf("circuit breaker %q is open: trial in flight", e.Name)
}

func (e *OpenError) Unwrap() error { return ErrOpen }

// State is the circuit state.
type State int

const (
	// StateClosed admits all calls; failures are counted.
	StateClosed State = iota
	// StateOpen rejects all calls without invoking the operation.
	StateOpen
	// StateHalfOpen admits a bounded number of trial calls.
	StateHalfOpen
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Counts is a snapshot of call statistics since the last state change to
// Closed (counters reset on close).
type Counts struct {
	Requests             uint64
	Successes            uint64
	Failures             uint64
	ConsecutiveSuccesses uint64
	ConsecutiveFailures  uint64
}

// Options contains configuration for a Breaker.
type Options struct {
	// FailureThreshold is the number of failures inside Window that trips
	// the breaker Closed -> Open.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open trial
	// successes required to close the breaker.
	SuccessThreshold int

	// Window is the sliding window over which failures are counted while
	// Closed. Failures older than Window no longer count toward the
	// threshold.
	Window time.Duration

	// OpenBase is the first open interval. Each half-open failure doubles
	// the interval, up to OpenMax.
	OpenBase time.Duration

	// OpenMax caps the open interval growth.
	OpenMax time.Duration

	// MaxHalfOpen bounds concurrent trial calls while HalfOpen. Additional
	// callers are rejected with ErrOpen.
	MaxHalfOpen int

	// IsSuccessful classifies the operation's result. Defaults to treating
	// any non-nil error (including context cancellation) as a failure.
	IsSuccessful func(err error) bool

	// OnStateChange is invoked after every state transition, outside the
	// breaker lock.
	OnStateChange func(name string, from, to State)

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock

	// Logger receives transition logs. Defaults to a discard logger.
	Logger *slog.Logger

	// Metrics receives state transition signals.
	Metrics metrics.Collector
}

// DefaultOptions are the settings used when New is called without overrides.
var DefaultOptions = Options{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Window:           60 * time.Second,
	OpenBase:         10 * time.Second,
	OpenMax:          300 * time.Second,
	MaxHalfOpen:      1,
}

// Breaker guards a single operation. All state transitions are serialized
// under one mutex, so concurrent callers observe a consistent state.
type Breaker struct {
	name string
	opts Options

	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Collector

	mu           sync.Mutex
	state        State
	failures     []time.Time // failure timestamps inside the window (Closed)
	counts       Counts
	attempt      int       // consecutive open cycles without recovery
	openDeadline time.Time // when Open may transition to HalfOpen
	inFlight     int       // trial calls running while HalfOpen
}

// New creates a circuit breaker named name.
func New(name string, optFns ...func(*Options)) *Breaker {
	o := DefaultOptions
	o.Clock = clock.New()
	o.Logger = slog.New(slog.DiscardHandler)
	o.Metrics = metrics.Default
	for _, fn := range optFns {
		fn(&o)
	}

	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultOptions.FailureThreshold
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = DefaultOptions.SuccessThreshold
	}
	if o.Window <= 0 {
		o.Window = DefaultOptions.Window
	}
	if o.OpenBase <= 0 {
		o.OpenBase = DefaultOptions.OpenBase
	}
	if o.OpenMax < o.OpenBase {
		o.OpenMax = o.OpenBase
	}
	if o.MaxHalfOpen <= 0 {
		o.MaxHalfOpen = 1
	}
	if o.IsSuccessful == nil {
		o.IsSuccessful = func(err error) bool { return err == nil }
	}

	return &Breaker{
		name:    name,
		opts:    o,
		clock:   o.Clock,
		logger:  o.Logger,
		metrics: o.Metrics,
		state:   StateClosed,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn under the breaker.
//
// While Open it fails fast with a *OpenError (unwrapping to ErrOpen) and fn
// is not invoked. The breaker does not retry rejected calls; retry policy
// belongs to the caller.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	release, err := b.beforeCall()
	if err != nil {
		return err
	}

	opErr := fn(ctx)
	release(b.opts.IsSuccessful(opErr))
	return opErr
}

// Do runs fn under breaker b and returns its result.
//
// It is the generic variant of Execute; a rejected call returns the zero
// value of T alongside the rejection error.
func Do[T any](b *Breaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = fn(ctx)
		return opErr
	})
	return out, err
}

// beforeCall admits or rejects a call and returns the completion callback.
func (b *Breaker) beforeCall() (func(success bool), error) {
	b.mu.Lock()

	now := b.clock.Now()
	if b.state == StateOpen && !now.Before(b.openDeadline) {
		b.transitionLocked(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		retryAfter := b.openDeadline.Sub(now)
		b.mu.Unlock()
		return nil, &OpenError{Name: b.name, RetryAfter: retryAfter}

	case StateHalfOpen:
		if b.inFlight >= b.opts.MaxHalfOpen {
			b.mu.Unlock()
			return nil, &OpenError{Name: b.name}
		}
		b.inFlight++
	}

	b.counts.Requests++
	b.mu.Unlock()
	return b.afterCall, nil
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.counts.Successes++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
	} else {
		b.counts.Failures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
	}

	switch b.state {
	case StateClosed:
		if success {
			return
		}
		now := b.clock.Now()
		b.failures = append(b.failures, now)
		b.pruneLocked(now)
		if len(b.failures) >= b.opts.FailureThreshold {
			b.openLocked()
		}

	case StateHalfOpen:
		b.inFlight--
		if !success {
			// Failed trial: reopen with a doubled interval.
			b.attempt++
			b.openLocked()
			return
		}
		if int(b.counts.ConsecutiveSuccesses) >= b.opts.SuccessThreshold {
			b.attempt = 0
			b.failures = nil
			b.counts = Counts{}
			b.transitionLocked(StateClosed)
		}
	}
}

// pruneLocked drops failure timestamps older than the sliding window.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.opts.Window)
	i := 0
	for i < len(b.failures) && !b.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = append(b.failures[:0], b.failures[i:]...)
	}
}

// openLocked moves to Open and arms the recovery deadline.
func (b *Breaker) openLocked() {
	b.openDeadline = b.clock.Now().Add(b.openInterval())
	b.inFlight = 0
	b.transitionLocked(StateOpen)
}

// openInterval returns OpenBase * 2^attempt capped at OpenMax.
func (b *Breaker) openInterval() time.Duration {
	d := b.opts.OpenBase
	for range b.attempt {
		d *= 2
		if d >= b.opts.OpenMax {
			return b.opts.OpenMax
		}
	}
	return min(d, b.opts.OpenMax)
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	b.metrics.RecordBreaker(b.name, to.String())
	b.logger.Info("circuit breaker state change",
		"name", b.name,
		"from", from.String(),
		"to", to.String(),
	)
	if b.opts.OnStateChange != nil {
		// Outside the lock: the callback may call back into the breaker.
		go b.opts.OnStateChange(b.name, from, to)
	}
}

// State returns the current state, applying a pending Open -> HalfOpen
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.clock.Now().Before(b.openDeadline) {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

// Counts returns a snapshot of the call statistics.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset forces the breaker Closed and clears all counters and backoff state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
	b.failures = nil
	b.counts = Counts{}
	b.inFlight = 0
	b.transitionLocked(StateClosed)
}
