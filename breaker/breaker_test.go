package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T, optFns ...func(*Options)) (*Breaker, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	all := append([]func(*Options){func(o *Options) {
		o.Clock = mock
		o.FailureThreshold = 3
		o.SuccessThreshold = 1
		o.OpenBase = 10 * time.Second
		o.OpenMax = 80 * time.Second
	}}, optFns...)
	return New("test", all...), mock
}

func fail(ctx context.Context) error    { return errBoom }
func succeed(ctx context.Context) error { return nil }

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenFailsFastWithoutInvoking(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}

	invoked := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)

	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "test", oe.Name)
	assert.Greater(t, oe.RetryAfter, time.Duration(0))
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	b, mock := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	mock.Add(10 * time.Second) // OpenBase elapsed
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{}, b.Counts()) // counters reset on close
}

func TestBreaker_HalfOpenTrialFailureDoublesBackoff(t *testing.T) {
	b, mock := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}

	// First recovery attempt fails: reopen with doubled interval.
	mock.Add(10 * time.Second)
	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	require.Equal(t, StateOpen, b.State())

	// Base interval is no longer enough.
	mock.Add(10 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	mock.Add(10 * time.Second) // total 20s = base*2
	assert.Equal(t, StateHalfOpen, b.State())

	// Success resets the backoff attempt.
	require.NoError(t, b.Execute(ctx, succeed))
	for range 3 {
		_ = b.Execute(ctx, fail)
	}
	mock.Add(10 * time.Second) // back to base
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_BackoffCap(t *testing.T) {
	b, mock := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}

	// Fail every trial: 10s, 20s, 40s, 80s, then capped at 80s.
	intervals := []time.Duration{10, 20, 40, 80, 80, 80}
	for _, sec := range intervals {
		mock.Add(sec * time.Second)
		require.Equal(t, StateHalfOpen, b.State())
		require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
		require.Equal(t, StateOpen, b.State())
	}
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	b, mock := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}
	mock.Add(10 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	trialStarted := make(chan struct{})
	trialRelease := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(ctx context.Context) error {
			close(trialStarted)
			<-trialRelease
			return nil
		})
	}()
	<-trialStarted

	// A second caller during the trial is rejected without running.
	err := b.Execute(ctx, succeed)
	require.ErrorIs(t, err, ErrOpen)

	close(trialRelease)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SuccessThreshold(t *testing.T) {
	b, mock := newTestBreaker(t, func(o *Options) {
		o.SuccessThreshold = 2
	})
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}
	mock.Add(10 * time.Second)

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State()) // one success is not enough

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SlidingWindowExpiry(t *testing.T) {
	b, mock := newTestBreaker(t, func(o *Options) {
		o.Window = 30 * time.Second
	})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	mock.Add(31 * time.Second) // both failures age out

	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_IsSuccessful(t *testing.T) {
	benign := errors.New("benign")
	b, _ := newTestBreaker(t, func(o *Options) {
		o.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, benign)
		}
	})
	ctx := context.Background()

	for range 5 {
		_ = b.Execute(ctx, func(ctx context.Context) error { return benign })
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Do(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	v, err := Do(b, ctx, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	for range 3 {
		_, _ = Do(b, ctx, func(ctx context.Context) (int, error) { return 0, errBoom })
	}
	v, err = Do(b, ctx, func(ctx context.Context) (int, error) { return 42, nil })
	require.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, v)
}

func TestBreaker_Counts(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	require.NoError(t, b.Execute(ctx, succeed))
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)

	c := b.Counts()
	assert.Equal(t, uint64(3), c.Requests)
	assert.Equal(t, uint64(1), c.Successes)
	assert.Equal(t, uint64(2), c.Failures)
	assert.Equal(t, uint64(2), c.ConsecutiveFailures)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Execute(ctx, succeed))
}

func TestBreaker_ConcurrentExecute(t *testing.T) {
	b, _ := newTestBreaker(t, func(o *Options) {
		o.FailureThreshold = 1000000 // never trips
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_ = b.Execute(ctx, succeed)
			}
		}()
	}
	wg.Wait()

	c := b.Counts()
	assert.Equal(t, uint64(1000), c.Requests)
	assert.Equal(t, uint64(1000), c.Successes)
}

func TestManager(t *testing.T) {
	m := NewManager(func(o *Options) {
		o.FailureThreshold = 3
	})

	assert.Nil(t, m.Get("disk"))

	b1 := m.GetOrCreate("disk")
	b2 := m.GetOrCreate("disk")
	assert.Same(t, b1, b2)

	m.GetOrCreate("net")
	states := m.States()
	assert.Len(t, states, 2)
	assert.Equal(t, StateClosed, states["disk"])
}

func TestManager_Concurrent(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	breakers := make([]*Breaker, 50)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			breakers[i] = m.GetOrCreate("shared")
		}()
	}
	wg.Wait()

	for _, b := range breakers {
		assert.Same(t, breakers[0], b)
	}
}
