package grit_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/grit"
	"github.com/hupe1980/grit/breaker"
	"github.com/hupe1980/grit/cache"
	"github.com/hupe1980/grit/config"
	"github.com/hupe1980/grit/pool"
	"github.com/hupe1980/grit/ratelimit"
	"github.com/hupe1980/grit/worker"
)

func TestRuntime_Defaults(t *testing.T) {
	rt := grit.New()

	require.NotNil(t, rt.Config())
	require.NotNil(t, rt.Logger())
	require.NotNil(t, rt.Metrics())
	require.NotNil(t, rt.Clock())
	require.NoError(t, rt.Close())
}

func TestRuntime_WithOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.MaxWorkers = 7
	mock := clock.NewMock()
	logger := grit.NoopLogger()

	rt := grit.New(
		grit.WithConfig(cfg),
		grit.WithClock(mock),
		grit.WithLogger(logger),
		grit.WithMetrics(grit.NoopMetricsCollector{}),
	)

	require.Same(t, cfg, rt.Config())
	require.Same(t, mock, rt.Clock())
	require.Same(t, logger, rt.Logger())
}

func TestRuntime_NewWorkerPool(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.MinWorkers = 2

	rt := grit.New(grit.WithConfig(cfg), grit.WithLogger(grit.NoopLogger()))

	p, err := rt.NewWorkerPool()
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.Equal(t, 2, p.Workers())

	h, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))
}

func TestRuntime_NewWorkerPool_CallerOverrides(t *testing.T) {
	rt := grit.New(grit.WithLogger(grit.NoopLogger()))

	p, err := rt.NewWorkerPool(func(o *worker.Options) {
		o.MinWorkers = 3
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.Equal(t, 3, p.Workers())
}

func TestRuntime_NewBreaker(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Breaker.FailureThreshold = 1

	rt := grit.New(grit.WithConfig(cfg), grit.WithLogger(grit.NoopLogger()))

	cb := rt.NewBreaker("upstream")
	require.Equal(t, "upstream", cb.Name())

	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error {
		return context.DeadlineExceeded
	}))
	require.Equal(t, breaker.StateOpen, cb.State())
}

func TestRuntime_NewBreakerManager(t *testing.T) {
	rt := grit.New(grit.WithLogger(grit.NoopLogger()))

	m := rt.NewBreakerManager()
	a := m.GetOrCreate("a")
	require.Same(t, a, m.Get("a"))
}

func TestRuntime_NewTokenBucket(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.Rate = 10
	cfg.RateLimit.Capacity = 1

	rt := grit.New(grit.WithConfig(cfg), grit.WithLogger(grit.NoopLogger()))

	tb, err := rt.NewTokenBucket()
	require.NoError(t, err)
	require.Equal(t, float64(1), tb.Capacity())

	require.NoError(t, tb.TryAcquire(1))
	require.ErrorIs(t, tb.TryAcquire(1), ratelimit.ErrLimitExceeded)
}

func TestRuntime_NewTracer(t *testing.T) {
	mock := clock.NewMock()
	rt := grit.New(grit.WithClock(mock), grit.WithLogger(grit.NoopLogger()))

	tracer := rt.NewTracer()
	_, span := tracer.StartSpan(context.Background(), "op")
	mock.Add(10 * time.Millisecond)
	span.End()

	require.Equal(t, 10*time.Millisecond, span.Duration())
}

func TestRuntime_OpenEventStore(t *testing.T) {
	ctx := context.Background()
	rt := grit.New(grit.WithLogger(grit.NoopLogger()))

	store, err := rt.OpenEventStore(ctx, t.TempDir())
	require.NoError(t, err)

	ev, err := store.Append(ctx, "agg-1", "created", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), ev.Seq)

	require.NoError(t, store.Close(ctx))
}

func TestRuntime_OpenLog(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Log.SegmentSize = 1 << 20

	rt := grit.New(grit.WithConfig(cfg), grit.WithLogger(grit.NoopLogger()))

	l, err := rt.OpenLog(t.TempDir())
	require.NoError(t, err)

	_, err = l.Append(ctx, 1, []byte("rec"))
	require.NoError(t, err)
	require.NoError(t, l.Close(ctx))
}

func TestRuntime_NewController(t *testing.T) {
	cfg := config.Default()
	cfg.Resource.MaxMemory = 1 << 10

	rt := grit.New(grit.WithConfig(cfg), grit.WithLogger(grit.NoopLogger()))

	c := rt.NewController()
	require.True(t, c.TryAcquireMemory(1<<10))
	require.False(t, c.TryAcquireMemory(1))
	c.ReleaseMemory(1 << 10)
}

func TestCacheOptions_SeedsFromConfig(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Cache.MaxEntries = 2

	rt := grit.New(grit.WithConfig(cfg), grit.WithLogger(grit.NoopLogger()))

	c, err := cache.New(grit.CacheOptions[string, int](rt))
	require.NoError(t, err)

	c.Put(ctx, "a", 1)
	c.Put(ctx, "b", 2)
	c.Put(ctx, "c", 3)
	require.Equal(t, 2, c.Len())
}

func TestPoolOptions_SeedsFromConfig(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Pool.Capacity = 1
	cfg.Pool.Prealloc = 0

	rt := grit.New(grit.WithConfig(cfg), grit.WithLogger(grit.NoopLogger()))

	p, err := pool.New(func() (*int, error) {
		v := 0
		return &v, nil
	}, grit.PoolOptions[*int](rt))
	require.NoError(t, err)
	defer p.Close()

	obj, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, pool.ErrExhausted)
	p.Release(obj)
}
