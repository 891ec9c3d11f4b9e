package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicCollector(t *testing.T) {
	var c BasicCollector

	c.RecordSubmit(nil)
	c.RecordSubmit(errors.New("queue full"))
	c.RecordTask(10*time.Millisecond, nil)
	c.RecordTask(30*time.Millisecond, errors.New("boom"))
	c.RecordScale(7)
	c.RecordBreaker("redis", "open")
	c.RecordRateLimit(true)
	c.RecordRateLimit(false)
	c.RecordPoolAcquire(nil)
	c.RecordPoolAcquire(errors.New("exhausted"))
	c.RecordCacheGet(true)
	c.RecordCacheGet(false)
	c.RecordCacheEvict("lru")
	c.RecordAppend(time.Millisecond, nil)
	c.RecordFlush(5, time.Millisecond, nil)
	c.RecordFlush(0, time.Millisecond, errors.New("sink"))
	c.RecordLogWrite(128)

	s := c.GetStats()
	assert.Equal(t, int64(2), s.Submits)
	assert.Equal(t, int64(1), s.SubmitRejections)
	assert.Equal(t, int64(2), s.Tasks)
	assert.Equal(t, int64(1), s.TaskErrors)
	assert.Equal(t, int64(20*time.Millisecond), s.TaskAvgNanos) // avg of 10ms and 30ms
	assert.Equal(t, int64(7), s.Workers)
	assert.Equal(t, int64(1), s.BreakerChanges)
	assert.Equal(t, int64(1), s.Allowed)
	assert.Equal(t, int64(1), s.Limited)
	assert.Equal(t, int64(2), s.PoolAcquires)
	assert.Equal(t, int64(1), s.PoolExhaustions)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
	assert.Equal(t, int64(1), s.CacheEvictions)
	assert.Equal(t, int64(1), s.Appends)
	assert.Equal(t, int64(2), s.Flushes)
	assert.Equal(t, int64(1), s.FlushErrors)
	assert.Equal(t, int64(5), s.FlushedItems)
	assert.Equal(t, int64(128), s.LogBytes)
}

func TestBasicCollector_AvgWithNoSamples(t *testing.T) {
	var c BasicCollector
	s := c.GetStats()
	assert.Zero(t, s.TaskAvgNanos)
	assert.Zero(t, s.AppendAvgNanos)
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(func(o *PromOptions) {
		o.Registerer = reg
	})
	require.NoError(t, err)

	c.RecordSubmit(nil)
	c.RecordSubmit(errors.New("rejected"))
	c.RecordScale(4)
	c.RecordBreaker("redis", "open")
	c.RecordRateLimit(false)
	c.RecordPoolAcquire(nil)
	c.RecordCacheGet(true)
	c.RecordCacheEvict("expired")
	c.RecordFlush(3, time.Millisecond, nil)
	c.RecordLogWrite(64)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.submits.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.submits.WithLabelValues("rejected")))
	assert.Equal(t, float64(4), testutil.ToFloat64(c.workers))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.breakerTransitions.WithLabelValues("redis", "open")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rateDecisions.WithLabelValues("limited")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.poolAcquires.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheGets.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheEvictions.WithLabelValues("expired")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.flushedItems))
	assert.Equal(t, float64(64), testutil.ToFloat64(c.logBytes))
}

func TestPrometheusCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusCollector(func(o *PromOptions) { o.Registerer = reg })
	require.NoError(t, err)

	_, err = NewPrometheusCollector(func(o *PromOptions) { o.Registerer = reg })
	assert.Error(t, err)
}
