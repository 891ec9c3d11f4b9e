package resource

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestController_MemoryBudget(t *testing.T) {
	ctx := context.Background()

	c := NewController(func(o *Options) {
		o.MaxMemory = 100
	})

	require.NoError(t, c.AcquireMemory(ctx, 50))
	require.NoError(t, c.AcquireMemory(ctx, 40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	assert.False(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(90), c.MemoryUsage())

	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(tctx, 20), context.DeadlineExceeded)

	c.ReleaseMemory(50)
	require.NoError(t, c.AcquireMemory(ctx, 20))
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemoryStillTracks(t *testing.T) {
	c := NewController()

	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_WorkerBudget(t *testing.T) {
	ctx := context.Background()

	c := NewController(func(o *Options) {
		o.MaxWorkers = 2
	})

	require.NoError(t, c.AcquireWorker(ctx))
	require.NoError(t, c.AcquireWorker(ctx))
	assert.False(t, c.TryAcquireWorker())

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.WorkersBusy)
	assert.Equal(t, int64(2), stats.WorkersMax)

	c.ReleaseWorker()
	assert.True(t, c.TryAcquireWorker())
}

func TestController_NilIsUnbounded(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(context.Background(), 1<<40))
	assert.True(t, c.TryAcquireWorker())
	require.NoError(t, c.WaitIO(context.Background(), 1<<30))
	c.ReleaseMemory(1)
	c.ReleaseWorker()
	assert.Equal(t, Stats{}, c.Stats())
}

func TestController_WaitIOChunksLargeRequests(t *testing.T) {
	c := NewController(func(o *Options) {
		o.IORate = rate.Limit(1 << 30)
		o.IOBurst = 1024
	})

	// 10 KiB exceeds the burst and must be admitted in chunks.
	require.NoError(t, c.WaitIO(context.Background(), 10*1024))
}

func TestRateLimitedWriter(t *testing.T) {
	c := NewController(func(o *Options) {
		o.IORate = 1 << 30
		o.IOBurst = 1 << 20
	})

	var buf bytes.Buffer
	w := NewRateLimitedWriter(context.Background(), &buf, c)

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}

func TestRateLimitedWriter_ContextCancel(t *testing.T) {
	c := NewController(func(o *Options) {
		o.IORate = 1 // a byte per second: the second write must wait
		o.IOBurst = 4
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	w := NewRateLimitedWriter(ctx, &buf, c)

	_, err := w.Write([]byte("abcd"))
	require.NoError(t, err)

	_, err = w.Write([]byte("efgh"))
	require.Error(t, err)
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(func(o *Options) {
		o.IORate = 1 << 30
		o.IOBurst = 4
	})

	r := NewRateLimitedReader(context.Background(), strings.NewReader("abcdefgh"), c)

	// Reads are capped to the burst size.
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(buf[:n]))
}
