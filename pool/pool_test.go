package pool

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct {
	id     int
	dirty  bool
	closed bool
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}

func newConnPool(t *testing.T, capacity, prealloc int) (*Pool[*conn], *atomic.Int64) {
	t.Helper()
	var made atomic.Int64
	p, err := New(func() (*conn, error) {
		return &conn{id: int(made.Add(1))}, nil
	}, func(o *Options[*conn]) {
		o.Capacity = capacity
		o.Prealloc = prealloc
		o.Reset = func(c *conn) { c.dirty = false }
	})
	require.NoError(t, err)
	return p, &made
}

func TestNew_Validation(t *testing.T) {
	_, err := New[int](nil)
	assert.ErrorIs(t, err, ErrNilFactory)

	_, err = New(func() (int, error) { return 0, nil }, func(o *Options[int]) {
		o.Capacity = 0
	})
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New(func() (int, error) { return 0, nil }, func(o *Options[int]) {
		o.Capacity = 2
		o.Prealloc = 3
	})
	assert.Error(t, err)
}

func TestNew_Prealloc(t *testing.T) {
	p, made := newConnPool(t, 10, 4)
	defer p.Close()

	assert.Equal(t, 4, p.Len())
	assert.Equal(t, 4, p.Live())
	assert.Equal(t, int64(4), made.Load())

	// Acquisitions drain the free list before constructing.
	ctx := context.Background()
	for range 4 {
		_, err := p.Acquire(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), made.Load())

	_, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), made.Load())
}

func TestNew_PreallocFactoryError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := New(func() (*conn, error) {
		calls++
		if calls == 3 {
			return nil, boom
		}
		return &conn{}, nil
	}, func(o *Options[*conn]) {
		o.Prealloc = 5
	})
	assert.ErrorIs(t, err, boom)
}

func TestPool_AcquireExhausted(t *testing.T) {
	p, _ := newConnPool(t, 2, 0)
	defer p.Close()
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	_, err = p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	p.Release(c1)
	_, err = p.Acquire(ctx)
	assert.NoError(t, err)
}

func TestPool_ResetOnRelease(t *testing.T) {
	p, _ := newConnPool(t, 2, 0)
	defer p.Close()
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	c.dirty = true

	p.Release(c)
	got, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.False(t, got.dirty, "reset must run on release")
}

func TestPool_AcquireWaitBlocks(t *testing.T) {
	p, _ := newConnPool(t, 1, 0)
	defer p.Close()
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan *conn, 1)
	go func() {
		got, err := p.AcquireWait(ctx)
		if err == nil {
			acquired <- got
		}
	}()

	select {
	case <-acquired:
		t.Fatal("AcquireWait returned while pool was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(c)
	select {
	case got := <-acquired:
		assert.Same(t, c, got)
	case <-time.After(2 * time.Second):
		t.Fatal("AcquireWait did not wake after release")
	}
}

func TestPool_AcquireWaitContextCancel(t *testing.T) {
	p, _ := newConnPool(t, 1, 0)
	defer p.Close()

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.AcquireWait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_LiveNeverExceedsCapacity(t *testing.T) {
	const capacity = 8
	p, _ := newConnPool(t, capacity, 0)
	defer p.Close()
	ctx := context.Background()

	var peak atomic.Int64
	var live atomic.Int64
	var wg sync.WaitGroup

	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				c, err := p.Acquire(ctx)
				if err != nil {
					continue
				}
				n := live.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				live.Add(-1)
				p.Release(c)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.LessOrEqual(t, p.Live(), capacity)
}

func TestPool_FactoryErrorReleasesSlot(t *testing.T) {
	boom := errors.New("boom")
	failing := true
	p, err := New(func() (*conn, error) {
		if failing {
			return nil, boom
		}
		return &conn{}, nil
	}, func(o *Options[*conn]) {
		o.Capacity = 1
		o.Prealloc = 0
	})
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, boom)

	// The failed construction must not leak the capacity slot.
	failing = false
	_, err = p.Acquire(ctx)
	assert.NoError(t, err)
}

func TestPool_Close(t *testing.T) {
	p, _ := newConnPool(t, 4, 2)
	ctx := context.Background()

	borrowed, err := p.Acquire(ctx)
	require.NoError(t, err)

	idle, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(idle)

	p.Close()
	assert.Equal(t, 0, p.Len())
	assert.True(t, idle.closed, "idle instances are closed on Close")

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// Late release discards and closes the instance.
	p.Release(borrowed)
	assert.True(t, borrowed.closed)
	assert.Equal(t, 0, p.Live())

	p.Close() // idempotent
}

func TestPool_BufferReuse(t *testing.T) {
	p, err := New(func() (*bytes.Buffer, error) {
		return new(bytes.Buffer), nil
	}, func(o *Options[*bytes.Buffer]) {
		o.Capacity = 2
		o.Prealloc = 1
		o.Reset = func(b *bytes.Buffer) { b.Reset() }
	})
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	buf, err := p.Acquire(ctx)
	require.NoError(t, err)
	buf.WriteString("scratch")
	p.Release(buf)

	buf2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Zero(t, buf2.Len())
}
