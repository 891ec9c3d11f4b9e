package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(4711)
	b := NewRNG(4711)

	assert.Equal(t, a.Bytes(32), b.Bytes(32))
	assert.Equal(t, a.Perm(16), b.Perm(16))
	assert.Equal(t, a.Uint64(), b.Uint64())
}

func TestRNG_Reset(t *testing.T) {
	rng := NewRNG(99)
	first := rng.Bytes(16)

	rng.Reset()
	assert.Equal(t, first, rng.Bytes(16))
	assert.Equal(t, int64(99), rng.Seed())
}

func TestRNG_Durations(t *testing.T) {
	rng := NewRNG(1)
	ds := rng.Durations(100, time.Second)
	require.Len(t, ds, 100)
	for _, d := range ds {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, time.Second)
	}
}

func TestPoll(t *testing.T) {
	var hits atomic.Int64
	err := Poll(time.Second, time.Millisecond, func() bool {
		return hits.Add(1) >= 3
	})
	require.NoError(t, err)

	err = Poll(20*time.Millisecond, time.Millisecond, func() bool { return false })
	require.Error(t, err)
}
