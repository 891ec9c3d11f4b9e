package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
worker:
  min_workers: 2
  max_workers: 8
cache:
  default_ttl: 90s
log:
  dir: /var/lib/grit
  durability: sync
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Worker.MinWorkers)
	assert.Equal(t, 8, c.Worker.MaxWorkers)
	assert.Equal(t, 90*time.Second, c.Cache.DefaultTTL)
	assert.Equal(t, "/var/lib/grit", c.Log.Dir)
	assert.Equal(t, "sync", c.Log.Durability)

	// Untouched sections keep their defaults.
	assert.Equal(t, 256, c.Worker.QueueSize)
	assert.Equal(t, 5, c.Breaker.FailureThreshold)
	assert.Equal(t, "go-json", c.Store.Codec)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  durability: eventually
`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "log.durability")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GRIT_WORKER_MAX", "12")
	t.Setenv("GRIT_CACHE_TTL", "2m")
	t.Setenv("GRIT_LOG_LEVEL", "DEBUG")
	t.Setenv("GRIT_RATE_LIMIT", "not-a-number")

	c := Default()
	c.LoadFromEnv()

	assert.Equal(t, 12, c.Worker.MaxWorkers)
	assert.Equal(t, 2*time.Minute, c.Cache.DefaultTTL)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, float64(100), c.RateLimit.Rate) // bad value ignored
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "grit.yaml")

	c := Default()
	c.Worker.MaxWorkers = 7
	require.NoError(t, c.SaveToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"min workers", func(c *Config) { c.Worker.MinWorkers = 0 }, "worker.min_workers"},
		{"thresholds", func(c *Config) { c.Worker.ScaleUpThreshold = 0.05 }, "scale_up_threshold"},
		{"rate", func(c *Config) { c.RateLimit.Rate = -1 }, "rate_limit"},
		{"prealloc", func(c *Config) { c.Pool.Prealloc = 500 }, "pool.prealloc"},
		{"segment size", func(c *Config) { c.Log.SegmentSize = 100 }, "log.segment_size"},
		{"codec", func(c *Config) { c.Store.Codec = "xml" }, "store.codec"},
		{"replay mode", func(c *Config) { c.Log.ReplayMode = "panic" }, "log.replay_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
