// Package config loads the toolkit's nested YAML configuration.
//
// A Config is plain data: the root runtime maps it onto the option structs
// of the individual packages. Load starts from Default so a partial file
// only overrides the fields it names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the complete toolkit configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Worker    WorkerConfig    `yaml:"worker"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Pool      PoolConfig      `yaml:"pool"`
	Cache     CacheConfig     `yaml:"cache"`
	Batch     BatchConfig     `yaml:"batch"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Resource  ResourceConfig  `yaml:"resource"`
}

// LoggingConfig controls the runtime logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// WorkerConfig mirrors worker.Options.
type WorkerConfig struct {
	MinWorkers         int           `yaml:"min_workers"`
	MaxWorkers         int           `yaml:"max_workers"`
	QueueSize          int           `yaml:"queue_size"`
	ScaleInterval      time.Duration `yaml:"scale_interval"`
	ScaleUpThreshold   float64       `yaml:"scale_up_threshold"`
	ScaleDownThreshold float64       `yaml:"scale_down_threshold"`
	GrowChecks         int           `yaml:"grow_checks"`
	ShrinkChecks       int           `yaml:"shrink_checks"`
}

// BreakerConfig mirrors breaker.Options.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Window           time.Duration `yaml:"window"`
	OpenBase         time.Duration `yaml:"open_base"`
	OpenMax          time.Duration `yaml:"open_max"`
	MaxHalfOpen      int           `yaml:"max_half_open"`
}

// RateLimitConfig mirrors ratelimit.Options.
type RateLimitConfig struct {
	Rate     float64 `yaml:"rate"`
	Capacity float64 `yaml:"capacity"`
}

// PoolConfig mirrors pool.Options.
type PoolConfig struct {
	Capacity int `yaml:"capacity"`
	Prealloc int `yaml:"prealloc"`
}

// CacheConfig mirrors cache.Options.
type CacheConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	MaxBytes        int64         `yaml:"max_bytes"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// BatchConfig mirrors batch.Options.
type BatchConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LogConfig mirrors mlog.Options.
type LogConfig struct {
	Dir              string        `yaml:"dir"`
	SegmentSize      int64         `yaml:"segment_size"`
	Durability       string        `yaml:"durability"` // async, interval, sync
	SyncInterval     time.Duration `yaml:"sync_interval"`
	Compress         bool          `yaml:"compress"`
	CompressionLevel int           `yaml:"compression_level"`
	ReplayMode       string        `yaml:"replay_mode"` // stop or skip
}

// StoreConfig mirrors eventstore.Options.
type StoreConfig struct {
	Dir           string        `yaml:"dir"`
	Codec         string        `yaml:"codec"` // json or go-json
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ResourceConfig mirrors resource.Options.
type ResourceConfig struct {
	MaxMemory  int64   `yaml:"max_memory"`
	MaxWorkers int64   `yaml:"max_workers"`
	IORate     float64 `yaml:"io_rate"` // bytes per second, 0 disables
	IOBurst    int     `yaml:"io_burst"`
}

// Default returns a configuration matching the packages' built-in defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Worker: WorkerConfig{
			MinWorkers:         1,
			MaxWorkers:         0, // NumCPU
			QueueSize:          256,
			ScaleInterval:      time.Second,
			ScaleUpThreshold:   0.5,
			ScaleDownThreshold: 0.1,
			GrowChecks:         3,
			ShrinkChecks:       3,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Window:           60 * time.Second,
			OpenBase:         10 * time.Second,
			OpenMax:          300 * time.Second,
			MaxHalfOpen:      1,
		},
		RateLimit: RateLimitConfig{
			Rate:     100,
			Capacity: 100,
		},
		Pool: PoolConfig{
			Capacity: 100,
			Prealloc: 10,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			MaxBytes:   100 << 20,
			DefaultTTL: 60 * time.Second,
		},
		Batch: BatchConfig{
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Log: LogConfig{
			Dir:              ".",
			SegmentSize:      64 << 20,
			Durability:       "interval",
			SyncInterval:     10 * time.Millisecond,
			CompressionLevel: 3,
			ReplayMode:       "stop",
		},
		Store: StoreConfig{
			Dir:           ".",
			Codec:         "go-json",
			BatchSize:     100,
			FlushInterval: 5 * time.Millisecond,
		},
		Resource: ResourceConfig{
			MaxMemory:  1 << 30,
			MaxWorkers: 64,
			IORate:     0,
			IOBurst:    1 << 20,
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if err := c.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFromFile overlays the YAML file at path onto c.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv overlays GRIT_* environment variables onto c. Unparseable
// values are ignored.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("GRIT_LOG_LEVEL"); val != "" {
		c.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("GRIT_LOG_FORMAT"); val != "" {
		c.Logging.Format = strings.ToLower(val)
	}
	if val := os.Getenv("GRIT_WORKER_MAX"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Worker.MaxWorkers = n
		}
	}
	if val := os.Getenv("GRIT_WORKER_QUEUE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Worker.QueueSize = n
		}
	}
	if val := os.Getenv("GRIT_RATE_LIMIT"); val != "" {
		if r, err := strconv.ParseFloat(val, 64); err == nil {
			c.RateLimit.Rate = r
		}
	}
	if val := os.Getenv("GRIT_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Cache.DefaultTTL = d
		}
	}
	if val := os.Getenv("GRIT_LOG_DIR"); val != "" {
		c.Log.Dir = val
	}
	if val := os.Getenv("GRIT_STORE_DIR"); val != "" {
		c.Store.Dir = val
	}
}

// SaveToFile writes c as YAML, creating parent directories as needed.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	if c.Worker.MinWorkers < 1 {
		return fmt.Errorf("worker.min_workers must be at least 1")
	}
	if c.Worker.MaxWorkers != 0 && c.Worker.MaxWorkers < c.Worker.MinWorkers {
		return fmt.Errorf("worker.max_workers must be 0 or at least worker.min_workers")
	}
	if c.Worker.QueueSize < 1 {
		return fmt.Errorf("worker.queue_size must be at least 1")
	}
	if c.Worker.ScaleUpThreshold <= c.Worker.ScaleDownThreshold {
		return fmt.Errorf("worker.scale_up_threshold must exceed worker.scale_down_threshold")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.OpenMax < c.Breaker.OpenBase {
		return fmt.Errorf("breaker.open_max must be at least breaker.open_base")
	}
	if c.RateLimit.Rate <= 0 || c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("rate_limit.rate and rate_limit.capacity must be positive")
	}
	if c.Pool.Capacity < 1 {
		return fmt.Errorf("pool.capacity must be at least 1")
	}
	if c.Pool.Prealloc < 0 || c.Pool.Prealloc > c.Pool.Capacity {
		return fmt.Errorf("pool.prealloc must be between 0 and pool.capacity")
	}
	if c.Cache.MaxEntries < 1 || c.Cache.MaxBytes < 1 {
		return fmt.Errorf("cache.max_entries and cache.max_bytes must be positive")
	}
	if c.Batch.BatchSize < 1 {
		return fmt.Errorf("batch.batch_size must be at least 1")
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("batch.flush_interval must be positive")
	}
	switch c.Log.Durability {
	case "async", "interval", "sync":
	default:
		return fmt.Errorf("log.durability must be async, interval or sync")
	}
	switch c.Log.ReplayMode {
	case "stop", "skip":
	default:
		return fmt.Errorf("log.replay_mode must be stop or skip")
	}
	if c.Log.SegmentSize < 1<<10 {
		return fmt.Errorf("log.segment_size must be at least 1KiB")
	}
	if c.Log.CompressionLevel < 1 || c.Log.CompressionLevel > 22 {
		return fmt.Errorf("log.compression_level must be between 1 and 22")
	}
	switch c.Store.Codec {
	case "json", "go-json":
	default:
		return fmt.Errorf("store.codec must be json or go-json")
	}
	if c.Resource.MaxMemory < 0 || c.Resource.MaxWorkers < 0 {
		return fmt.Errorf("resource.max_memory and resource.max_workers must not be negative")
	}
	return nil
}
