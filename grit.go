package grit

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/hupe1980/grit/batch"
	"github.com/hupe1980/grit/breaker"
	"github.com/hupe1980/grit/cache"
	"github.com/hupe1980/grit/codec"
	"github.com/hupe1980/grit/config"
	"github.com/hupe1980/grit/eventstore"
	"github.com/hupe1980/grit/metrics"
	"github.com/hupe1980/grit/mlog"
	"github.com/hupe1980/grit/pool"
	"github.com/hupe1980/grit/ratelimit"
	"github.com/hupe1980/grit/resource"
	"github.com/hupe1980/grit/trace"
	"github.com/hupe1980/grit/worker"
)

// Runtime carries the toolkit's shared dependencies: configuration, logger,
// metrics collector and clock. It replaces process-wide singletons with one
// explicit object that components are constructed from.
//
// A Runtime owns no resources itself; components created through it have
// their own lifecycles and must be closed individually.
type Runtime struct {
	cfg     *config.Config
	logger  *Logger
	metrics metrics.Collector
	clock   clock.Clock
}

// Option configures a Runtime.
type Option func(r *Runtime)

// WithLogger sets the runtime logger. If nil, the logger is built from the
// configuration's logging section.
func WithLogger(l *Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithMetrics sets the metrics collector. Defaults to a no-op collector.
func WithMetrics(m MetricsCollector) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// WithClock sets the time source, mainly for tests. Defaults to the wall
// clock.
func WithClock(c clock.Clock) Option {
	return func(r *Runtime) {
		r.clock = c
	}
}

// WithConfig sets the configuration. Defaults to config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(r *Runtime) {
		r.cfg = cfg
	}
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg == nil {
		r.cfg = config.Default()
	}
	if r.logger == nil {
		r.logger = loggerFromConfig(r.cfg.Logging)
	}
	if r.metrics == nil {
		r.metrics = metrics.Default
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	return r
}

func loggerFromConfig(cfg config.LoggingConfig) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if cfg.Format == "json" {
		return NewJSONLogger(level)
	}
	return NewTextLogger(level)
}

// Config returns the runtime configuration.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Logger returns the runtime logger.
func (r *Runtime) Logger() *Logger { return r.logger }

// Metrics returns the metrics collector.
func (r *Runtime) Metrics() MetricsCollector { return r.metrics }

// Clock returns the time source.
func (r *Runtime) Clock() clock.Clock { return r.clock }

// Close exists for symmetry with other root objects; the Runtime holds no
// resources, so it always returns nil.
func (r *Runtime) Close() error { return nil }

// NewWorkerPool creates a worker pool seeded from the configuration and the
// runtime's shared dependencies. optFns are applied on top.
func (r *Runtime) NewWorkerPool(optFns ...func(o *worker.Options)) (*worker.Pool, error) {
	base := func(o *worker.Options) {
		w := r.cfg.Worker
		o.MinWorkers = w.MinWorkers
		o.MaxWorkers = w.MaxWorkers
		o.QueueSize = w.QueueSize
		o.ScaleInterval = w.ScaleInterval
		o.ScaleUpThreshold = w.ScaleUpThreshold
		o.ScaleDownThreshold = w.ScaleDownThreshold
		o.GrowChecks = w.GrowChecks
		o.ShrinkChecks = w.ShrinkChecks
		r.ambient(&o.Clock, &o.Logger, &o.Metrics)
	}
	return worker.New(append([]func(*worker.Options){base}, optFns...)...)
}

// NewBreaker creates a named circuit breaker seeded from the configuration.
func (r *Runtime) NewBreaker(name string, optFns ...func(o *breaker.Options)) *breaker.Breaker {
	return breaker.New(name, append([]func(*breaker.Options){r.breakerBase()}, optFns...)...)
}

// NewBreakerManager creates a breaker registry whose breakers share the
// runtime's configuration and dependencies.
func (r *Runtime) NewBreakerManager(optFns ...func(o *breaker.Options)) *breaker.Manager {
	return breaker.NewManager(append([]func(*breaker.Options){r.breakerBase()}, optFns...)...)
}

func (r *Runtime) breakerBase() func(o *breaker.Options) {
	return func(o *breaker.Options) {
		b := r.cfg.Breaker
		o.FailureThreshold = b.FailureThreshold
		o.SuccessThreshold = b.SuccessThreshold
		o.Window = b.Window
		o.OpenBase = b.OpenBase
		o.OpenMax = b.OpenMax
		o.MaxHalfOpen = b.MaxHalfOpen
		r.ambient(&o.Clock, &o.Logger, &o.Metrics)
	}
}

// NewTokenBucket creates a token bucket with the configured rate and
// capacity.
func (r *Runtime) NewTokenBucket(optFns ...func(o *ratelimit.Options)) (*ratelimit.TokenBucket, error) {
	rl := r.cfg.RateLimit
	return ratelimit.NewTokenBucket(rl.Rate, rl.Capacity, append([]func(*ratelimit.Options){r.ratelimitBase()}, optFns...)...)
}

// NewPerKeyLimiter creates a per-key limiter with the configured rate and
// capacity for each key's bucket.
func (r *Runtime) NewPerKeyLimiter(optFns ...func(o *ratelimit.Options)) (*ratelimit.PerKey, error) {
	rl := r.cfg.RateLimit
	return ratelimit.NewPerKey(rl.Rate, rl.Capacity, append([]func(*ratelimit.Options){r.ratelimitBase()}, optFns...)...)
}

func (r *Runtime) ratelimitBase() func(o *ratelimit.Options) {
	return func(o *ratelimit.Options) {
		r.ambient(&o.Clock, &o.Logger, &o.Metrics)
	}
}

// NewTracer creates a tracer on the runtime clock. Without an explicit
// exporter, finished spans go to the runtime logger.
func (r *Runtime) NewTracer(optFns ...func(o *trace.Options)) *trace.Tracer {
	base := func(o *trace.Options) {
		o.Clock = r.clock
		o.Exporter = trace.NewLogExporter(r.logger.Logger)
	}
	return trace.NewTracer(append([]func(*trace.Options){base}, optFns...)...)
}

// NewController creates a resource controller with the configured budgets.
func (r *Runtime) NewController(optFns ...func(o *resource.Options)) *resource.Controller {
	base := func(o *resource.Options) {
		rc := r.cfg.Resource
		o.MaxMemory = rc.MaxMemory
		o.MaxWorkers = rc.MaxWorkers
		o.IORate = rate.Limit(rc.IORate)
		o.IOBurst = rc.IOBurst
	}
	return resource.NewController(append([]func(*resource.Options){base}, optFns...)...)
}

// OpenLog opens a mapped log in dir (or the configured log.dir when dir is
// empty) with the configured durability and compression settings.
func (r *Runtime) OpenLog(dir string, optFns ...func(o *mlog.Options)) (*mlog.Log, error) {
	if dir == "" {
		dir = r.cfg.Log.Dir
	}
	return mlog.Open(dir, append([]func(*mlog.Options){r.logBase()}, optFns...)...)
}

func (r *Runtime) logBase() func(o *mlog.Options) {
	return func(o *mlog.Options) {
		l := r.cfg.Log
		o.SegmentSize = l.SegmentSize
		o.Durability = durabilityMode(l.Durability)
		o.SyncInterval = l.SyncInterval
		o.Compress = l.Compress
		o.CompressionLevel = l.CompressionLevel
		o.ReplayMode = replayMode(l.ReplayMode)
		o.Clock = r.clock
		o.Logger = r.logger.Logger
		o.Metrics = r.metrics
	}
}

// OpenEventStore opens an event store in dir (or the configured store.dir
// when dir is empty).
func (r *Runtime) OpenEventStore(ctx context.Context, dir string, optFns ...func(o *eventstore.Options)) (*eventstore.Store, error) {
	if dir == "" {
		dir = r.cfg.Store.Dir
	}
	base := func(o *eventstore.Options) {
		s := r.cfg.Store
		if c, ok := codec.ByName(s.Codec); ok {
			o.Codec = c
		}
		o.BatchSize = s.BatchSize
		o.FlushInterval = s.FlushInterval
		o.LogOptions = []func(*mlog.Options){r.logBase()}
		r.ambient(&o.Clock, &o.Logger, &o.Metrics)
	}
	return eventstore.Open(ctx, dir, append([]func(*eventstore.Options){base}, optFns...)...)
}

// BatchOptions returns an option seeding batch writers from the
// configuration, for use with the generic batch.NewWriter.
func (r *Runtime) BatchOptions() func(o *batch.Options) {
	return func(o *batch.Options) {
		b := r.cfg.Batch
		o.BatchSize = b.BatchSize
		o.FlushInterval = b.FlushInterval
		r.ambient(&o.Clock, &o.Logger, &o.Metrics)
	}
}

// ambient wires the runtime's shared dependencies into a component's option
// fields.
func (r *Runtime) ambient(c *clock.Clock, l **slog.Logger, m *metrics.Collector) {
	*c = r.clock
	*l = r.logger.Logger
	*m = r.metrics
}

func durabilityMode(s string) mlog.DurabilityMode {
	switch s {
	case "async":
		return mlog.DurabilityAsync
	case "sync":
		return mlog.DurabilitySync
	default:
		return mlog.DurabilityInterval
	}
}

func replayMode(s string) mlog.ReplayMode {
	if s == "skip" {
		return mlog.ReplaySkip
	}
	return mlog.ReplayStop
}

// CacheOptions returns an option seeding a cache from the runtime's
// configuration and shared dependencies. It is package-level because
// methods cannot introduce type parameters.
func CacheOptions[K comparable, V any](r *Runtime) func(o *cache.Options[K, V]) {
	return func(o *cache.Options[K, V]) {
		c := r.cfg.Cache
		o.MaxEntries = c.MaxEntries
		o.MaxBytes = c.MaxBytes
		o.DefaultTTL = c.DefaultTTL
		o.CleanupInterval = c.CleanupInterval
		r.ambient(&o.Clock, &o.Logger, &o.Metrics)
	}
}

// PoolOptions returns an option seeding an object pool from the runtime's
// configuration and shared dependencies.
func PoolOptions[T any](r *Runtime) func(o *pool.Options[T]) {
	return func(o *pool.Options[T]) {
		p := r.cfg.Pool
		o.Capacity = p.Capacity
		o.Prealloc = p.Prealloc
		o.Logger = r.logger.Logger
		o.Metrics = r.metrics
	}
}
