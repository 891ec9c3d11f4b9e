package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromOptions contains configuration for the Prometheus collector.
type PromOptions struct {
	// Namespace is the metric name prefix.
	Namespace string

	// Registerer receives the collectors. Defaults to the global registerer.
	Registerer prometheus.Registerer
}

// PrometheusCollector implements Collector on top of client_golang.
type PrometheusCollector struct {
	submits            *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	workers            prometheus.Gauge
	breakerTransitions *prometheus.CounterVec
	rateDecisions      *prometheus.CounterVec
	poolAcquires       *prometheus.CounterVec
	cacheGets          *prometheus.CounterVec
	cacheEvictions     *prometheus.CounterVec
	appendDuration     *prometheus.HistogramVec
	flushDuration      *prometheus.HistogramVec
	flushedItems       prometheus.Counter
	logBytes           prometheus.Counter
}

// NewPrometheusCollector creates and registers the toolkit metric set.
func NewPrometheusCollector(optFns ...func(*PromOptions)) (*PrometheusCollector, error) {
	o := PromOptions{
		Namespace:  "grit",
		Registerer: prometheus.DefaultRegisterer,
	}
	for _, fn := range optFns {
		fn(&o)
	}

	c := &PrometheusCollector{
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "worker",
			Name:      "submits_total",
			Help:      "Worker pool submissions by result.",
		}, []string{"result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.Namespace,
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Task execution time by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: o.Namespace,
			Subsystem: "worker",
			Name:      "workers",
			Help:      "Live workers after the last scaling check.",
		}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"name", "state"}),
		rateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Token acquisition attempts by outcome.",
		}, []string{"result"}),
		poolAcquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "pool",
			Name:      "acquires_total",
			Help:      "Object pool acquisition attempts by outcome.",
		}, []string{"result"}),
		cacheGets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "cache",
			Name:      "gets_total",
			Help:      "Cache lookups by outcome.",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Cache entries dropped by reason.",
		}, []string{"reason"}),
		appendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.Namespace,
			Subsystem: "eventstore",
			Name:      "append_duration_seconds",
			Help:      "Event append latency by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.Namespace,
			Subsystem: "batch",
			Name:      "flush_duration_seconds",
			Help:      "Batch flush latency by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		flushedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "batch",
			Name:      "flushed_items_total",
			Help:      "Items delivered to batch sinks.",
		}),
		logBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: "mlog",
			Name:      "appended_bytes_total",
			Help:      "Bytes appended to the mapped log.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.submits, c.taskDuration, c.workers, c.breakerTransitions,
		c.rateDecisions, c.poolAcquires, c.cacheGets, c.cacheEvictions,
		c.appendDuration, c.flushDuration, c.flushedItems, c.logBytes,
	} {
		if err := o.Registerer.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSubmit implements Collector.
func (c *PrometheusCollector) RecordSubmit(err error) {
	if err != nil {
		c.submits.WithLabelValues("rejected").Inc()
	} else {
		c.submits.WithLabelValues("accepted").Inc()
	}
}

// RecordTask implements Collector.
func (c *PrometheusCollector) RecordTask(duration time.Duration, err error) {
	c.taskDuration.WithLabelValues(resultLabel(err)).Observe(duration.Seconds())
}

// RecordScale implements Collector.
func (c *PrometheusCollector) RecordScale(workers int) {
	c.workers.Set(float64(workers))
}

// RecordBreaker implements Collector.
func (c *PrometheusCollector) RecordBreaker(name, state string) {
	c.breakerTransitions.WithLabelValues(name, state).Inc()
}

// RecordRateLimit implements Collector.
func (c *PrometheusCollector) RecordRateLimit(allowed bool) {
	if allowed {
		c.rateDecisions.WithLabelValues("allowed").Inc()
	} else {
		c.rateDecisions.WithLabelValues("limited").Inc()
	}
}

// RecordPoolAcquire implements Collector.
func (c *PrometheusCollector) RecordPoolAcquire(err error) {
	if err != nil {
		c.poolAcquires.WithLabelValues("exhausted").Inc()
	} else {
		c.poolAcquires.WithLabelValues("ok").Inc()
	}
}

// RecordCacheGet implements Collector.
func (c *PrometheusCollector) RecordCacheGet(hit bool) {
	if hit {
		c.cacheGets.WithLabelValues("hit").Inc()
	} else {
		c.cacheGets.WithLabelValues("miss").Inc()
	}
}

// RecordCacheEvict implements Collector.
func (c *PrometheusCollector) RecordCacheEvict(reason string) {
	c.cacheEvictions.WithLabelValues(reason).Inc()
}

// RecordAppend implements Collector.
func (c *PrometheusCollector) RecordAppend(duration time.Duration, err error) {
	c.appendDuration.WithLabelValues(resultLabel(err)).Observe(duration.Seconds())
}

// RecordFlush implements Collector.
func (c *PrometheusCollector) RecordFlush(count int, duration time.Duration, err error) {
	c.flushDuration.WithLabelValues(resultLabel(err)).Observe(duration.Seconds())
	if err == nil && count > 0 {
		c.flushedItems.Add(float64(count))
	}
}

// RecordLogWrite implements Collector.
func (c *PrometheusCollector) RecordLogWrite(bytes int) {
	c.logBytes.Add(float64(bytes))
}
