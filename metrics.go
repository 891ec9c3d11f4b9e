package grit

import (
	"github.com/hupe1980/grit/metrics"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics package ships a Prometheus implementation.
type MetricsCollector = metrics.Collector

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector = metrics.NoopCollector

// BasicMetricsCollector is an in-memory implementation of MetricsCollector
// backed by atomics. Use it when you want counters without an external
// metrics system.
type BasicMetricsCollector = metrics.BasicCollector
