package grit

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with grit-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithComponent adds a component field to the logger (worker, breaker, ...).
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithBreaker adds a breaker name field to the logger.
func (l *Logger) WithBreaker(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("breaker", name),
	}
}

// WithAggregate adds an aggregate ID field to the logger.
func (l *Logger) WithAggregate(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("aggregate_id", id),
	}
}

// LogTask logs a completed worker task.
func (l *Logger) LogTask(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "task failed",
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "task completed",
			"duration", duration,
		)
	}
}

// LogScale logs a worker pool scaling step.
func (l *Logger) LogScale(ctx context.Context, from, to int) {
	l.InfoContext(ctx, "pool scaled",
		"from", from,
		"to", to,
	)
}

// LogStateChange logs a circuit breaker transition.
func (l *Logger) LogStateChange(ctx context.Context, name, from, to string) {
	l.InfoContext(ctx, "breaker state changed",
		"breaker", name,
		"from", from,
		"to", to,
	)
}

// LogFlush logs a batch flush.
func (l *Logger) LogFlush(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "flush completed",
			"count", count,
		)
	}
}

// LogAppend logs an event store append.
func (l *Logger) LogAppend(ctx context.Context, aggregateID string, seq uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "append failed",
			"aggregate_id", aggregateID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "append completed",
			"aggregate_id", aggregateID,
			"seq", seq,
		)
	}
}

// LogRecovery logs a log replay at startup.
func (l *Logger) LogRecovery(ctx context.Context, recordsReplayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "log recovery failed",
			"records_replayed", recordsReplayed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "log recovery completed",
			"records_replayed", recordsReplayed,
		)
	}
}
