package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Options contains configuration for a Tracer.
type Options struct {
	// Exporter receives finished spans. Defaults to a no-op.
	Exporter Exporter

	// Clock is the time source for span timestamps. Defaults to the wall
	// clock.
	Clock clock.Clock
}

// Tracer creates spans. The zero value is not usable; use NewTracer.
type Tracer struct {
	exporter Exporter
	clock    clock.Clock
}

// NewTracer creates a tracer.
func NewTracer(optFns ...func(o *Options)) *Tracer {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Exporter == nil {
		opts.Exporter = noopExporter{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Tracer{exporter: opts.Exporter, clock: opts.Clock}
}

type spanCtxKey struct{}

// FromContext returns the span stored in ctx, if any.
func FromContext(ctx context.Context) (*Span, bool) {
	sp, ok := ctx.Value(spanCtxKey{}).(*Span)
	return sp, ok
}

// ContextWithSpan returns a copy of ctx carrying the span.
func ContextWithSpan(ctx context.Context, sp *Span) context.Context {
	return context.WithValue(ctx, spanCtxKey{}, sp)
}

// SpanOption customizes a span at start time.
type SpanOption func(s *Span)

// WithTag sets a tag on the new span.
func WithTag(key, value string) SpanOption {
	return func(s *Span) {
		s.tags[key] = value
	}
}

// StartSpan starts a span. The parent, if any, is taken from ctx; a span
// without a parent starts a new trace. The returned context carries the new
// span so nested calls pick it up as their parent.
func (t *Tracer) StartSpan(ctx context.Context, name string, optFns ...SpanOption) (context.Context, *Span) {
	sp := &Span{
		SpanID: uuid.New(),
		Name:   name,
		Start:  t.clock.Now(),
		tracer: t,
		tags:   make(map[string]string),
	}

	if parent, ok := FromContext(ctx); ok {
		sp.TraceID = parent.TraceID
		sp.ParentID = parent.SpanID
	} else {
		sp.TraceID = uuid.New()
	}

	for _, fn := range optFns {
		fn(sp)
	}

	return ContextWithSpan(ctx, sp), sp
}

// SpanLog is a timestamped message attached to a span.
type SpanLog struct {
	Time    time.Time
	Message string
}

// Span is a single timed operation in a trace. The identity fields are set
// at start and immutable; tags, logs and status may be updated until End.
type Span struct {
	TraceID  uuid.UUID
	SpanID   uuid.UUID
	ParentID uuid.UUID // zero for a root span
	Name     string
	Start    time.Time

	tracer *Tracer
	once   sync.Once

	mu     sync.Mutex
	tags   map[string]string
	logs   []SpanLog
	status string
	end    time.Time
}

// SetTag sets a tag. Calls after End are ignored.
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.end.IsZero() {
		return
	}
	s.tags[key] = value
}

// SetStatus records a terminal status such as "ok" or "error".
func (s *Span) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.end.IsZero() {
		return
	}
	s.status = status
}

// Logf appends a timestamped log line to the span.
func (s *Span) Logf(format string, args ...any) {
	now := s.tracer.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.end.IsZero() {
		return
	}
	s.logs = append(s.logs, SpanLog{Time: now, Message: fmt.Sprintf(format, args...)})
}

// End finishes the span and exports it. Only the first call has an effect.
func (s *Span) End() {
	s.once.Do(func() {
		s.mu.Lock()
		s.end = s.tracer.clock.Now()
		s.mu.Unlock()
		s.tracer.exporter.ExportSpan(s)
	})
}

// EndTime returns when the span ended, zero while it is still running.
func (s *Span) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// Duration returns the span's length, zero while it is still running.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.Start)
}

// Status returns the recorded status.
func (s *Span) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Tags returns a copy of the span's tags.
func (s *Span) Tags() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	return tags
}

// Logs returns a copy of the span's log lines.
func (s *Span) Logs() []SpanLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]SpanLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// IsRoot reports whether the span started its trace.
func (s *Span) IsRoot() bool {
	return s.ParentID == uuid.Nil
}

// Exporter receives spans as they end.
type Exporter interface {
	ExportSpan(s *Span)
}

type noopExporter struct{}

func (noopExporter) ExportSpan(*Span) {}

// LogExporter writes finished spans to a structured logger.
type LogExporter struct {
	logger *slog.Logger
}

// NewLogExporter creates an exporter logging at info level.
func NewLogExporter(logger *slog.Logger) *LogExporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogExporter{logger: logger}
}

// ExportSpan implements Exporter.
func (e *LogExporter) ExportSpan(s *Span) {
	attrs := []any{
		slog.String("trace_id", s.TraceID.String()),
		slog.String("span_id", s.SpanID.String()),
		slog.String("name", s.Name),
		slog.Duration("duration", s.Duration()),
	}
	if !s.IsRoot() {
		attrs = append(attrs, slog.String("parent_id", s.ParentID.String()))
	}
	if status := s.Status(); status != "" {
		attrs = append(attrs, slog.String("status", status))
	}
	for k, v := range s.Tags() {
		attrs = append(attrs, slog.String("tag."+k, v))
	}
	e.logger.Info("span finished", attrs...)
}

// InMemoryExporter collects finished spans, mainly for tests.
type InMemoryExporter struct {
	mu    sync.Mutex
	spans []*Span
}

// NewInMemoryExporter creates an empty in-memory exporter.
func NewInMemoryExporter() *InMemoryExporter {
	return &InMemoryExporter{}
}

// ExportSpan implements Exporter.
func (e *InMemoryExporter) ExportSpan(s *Span) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, s)
}

// Spans returns the collected spans in end order.
func (e *InMemoryExporter) Spans() []*Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	spans := make([]*Span, len(e.spans))
	copy(spans, e.spans)
	return spans
}

// Reset drops the collected spans.
func (e *InMemoryExporter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = nil
}
