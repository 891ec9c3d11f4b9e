package eventstore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/hupe1980/grit/codec"
	"github.com/hupe1980/grit/metrics"
	"github.com/hupe1980/grit/mlog"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("event store is closed")

	// ErrCodecMismatch is returned by Open when the store was written with
	// a different codec than the one configured.
	ErrCodecMismatch = errors.New("store codec mismatch")
)

// AppendError wraps a failure to persist an event. The aggregate's sequence
// is not advanced, so a retry reuses the same number.
type AppendError struct {
	AggregateID string
	Err         error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("failed to append event for aggregate %q: %v", e.AggregateID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AppendError) Unwrap() error { return e.Err }

// Event is a single immutable fact about an aggregate.
type Event struct {
	// ID uniquely identifies the event.
	ID uuid.UUID `json:"id"`
	// Type is the application-defined event kind.
	Type string `json:"type"`
	// AggregateID names the stream the event belongs to.
	AggregateID string `json:"aggregate_id"`
	// Seq is the event's position in its aggregate's stream, starting at 1
	// with no gaps.
	Seq uint64 `json:"seq"`
	// Timestamp is the append time.
	Timestamp time.Time `json:"timestamp"`
	// Payload is the event body.
	Payload []byte `json:"payload,omitempty"`
	// Metadata carries application-defined annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AppendOption customizes a single append.
type AppendOption func(e *Event)

// WithMetadata attaches metadata to the appended event.
func WithMetadata(md map[string]string) AppendOption {
	return func(e *Event) {
		e.Metadata = md
	}
}

// Options contains configuration for the store.
type Options struct {
	// Codec encodes events for the log. Defaults to codec.Default. The
	// codec name is recorded in the log; reopening with a different codec
	// fails.
	Codec codec.Codec

	// BatchSize is the group-commit batch size for appends.
	BatchSize int

	// FlushInterval bounds how long a buffered event waits before being
	// written to the log.
	FlushInterval time.Duration

	// LogOptions tune the underlying mapped log.
	LogOptions []func(o *mlog.Options)

	// Clock is the time source for event timestamps. Defaults to the wall
	// clock.
	Clock clock.Clock

	// Logger receives recovery and replay diagnostics. Defaults to a
	// discard logger.
	Logger *slog.Logger

	// Metrics receives per-append signals.
	Metrics metrics.Collector
}

// DefaultOptions returns default store options.
var DefaultOptions = Options{
	BatchSize:     100,
	FlushInterval: 5 * time.Millisecond,
}
