package mlog

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/grit/internal/fs"
	"github.com/hupe1980/grit/metrics"
)

var (
	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("log is closed")

	// ErrRecordTooLarge is returned when a payload cannot fit into a single
	// segment even when the segment is empty.
	ErrRecordTooLarge = errors.New("record exceeds segment capacity")

	// ErrCorrupted is the sentinel wrapped by CorruptionError, for use with
	// errors.Is.
	ErrCorrupted = errors.New("log corruption")

	// ErrInvalidSegmentSize is returned by Open for segment sizes too small
	// to hold the header and at least one frame.
	ErrInvalidSegmentSize = errors.New("segment size too small")
)

// CorruptionError describes a record that failed validation during replay.
type CorruptionError struct {
	// Segment is the index of the corrupt segment.
	Segment int
	// Offset is the byte offset of the corrupt frame within the segment file.
	Offset int64
	// Reason describes what failed.
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("log corruption in segment %d at offset %d: %s", e.Segment, e.Offset, e.Reason)
}

// Unwrap returns ErrCorrupted.
func (e *CorruptionError) Unwrap() error { return ErrCorrupted }

// DurabilityMode defines the msync behavior for appends.
type DurabilityMode int

const (
	// DurabilityAsync leaves flushing to the operating system. Fastest, but
	// recent appends may be lost on crash.
	DurabilityAsync DurabilityMode = iota

	// DurabilityInterval flushes the mapping on a background ticker,
	// amortizing the msync cost across many appends. Recommended for most
	// workloads.
	DurabilityInterval

	// DurabilitySync flushes the mapping after every append. Slowest but
	// strongest guarantee.
	DurabilitySync
)

// ReplayMode controls how Replay reacts to a corrupt record.
type ReplayMode int

const (
	// ReplayStop aborts the replay and returns the CorruptionError.
	ReplayStop ReplayMode = iota

	// ReplaySkip logs the corruption and continues with the next segment.
	// Records after the corrupt frame in the same segment are unreachable
	// because frame boundaries cannot be trusted past it.
	ReplaySkip
)

// Record is a single entry read back from the log.
type Record struct {
	// Type is an application-defined record kind.
	Type uint8
	// Payload is the record body. It is only valid for the duration of the
	// replay callback; copy it to retain it.
	Payload []byte
}

// RecordRef locates a record in the log.
type RecordRef struct {
	// Segment is the index of the segment holding the record.
	Segment int
	// Offset is the byte offset of the record's frame within the segment.
	Offset int64
}

// SegmentInfo describes one segment of the log.
type SegmentInfo struct {
	// Index is the monotonically increasing segment number.
	Index int
	// Path is the location of the segment file.
	Path string
	// Sealed reports whether the segment is closed for writes.
	Sealed bool
	// Compressed reports whether the segment file is zstd-compressed.
	Compressed bool
	// Size is the written length in bytes (uncompressed for sealed
	// segments, current write offset for the active one).
	Size int64
}

// Options contains configuration for the log.
type Options struct {
	// Dir is the directory where segment files are stored. Open overrides
	// it with its dir argument.
	Dir string

	// SegmentSize is the pre-allocated size of each segment file. Appends
	// that no longer fit roll the log over to a fresh segment.
	SegmentSize int64

	// Durability controls msync behavior (Async, Interval, Sync).
	Durability DurabilityMode

	// SyncInterval is the flush period in DurabilityInterval mode.
	SyncInterval time.Duration

	// Compress enables zstd compression of sealed segments. The raw file
	// is replaced by a .zst file once the segment rolls.
	Compress bool

	// CompressionLevel sets the zstd level (1-22). Default 3.
	CompressionLevel int

	// ReplayMode controls corruption handling during Replay and recovery.
	ReplayMode ReplayMode

	// FS is the file system used for all file operations. Defaults to the
	// local file system.
	FS fs.FileSystem

	// Clock is the time source for the interval syncer. Defaults to the
	// wall clock.
	Clock clock.Clock

	// Logger receives background sync and replay diagnostics. Defaults to
	// a discard logger.
	Logger *slog.Logger

	// Metrics receives per-append signals.
	Metrics metrics.Collector
}

// DefaultOptions returns default log options.
var DefaultOptions = Options{
	Dir:              ".",
	SegmentSize:      64 << 20, // 64 MiB
	Durability:       DurabilityInterval,
	SyncInterval:     10 * time.Millisecond,
	Compress:         false,
	CompressionLevel: 3,
	ReplayMode:       ReplayStop,
}
