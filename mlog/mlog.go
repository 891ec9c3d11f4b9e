package mlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/grit/internal/fs"
	"github.com/hupe1980/grit/metrics"
)

// Log is a memory-mapped, segmented append log. Appends go through a
// read-write mapping of the active segment; full segments are sealed,
// trimmed to their written length and optionally zstd-compressed.
//
// Log is safe for concurrent use.
type Log struct {
	opts    Options
	fs      fs.FileSystem
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Collector

	// mu guards active, sealed, closed, dirty and syncErr. The active
	// segment's write offset is additionally published atomically so
	// replays can read the mapping without the lock.
	mu      sync.Mutex
	active  *activeSegment
	sealed  []SegmentInfo
	closed  bool
	dirty   bool
	syncErr error

	stop chan struct{}
	done chan struct{}
}

// Open opens the log in dir, creating the directory and the first segment if
// needed. Existing segments are recovered: the newest unsealed segment is
// remapped for appends at the offset past its last intact frame.
func Open(dir string, optFns ...func(o *Options)) (*Log, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Dir = dir

	if opts.SegmentSize < headerSize+int64(frameOverhead)+1 {
		return nil, ErrInvalidSegmentSize
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default
	}

	l := &Log{
		opts:    opts,
		fs:      opts.FS,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := l.recover(); err != nil {
		return nil, err
	}

	if opts.Durability == DurabilityInterval {
		go l.runSyncer()
	} else {
		close(l.done)
	}

	return l, nil
}

// recover rebuilds the segment list from dir and opens or creates the active
// segment.
func (l *Log) recover() error {
	infos, err := listSegments(l.fs, l.opts.Dir)
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		return l.startSegment(0)
	}

	last := infos[len(infos)-1]
	for i := range infos {
		infos[i].Sealed = true
	}

	if last.Compressed {
		l.sealed = infos
		return l.startSegment(last.Index + 1)
	}

	data, err := readSegmentData(l.fs, last)
	if err != nil {
		return err
	}
	flags, err := readHeader(data)
	if err != nil {
		return &CorruptionError{Segment: last.Index, Offset: 0, Reason: err.Error()}
	}
	if flags&flagSealed != 0 {
		l.sealed = infos
		return l.startSegment(last.Index + 1)
	}

	end, scanErr := scanRecords(data, last.Index, nil)
	if scanErr != nil {
		var corrupt *CorruptionError
		if !errors.As(scanErr, &corrupt) {
			return scanErr
		}
		if l.opts.ReplayMode == ReplayStop {
			return corrupt
		}
		// Leave the damaged segment in place as a sealed read-only tail
		// and continue in a fresh one.
		l.logger.Warn("abandoning corrupt segment",
			slog.Int("segment", corrupt.Segment),
			slog.Int64("offset", corrupt.Offset),
			slog.String("reason", corrupt.Reason))
		l.sealed = infos
		return l.startSegment(last.Index + 1)
	}

	l.sealed = infos[:len(infos)-1]
	active, err := openActive(l.fs, last.Path, last.Index, l.opts.SegmentSize, end, false)
	if err != nil {
		return err
	}
	l.active = active
	return nil
}

// startSegment creates a fresh segment with the given index and makes it the
// active one.
func (l *Log) startSegment(index int) error {
	s, err := openActive(l.fs, segmentPath(l.opts.Dir, index), index, l.opts.SegmentSize, headerSize, true)
	if err != nil {
		return err
	}
	l.active = s
	return nil
}

// Append writes a record to the log and returns its location. The record
// becomes visible to replays atomically: the write offset is advanced only
// after the full frame, checksum included, is in the mapping.
func (l *Log) Append(ctx context.Context, typ uint8, payload []byte) (RecordRef, error) {
	if err := ctx.Err(); err != nil {
		return RecordRef{}, err
	}
	if int64(len(payload)) > maxPayloadSize {
		return RecordRef{}, ErrRecordTooLarge
	}

	need := frameSize(len(payload))
	if need > l.opts.SegmentSize-headerSize {
		return RecordRef{}, ErrRecordTooLarge
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return RecordRef{}, ErrClosed
	}

	off := l.active.writeOff.Load()
	if off+need > l.opts.SegmentSize {
		if err := l.rollLocked(); err != nil {
			return RecordRef{}, err
		}
		off = l.active.writeOff.Load()
	}

	buf := l.active.mapping.Bytes()
	encodeFrame(buf[off:off+need], typ, payload)

	if l.opts.Durability == DurabilitySync {
		if err := l.active.sync(); err != nil {
			return RecordRef{}, err
		}
	} else {
		l.dirty = true
	}

	// Publish. Readers scanning the mapping stop before this point until
	// the store is visible.
	l.active.writeOff.Store(off + need)
	l.metrics.RecordLogWrite(int(need))

	return RecordRef{Segment: l.active.index, Offset: off}, nil
}

// rollLocked seals the active segment and starts the next one.
func (l *Log) rollLocked() error {
	info, err := l.active.seal()
	if err != nil {
		return err
	}

	if l.opts.Compress {
		compressed, err := compressSegment(l.fs, info, l.opts.CompressionLevel)
		if err != nil {
			// The raw sealed segment is intact; keep it uncompressed.
			l.logger.Warn("failed to compress sealed segment",
				slog.Int("segment", info.Index), slog.Any("error", err))
		} else {
			info = compressed
		}
	}

	l.sealed = append(l.sealed, info)
	return l.startSegment(info.Index + 1)
}

// Sync flushes the active segment to disk. It is the manual durability
// barrier for DurabilityAsync and DurabilityInterval modes. A flush error
// from the background syncer is surfaced here.
func (l *Log) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if err := l.syncErr; err != nil {
		l.syncErr = nil
		return err
	}
	if err := l.active.sync(); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

// runSyncer flushes the mapping on a ticker in DurabilityInterval mode.
// Errors are logged and latched for the next Sync or Close call.
func (l *Log) runSyncer() {
	defer close(l.done)

	ticker := l.clock.Ticker(l.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			if l.closed || !l.dirty {
				l.mu.Unlock()
				continue
			}
			if err := l.active.sync(); err != nil {
				if l.syncErr == nil {
					l.syncErr = err
				}
				l.logger.Warn("background log sync failed", slog.Any("error", err))
			} else {
				l.dirty = false
			}
			l.mu.Unlock()
		}
	}
}

// Replay calls fn for each record in append order across all segments.
// Sealed .zst segments are decompressed on the fly. The replay observes the
// records published at the time each segment is reached; records appended
// concurrently behind the snapshot offset are not reported.
//
// A corrupt record aborts the replay with a *CorruptionError under
// ReplayStop. Under ReplaySkip the corruption is logged and the replay
// continues with the next segment; later records in the damaged segment are
// unreachable. Returning an error from fn stops the replay with that error.
func (l *Log) Replay(ctx context.Context, fn func(ref RecordRef, rec Record) error) error {
	sealed, activeData, activeIndex, ok := l.snapshot()
	if !ok {
		return ErrClosed
	}

	for _, info := range sealed {
		if err := l.replaySegment(ctx, info, fn); err != nil {
			var corrupt *CorruptionError
			if errors.As(err, &corrupt) && l.opts.ReplayMode == ReplaySkip {
				l.logger.Warn("skipping corrupt segment during replay",
					slog.Int("segment", corrupt.Segment),
					slog.Int64("offset", corrupt.Offset),
					slog.String("reason", corrupt.Reason))
				continue
			}
			return err
		}
	}

	return l.scanWithContext(ctx, activeData, activeIndex, fn)
}

// ReplaySegment calls fn for each record of a single segment, in order. It
// supports concurrent per-segment scans; corruption always aborts with a
// *CorruptionError regardless of ReplayMode, leaving the policy to the
// caller.
func (l *Log) ReplaySegment(ctx context.Context, info SegmentInfo, fn func(ref RecordRef, rec Record) error) error {
	if !info.Sealed {
		_, activeData, activeIndex, ok := l.snapshot()
		if !ok {
			return ErrClosed
		}
		if activeIndex != info.Index {
			return fmt.Errorf("segment %d is not sealed and not active", info.Index)
		}
		return l.scanWithContext(ctx, activeData, activeIndex, fn)
	}
	return l.replaySegment(ctx, info, fn)
}

func (l *Log) replaySegment(ctx context.Context, info SegmentInfo, fn func(ref RecordRef, rec Record) error) error {
	data, err := readSegmentData(l.fs, info)
	if err != nil {
		return err
	}
	return l.scanWithContext(ctx, data, info.Index, fn)
}

func (l *Log) scanWithContext(ctx context.Context, data []byte, index int, fn func(ref RecordRef, rec Record) error) error {
	if _, err := readHeader(data); err != nil {
		return &CorruptionError{Segment: index, Offset: 0, Reason: err.Error()}
	}

	wrapped := fn
	if fn != nil {
		wrapped = func(ref RecordRef, rec Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ref, rec)
		}
	}

	_, err := scanRecords(data, index, wrapped)
	return err
}

// scanRecords iterates the frames in data (header included) and reports the
// offset past the last intact frame. fn may be nil to only locate the end.
// An invalid frame stops the scan with a *CorruptionError; an error from fn
// stops it with that error.
func scanRecords(data []byte, index int, fn func(ref RecordRef, rec Record) error) (int64, error) {
	off := headerSize
	for off < int64(len(data)) {
		rec, n, res, reason := decodeFrame(data[off:])
		switch res {
		case decodeEnd:
			return off, nil
		case decodeCorrupt:
			return off, &CorruptionError{Segment: index, Offset: off, Reason: reason}
		}
		if fn != nil {
			if err := fn(RecordRef{Segment: index, Offset: off}, rec); err != nil {
				return off, err
			}
		}
		off += n
	}
	return off, nil
}

// snapshot copies the sealed segment list and the written region of the
// active segment. The copy pins the replay to the records published at this
// point and stays valid if the active segment rolls and unmaps concurrently.
func (l *Log) snapshot() ([]SegmentInfo, []byte, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, nil, 0, false
	}
	sealed := make([]SegmentInfo, len(l.sealed))
	copy(sealed, l.sealed)

	data := make([]byte, l.active.writeOff.Load())
	copy(data, l.active.mapping.Bytes()[:len(data)])
	return sealed, data, l.active.index, true
}

// Segments lists the log's segments in order, the active one last.
func (l *Log) Segments() []SegmentInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	infos := make([]SegmentInfo, len(l.sealed))
	copy(infos, l.sealed)
	if !l.closed {
		infos = append(infos, SegmentInfo{
			Index: l.active.index,
			Path:  l.active.path,
			Size:  l.active.writeOff.Load(),
		})
	}
	return infos
}

// MaxPayload returns the largest payload Append accepts with the configured
// segment size. Callers buffering records ahead of Append can reject
// oversized payloads up front instead of discovering ErrRecordTooLarge
// mid-batch.
func (l *Log) MaxPayload() int64 {
	return min(l.opts.SegmentSize-headerSize-frameOverhead, maxPayloadSize)
}

// Size returns the written bytes across all segments. Compressed segments
// contribute their on-disk size.
func (l *Log) Size() int64 {
	var total int64
	for _, info := range l.Segments() {
		total += info.Size
	}
	return total
}

// Close flushes the active segment and releases the mapping. Further
// operations return ErrClosed.
func (l *Log) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stop)

	err := l.syncErr
	if syncErr := l.active.sync(); err == nil {
		err = syncErr
	}
	if discardErr := l.active.discard(); err == nil {
		err = discardErr
	}
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
