package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/grit/batch"
	"github.com/hupe1980/grit/codec"
	"github.com/hupe1980/grit/metrics"
	"github.com/hupe1980/grit/mlog"
)

// Record kinds in the backing log.
const (
	recordTypeMeta  uint8 = 0
	recordTypeEvent uint8 = 1
)

// Store is an append-only event store backed by a memory-mapped log.
// Appends are group-committed through a batch writer; per-aggregate
// sequences are strictly increasing and gapless, starting at 1.
//
// Store is safe for concurrent use.
type Store struct {
	opts    Options
	codec   codec.Codec
	log     *mlog.Log
	writer  *batch.Writer[[]byte]
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Collector

	skipCorrupt bool

	// mu guards nextSeq and closed. Append holds it across the sequence
	// assignment and the writer hand-off so concurrent appends to the same
	// aggregate cannot race a sequence number.
	mu      sync.Mutex
	nextSeq map[string]uint64
	closed  bool
}

// Open opens or creates the store in dir. Existing segments are scanned
// concurrently to rebuild the per-aggregate sequence counters.
func Open(ctx context.Context, dir string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
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

	// The store's ambient dependencies also back the log unless the
	// caller overrides them.
	logFns := append([]func(o *mlog.Options){func(o *mlog.Options) {
		o.Clock = opts.Clock
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	}}, opts.LogOptions...)

	lopts := mlog.DefaultOptions
	for _, fn := range logFns {
		fn(&lopts)
	}

	log, err := mlog.Open(dir, logFns...)
	if err != nil {
		return nil, err
	}

	s := &Store{
		opts:        opts,
		codec:       opts.Codec,
		log:         log,
		clock:       opts.Clock,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		skipCorrupt: lopts.ReplayMode == mlog.ReplaySkip,
		nextSeq:     make(map[string]uint64),
	}

	if err := s.recover(ctx); err != nil {
		log.Close(ctx)
		return nil, err
	}

	// Oversized payloads are rejected in append before they reach the
	// writer, and a failed log append publishes nothing, so the batch
	// writer can redeliver a failed batch without duplicating records.
	sink := func(ctx context.Context, items [][]byte) error {
		for _, data := range items {
			if _, err := log.Append(ctx, recordTypeEvent, data); err != nil {
				return err
			}
		}
		return nil
	}
	writer, err := batch.NewWriter(sink, func(o *batch.Options) {
		o.BatchSize = opts.BatchSize
		o.FlushInterval = opts.FlushInterval
		o.Clock = opts.Clock
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})
	if err != nil {
		log.Close(ctx)
		return nil, err
	}
	s.writer = writer

	return s, nil
}

// recover scans all segments in parallel, rebuilding nextSeq and validating
// the recorded codec name. An empty store gets its codec stamp appended.
func (s *Store) recover(ctx context.Context) error {
	segs := s.log.Segments()

	type segState struct {
		seqs  map[string]uint64
		codec string
	}
	states := make([]segState, len(segs))

	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range segs {
		g.Go(func() error {
			seqs := make(map[string]uint64)
			var codecName string
			err := s.log.ReplaySegment(gctx, seg, func(ref mlog.RecordRef, rec mlog.Record) error {
				switch rec.Type {
				case recordTypeMeta:
					codecName = string(rec.Payload)
					return nil
				case recordTypeEvent:
					var ev Event
					if err := s.codec.Unmarshal(rec.Payload, &ev); err != nil {
						return fmt.Errorf("failed to decode event at segment %d offset %d: %w", ref.Segment, ref.Offset, err)
					}
					if ev.Seq > seqs[ev.AggregateID] {
						seqs[ev.AggregateID] = ev.Seq
					}
					return nil
				default:
					return fmt.Errorf("unknown record type %d at segment %d offset %d", rec.Type, ref.Segment, ref.Offset)
				}
			})
			if err != nil {
				var corrupt *mlog.CorruptionError
				if errors.As(err, &corrupt) && s.skipCorrupt {
					s.logger.Warn("skipping corrupt segment during recovery",
						slog.Int("segment", corrupt.Segment),
						slog.Int64("offset", corrupt.Offset),
						slog.String("reason", corrupt.Reason))
				} else {
					return err
				}
			}
			states[i] = segState{seqs: seqs, codec: codecName}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var stamped string
	for _, st := range states {
		if st.codec != "" {
			stamped = st.codec
		}
		for id, seq := range st.seqs {
			if seq > s.nextSeq[id] {
				s.nextSeq[id] = seq
			}
		}
	}

	switch {
	case stamped == "":
		if _, err := s.log.Append(ctx, recordTypeMeta, []byte(s.codec.Name())); err != nil {
			return err
		}
		return s.log.Sync(ctx)
	case stamped != s.codec.Name():
		return fmt.Errorf("%w: store written with %q, opened with %q", ErrCodecMismatch, stamped, s.codec.Name())
	default:
		return nil
	}
}

// Append adds an event to the aggregate's stream and returns it with its
// assigned sequence number. On error the sequence is not consumed.
func (s *Store) Append(ctx context.Context, aggregateID, eventType string, payload []byte, optFns ...AppendOption) (Event, error) {
	start := s.clock.Now()

	ev, err := s.append(ctx, aggregateID, eventType, payload, optFns)
	s.metrics.RecordAppend(s.clock.Since(start), err)
	if err != nil {
		return Event{}, &AppendError{AggregateID: aggregateID, Err: err}
	}
	return ev, nil
}

func (s *Store) append(ctx context.Context, aggregateID, eventType string, payload []byte, optFns []AppendOption) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Event{}, ErrClosed
	}

	ev := Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Seq:         s.nextSeq[aggregateID] + 1,
		Timestamp:   s.clock.Now(),
		Payload:     payload,
	}
	for _, fn := range optFns {
		fn(&ev)
	}

	data, err := s.codec.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode event: %w", err)
	}
	if max := s.log.MaxPayload(); int64(len(data)) > max {
		return Event{}, fmt.Errorf("encoded event is %d bytes, log accepts at most %d: %w", len(data), max, mlog.ErrRecordTooLarge)
	}

	if err := s.writer.Add(ctx, data); err != nil {
		return Event{}, err
	}

	s.nextSeq[aggregateID] = ev.Seq
	return ev, nil
}

// Seq returns the sequence number of the aggregate's latest accepted event,
// zero for an unknown aggregate.
func (s *Store) Seq(aggregateID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq[aggregateID]
}

// Sync flushes buffered events through the batch writer and the log. It is
// the store's durability barrier.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	if err := s.writer.Flush(ctx); err != nil {
		return err
	}
	return s.log.Sync(ctx)
}

// Close flushes pending events and closes the log. Further operations
// return ErrClosed.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.writer.Close(ctx)
	if closeErr := s.log.Close(ctx); err == nil {
		err = closeErr
	}
	return err
}
