package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/grit/mlog"
)

// replayBuffer bounds how far the replay goroutine runs ahead of the
// consumer.
const replayBuffer = 64

// Iterator streams an aggregate's events in sequence order. It reflects the
// events durable in the log when it was created; events appended or flushed
// later are not reported.
type Iterator struct {
	ch     chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Replay returns an iterator over the aggregate's events, oldest first.
// Each call starts an independent pass over the log.
func (s *Store) Replay(ctx context.Context, aggregateID string) *Iterator {
	ictx, cancel := context.WithCancel(ctx)
	it := &Iterator{
		ch:     make(chan Event, replayBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(it.done)
		defer close(it.ch)

		err := s.log.Replay(ictx, func(ref mlog.RecordRef, rec mlog.Record) error {
			if rec.Type != recordTypeEvent {
				return nil
			}
			var ev Event
			if err := s.codec.Unmarshal(rec.Payload, &ev); err != nil {
				return fmt.Errorf("failed to decode event at segment %d offset %d: %w", ref.Segment, ref.Offset, err)
			}
			if ev.AggregateID != aggregateID {
				return nil
			}
			select {
			case it.ch <- ev:
				return nil
			case <-ictx.Done():
				return ictx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			it.mu.Lock()
			it.err = err
			it.mu.Unlock()
		}
	}()

	return it
}

// Next returns the next event. It blocks until an event is available, the
// replay finishes or the iterator is closed; ok is false once the stream
// ends. Check Err after the stream ends.
func (it *Iterator) Next() (Event, bool) {
	ev, ok := <-it.ch
	return ev, ok
}

// Err returns the error that terminated the replay, if any. It is only
// meaningful after Next has returned ok == false.
func (it *Iterator) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

// Close stops the replay and releases its resources. It is safe to call
// concurrently with Next.
func (it *Iterator) Close() {
	it.cancel()
	<-it.done
}
