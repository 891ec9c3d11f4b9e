// Package mlog implements a memory-mapped, segmented append log.
//
// Records are framed with a length prefix and a CRC32 checksum and copied
// into a read-write mapping of the active segment file. The write offset is
// published only after the full frame is in place, so readers never observe
// a torn tail. Full segments are sealed, trimmed to their written length and
// optionally zstd-compressed.
//
// # Durability
//
// Three modes trade throughput against crash safety: DurabilitySync flushes
// after every append, DurabilityInterval (the default) flushes on a
// background ticker, and DurabilityAsync leaves flushing to the operating
// system. Sync is always available as a manual barrier.
//
// # Quick Start
//
//	log, err := mlog.Open(dir, func(o *mlog.Options) {
//		o.SegmentSize = 16 << 20
//	})
//	if err != nil {
//		return err
//	}
//	defer log.Close(ctx)
//
//	ref, err := log.Append(ctx, 1, []byte("payload"))
//	if err != nil {
//		return err
//	}
//	_ = ref
//
//	err = log.Replay(ctx, func(ref mlog.RecordRef, rec mlog.Record) error {
//		fmt.Printf("%d/%d: %q\n", ref.Segment, ref.Offset, rec.Payload)
//		return nil
//	})
package mlog
