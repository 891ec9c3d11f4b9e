// Package batch provides a generic write-behind buffer that delivers items
// to a sink in batches.
//
// A batch is flushed when it reaches BatchSize or when FlushInterval elapses
// since the previous flush, whichever comes first. Items reach the sink in
// Add order, each exactly once. Close performs a final flush, so everything
// accepted before a clean shutdown is delivered.
//
// A sink failure during a size-triggered flush is returned from Add itself;
// a failure during a timed flush is latched and surfaced by the next
// Add/Flush call. Failed batches are dropped, not retried: retry policy
// belongs to the sink.
//
// # Quick Start
//
//	w, err := batch.NewWriter(func(ctx context.Context, items []Sample) error {
//	    return store.WriteAll(ctx, items)
//	})
//	if err != nil {
//	    return err
//	}
//	defer w.Close(context.Background())
//
//	if err := w.Add(ctx, sample); err != nil {
//	    log.Printf("sample dropped: %v", err)
//	}
package batch
