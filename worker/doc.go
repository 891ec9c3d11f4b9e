// Package worker implements a self-scaling worker pool for deferred work.
//
// Tasks are functions submitted to a bounded queue and executed by a set of
// workers that grows and shrinks between MinWorkers and MaxWorkers. A
// periodic scaling check -- not the submit path -- adds a worker after the
// queue has stayed busy for several consecutive checks and retires an idle
// worker after the queue has stayed quiet. Submission returns a Handle that
// resolves with the task's error; a panicking task never takes its worker
// down.
//
// # Shutdown
//
// Close drains: intake stops, queued and in-flight tasks finish, then
// workers exit. CloseNow cancels queued tasks (their handles resolve with
// ErrClosed) and signals in-flight tasks through their context; tasks are
// cancelled cooperatively, never preempted.
//
// # Quick Start
//
//	p, err := worker.New(func(o *worker.Options) {
//	    o.MinWorkers = 2
//	    o.MaxWorkers = 16
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close(context.Background())
//
//	h, err := p.Submit(ctx, func(ctx context.Context) error {
//	    return tuneDiskQueue(ctx)
//	})
//	if err != nil {
//	    return err // worker.ErrQueueFull under load
//	}
//	if err := h.Wait(ctx); err != nil {
//	    log.Printf("tuning failed: %v", err)
//	}
//
// Result-carrying tasks use the generic Go helper:
//
//	f, _ := worker.Go(p, ctx, func(ctx context.Context) (Sample, error) {
//	    return sampleCPU(ctx)
//	})
//	sample, err := f.Wait(ctx)
package worker
