// Package grit provides building blocks for resilient concurrent Go
// services.
//
// Grit bundles the plumbing that most long-running services end up writing
// by hand: a self-scaling worker pool, a circuit breaker, token-bucket rate
// limiting, object pooling, a TTL + LRU cache, batch writing, a
// memory-mapped append-only log, an event store with replay, tracing, and a
// resource controller. Every component takes the same injectable
// dependencies (clock, logger, metrics collector), so the whole stack is
// deterministic under test.
//
// # Quick Start
//
// The Runtime ties shared dependencies and configuration together:
//
//	cfg, _ := config.Load("grit.yaml")
//	rt := grit.New(grit.WithConfig(cfg))
//
//	pool, _ := rt.NewWorkerPool()
//	defer pool.Close(context.Background())
//
//	handle, _ := pool.Submit(ctx, func(ctx context.Context) error {
//	    return processOrder(ctx, order)
//	})
//	err := handle.Wait(ctx)
//
// Components can also be constructed directly from their packages when no
// shared configuration is needed:
//
//	cb := breaker.New("payments")
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return chargeCard(ctx, card)
//	})
//
// # Durability
//
// The eventstore and mlog packages persist data through a segmented,
// memory-mapped log. Appends are group-committed; durability is tunable
// from async (fast, may lose the tail on crash) to per-append msync. Replay
// iterates the log from the beginning and surfaces torn or corrupt tails
// explicitly.
//
// # Composition
//
//	limiter, _ := rt.NewTokenBucket()
//	cb := rt.NewBreaker("upstream")
//	pool, _ := rt.NewWorkerPool()
//
//	pool.Submit(ctx, func(ctx context.Context) error {
//	    if err := limiter.Wait(ctx); err != nil {
//	        return err
//	    }
//	    return cb.Execute(ctx, callUpstream)
//	})
//
// Generic components (cache.Cache, pool.Pool, batch.Writer) are constructed
// from their own packages; CacheOptions, PoolOptions and
// Runtime.BatchOptions seed them from the runtime.
package grit
