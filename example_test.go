package grit_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/grit"
	"github.com/hupe1980/grit/breaker"
	"github.com/hupe1980/grit/cache"
	"github.com/hupe1980/grit/ratelimit"
)

// Example_workerPool demonstrates submitting tasks to a self-scaling pool.
func Example_workerPool() {
	ctx := context.Background()

	rt := grit.New()
	pool, err := rt.NewWorkerPool()
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close(ctx)

	handle, err := pool.Submit(ctx, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("task error:", handle.Wait(ctx))
	// Output: task error: <nil>
}

// Example_breaker demonstrates a circuit breaker tripping after repeated
// failures.
func Example_breaker() {
	ctx := context.Background()

	cb := breaker.New("upstream", func(o *breaker.Options) {
		o.FailureThreshold = 3
	})

	boom := errors.New("boom")
	for range 3 {
		cb.Execute(ctx, func(ctx context.Context) error { return boom })
	}

	err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
	fmt.Println(errors.Is(err, breaker.ErrOpen))
	// Output: true
}

// Example_rateLimit demonstrates non-blocking token acquisition.
func Example_rateLimit() {
	limiter, err := ratelimit.NewTokenBucket(10, 2)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(limiter.TryAcquire(1))
	fmt.Println(limiter.TryAcquire(1))
	fmt.Println(errors.Is(limiter.TryAcquire(1), ratelimit.ErrLimitExceeded))
	// Output:
	// <nil>
	// <nil>
	// true
}

// Example_cache demonstrates the loading cache with request coalescing.
func Example_cache() {
	ctx := context.Background()

	c, err := cache.New[string, string](func(o *cache.Options[string, string]) {
		o.MaxEntries = 100
	})
	if err != nil {
		log.Fatal(err)
	}

	v, err := c.GetOrLoad(ctx, "greeting", func(ctx context.Context) (string, error) {
		return "hello", nil
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(v)
	// Output: hello
}

// Example_eventStore demonstrates appending and replaying events.
func Example_eventStore() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "grit-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	rt := grit.New()
	store, err := rt.OpenEventStore(ctx, dir)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close(ctx)

	if _, err := store.Append(ctx, "order-1", "created", []byte(`{"total":42}`)); err != nil {
		log.Fatal(err)
	}
	if err := store.Sync(ctx); err != nil {
		log.Fatal(err)
	}

	it := store.Replay(ctx, "order-1")
	defer it.Close()

	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		fmt.Printf("%s seq=%d\n", ev.Type, ev.Seq)
	}
	// Output: created seq=1
}
