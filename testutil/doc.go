// Package testutil provides testing utilities for Grit.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random source and a polling helper for
// asynchronous conditions.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	payload := rng.Bytes(64)
//	order := rng.Perm(100)
//
// # Polling
//
//	err := testutil.Poll(time.Second, 10*time.Millisecond, func() bool {
//		return pool.Workers() == 4
//	})
package testutil
