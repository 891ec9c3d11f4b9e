// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the standard os package
//   - [FaultyFS]: test utility for fault injection (simulated I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
//
// Tests inject [FaultyFS] to simulate failures, e.g. a log segment whose
// sync starts failing:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("grit-000002", fs.Fault{FailOnSync: true})
//	// hand ffs to the component under test
//
// # Design Notes
//
// This package intentionally does NOT take context.Context parameters.
// Local filesystem operations are fast and non-interruptible at the syscall
// level; context plumbing here would add overhead without meaningful
// cancellation capability.
package fs
