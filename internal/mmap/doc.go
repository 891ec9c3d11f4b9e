// Package mmap provides memory-mapped file access for the append log.
//
// # Overview
//
// Log segments are pre-sized files mapped into memory so that record frames
// can be written with plain copies and read back with zero-copy slices. The
// package hides the platform differences behind a small Mapping type.
//
// # Usage
//
//	f, _ := os.OpenFile("grit-000001.log", os.O_RDWR, 0o644)
//	m, err := mmap.OpenFile(f, size, mmap.ReadWrite)
//	if err != nil { ... }
//	defer m.Close()
//
//	copy(m.Bytes()[off:], frame) // write a frame
//	_ = m.Sync()                 // msync to the backing file
//
// Read-only mappings of whole files are available via Open:
//
//	m, err := mmap.Open("grit-000001.log")
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2), madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile, FlushViewOfFile (madvise is
//     a no-op)
//
// # Thread Safety
//
// Mapping is safe for concurrent readers. Writers must coordinate externally;
// the log serializes appends with its own lock. Close() is idempotent and
// protected by atomic operations, but callers must ensure no goroutine
// touches Bytes() after Close() returns.
package mmap
