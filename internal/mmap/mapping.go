package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	size   int
	mode   Mode
	closed atomic.Bool
	// unmap and sync are the platform-specific functions bound at map time.
	unmap func([]byte) error
	sync  func([]byte) error
}

// Open maps the whole file at path into memory read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{data: nil, size: 0, mode: ReadOnly}, nil
	}

	return OpenFile(f, int(size), ReadOnly)
}

// OpenFile maps size bytes of the open file f.
//
// The file must already be at least size bytes long (the log pre-sizes
// segments with Truncate before mapping). The mapping stays valid after f is
// closed; the caller owns f.
func OpenFile(f *os.File, size int, mode Mode) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, unmapFunc, syncFunc, err := osMap(f, size, mode == ReadWrite)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:  data,
		size:  size,
		mode:  mode,
		unmap: unmapFunc,
		sync:  syncFunc,
	}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Bytes returns the underlying byte slice.
//
// The slice is valid only until Close() is called. For ReadWrite mappings
// writes through the slice become visible to the backing file; call Sync to
// make them durable.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether the mapping was opened ReadWrite.
func (m *Mapping) Writable() bool {
	return m.mode == ReadWrite
}

// WriteAt copies p into the mapping at off. It implements io.WriterAt.
func (m *Mapping) WriteAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if m.mode != ReadWrite {
		return 0, ErrReadOnly
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off+int64(len(p)) > int64(len(m.data)) {
		return 0, ErrOutOfBounds
	}
	return copy(m.data[off:], p), nil
}

// Sync flushes modified pages to the backing file (msync on Unix).
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.mode != ReadWrite || m.sync == nil || m.data == nil {
		return nil
	}
	return m.sync(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
