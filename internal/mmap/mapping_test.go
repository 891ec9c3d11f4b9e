package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping_OpenReadClose(t *testing.T) {
	content := []byte("Hello, Mmap!")
	path := filepath.Join(t.TempDir(), "read.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())
	assert.False(t, m.Writable())

	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 7) // "Mmap!"
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Mmap!", string(buf))

	// Out of bounds.
	n, err = m.ReadAt(make([]byte, 10), 100)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	// Partial read at the tail.
	buf3 := make([]byte, 10)
	n, err = m.ReadAt(buf3, 7)
	assert.Equal(t, 5, n)
	assert.Equal(t, io.EOF, err)

	// Negative offset.
	_, err = m.ReadAt(buf, -1)
	assert.Equal(t, ErrInvalidOffset, err)

	// Writes rejected on read-only mappings.
	_, err = m.WriteAt([]byte("x"), 0)
	assert.Equal(t, ErrReadOnly, err)
}

func TestMapping_ReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rw.bin")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	const size = 4096
	require.NoError(t, f.Truncate(size))

	m, err := OpenFile(f, size, ReadWrite)
	require.NoError(t, err)
	assert.True(t, m.Writable())

	payload := []byte("durable bytes")
	n, err := m.WriteAt(payload, 128)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	// The write must be visible through the file after unmap.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, raw[128:128+len(payload)])
}

func TestMapping_WriteBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bounds.bin")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(64))

	m, err := OpenFile(f, 64, ReadWrite)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.WriteAt(make([]byte, 65), 0)
	assert.Equal(t, ErrOutOfBounds, err)

	_, err = m.WriteAt([]byte("x"), -1)
	assert.Equal(t, ErrInvalidOffset, err)

	_, err = m.WriteAt(make([]byte, 8), 60)
	assert.Equal(t, ErrOutOfBounds, err)
}

func TestMapping_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 0, m.Size())
	assert.Nil(t, m.Bytes())
}

func TestMapping_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	m, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Nil(t, m.Bytes())
	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.Equal(t, ErrClosed, err)
	assert.Equal(t, ErrClosed, m.Sync())
}

func TestMapping_Advise(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advise.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.NoError(t, m.Advise(AccessSequential))
	assert.NoError(t, m.Advise(AccessRandom))
	assert.NoError(t, m.Advise(AccessDefault))
}

func TestOpenFile_InvalidSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "size.bin")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = OpenFile(f, 0, ReadWrite)
	assert.Equal(t, ErrInvalidSize, err)
	_, err = OpenFile(f, -1, ReadOnly)
	assert.Equal(t, ErrInvalidSize, err)
}
