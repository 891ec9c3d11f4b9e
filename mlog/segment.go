package mlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/grit/internal/fs"
	"github.com/hupe1980/grit/internal/mmap"
)

const (
	segmentExt    = ".log"
	compressedExt = ".log.zst"
	segmentPrefix = "grit-"
)

var (
	segmentMagic   = [4]byte{'G', 'R', 'L', '0'}
	segmentVersion = uint16(1)
	headerSize     = int64(16)
)

const flagSealed = uint16(1)

// segmentPath returns the raw file name for segment index under dir.
func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%06d%s", segmentPrefix, index, segmentExt))
}

// parseSegmentName extracts the index from a segment file name. The second
// return reports whether the name is compressed, the third whether it is a
// segment file at all.
func parseSegmentName(name string) (index int, compressed bool, ok bool) {
	base := name
	switch {
	case strings.HasSuffix(base, compressedExt):
		compressed = true
		base = strings.TrimSuffix(base, compressedExt)
	case strings.HasSuffix(base, segmentExt):
		base = strings.TrimSuffix(base, segmentExt)
	default:
		return 0, false, false
	}
	if !strings.HasPrefix(base, segmentPrefix) {
		return 0, false, false
	}
	if _, err := fmt.Sscanf(strings.TrimPrefix(base, segmentPrefix), "%d", &index); err != nil {
		return 0, false, false
	}
	return index, compressed, true
}

// writeHeader encodes the segment header into buf.
func writeHeader(buf []byte, flags uint16) {
	copy(buf[0:4], segmentMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], segmentVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	// buf[8:16] reserved
}

// readHeader validates the header at the start of data and returns its flags.
func readHeader(data []byte) (uint16, error) {
	if int64(len(data)) < headerSize {
		return 0, fmt.Errorf("segment shorter than header")
	}
	if [4]byte(data[0:4]) != segmentMagic {
		return 0, fmt.Errorf("invalid segment magic")
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != segmentVersion {
		return 0, fmt.Errorf("unsupported segment version: %d", v)
	}
	return binary.LittleEndian.Uint16(data[6:8]), nil
}

// activeSegment is the mapped segment currently receiving appends.
type activeSegment struct {
	index   int
	path    string
	file    fs.File
	mapping *mmap.Mapping

	// writeOff is the first free byte. It is advanced only after a full
	// frame is in place, so concurrent readers never observe torn tails.
	writeOff atomic.Int64
}

// openActive creates or reopens the raw segment file at path, pre-sizes it to
// size and maps it read-write. startOff is the recovered write offset; pass
// headerSize for a fresh segment.
func openActive(fsys fs.FileSystem, path string, index int, size, startOff int64, fresh bool) (*activeSegment, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment: %w", err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to pre-allocate segment: %w", err)
	}

	raw, ok := fs.Raw(f)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("file system does not expose an OS file for mapping")
	}

	m, err := mmap.OpenFile(raw, int(size), mmap.ReadWrite)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map segment: %w", err)
	}

	s := &activeSegment{
		index:   index,
		path:    path,
		file:    f,
		mapping: m,
	}

	if fresh {
		writeHeader(m.Bytes()[:headerSize], 0)
	}
	s.writeOff.Store(startOff)

	return s, nil
}

// sync flushes dirty pages and file metadata.
func (s *activeSegment) sync() error {
	if err := s.mapping.Sync(); err != nil {
		return fmt.Errorf("failed to sync mapping: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync segment file: %w", err)
	}
	return nil
}

// seal marks the segment closed for writes, flushes it, unmaps it and trims
// the file to its written length. The segment must not receive appends after
// seal returns.
func (s *activeSegment) seal() (SegmentInfo, error) {
	size := s.writeOff.Load()

	writeHeader(s.mapping.Bytes()[:headerSize], flagSealed)
	if err := s.mapping.Sync(); err != nil {
		return SegmentInfo{}, fmt.Errorf("failed to sync sealed segment: %w", err)
	}
	if err := s.mapping.Close(); err != nil {
		return SegmentInfo{}, fmt.Errorf("failed to unmap sealed segment: %w", err)
	}
	if err := s.file.Truncate(size); err != nil {
		return SegmentInfo{}, fmt.Errorf("failed to trim sealed segment: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return SegmentInfo{}, fmt.Errorf("failed to sync sealed segment file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return SegmentInfo{}, fmt.Errorf("failed to close sealed segment: %w", err)
	}

	return SegmentInfo{
		Index:  s.index,
		Path:   s.path,
		Sealed: true,
		Size:   size,
	}, nil
}

// discard unmaps and closes the segment without sealing it.
func (s *activeSegment) discard() error {
	if err := s.mapping.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// compressSegment replaces the raw sealed segment file with a zstd-compressed
// copy and returns the updated info.
func compressSegment(fsys fs.FileSystem, info SegmentInfo, level int) (SegmentInfo, error) {
	src, err := fsys.OpenFile(info.Path, os.O_RDONLY, 0)
	if err != nil {
		return info, fmt.Errorf("failed to open sealed segment: %w", err)
	}
	defer src.Close()

	dstPath := info.Path + ".zst"
	dst, err := fsys.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return info, fmt.Errorf("failed to create compressed segment: %w", err)
	}

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		dst.Close()
		return info, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		fsys.Remove(dstPath)
		return info, fmt.Errorf("failed to compress segment: %w", err)
	}
	if err := enc.Close(); err != nil {
		dst.Close()
		fsys.Remove(dstPath)
		return info, fmt.Errorf("failed to finish compressed segment: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		fsys.Remove(dstPath)
		return info, fmt.Errorf("failed to sync compressed segment: %w", err)
	}
	if err := dst.Close(); err != nil {
		fsys.Remove(dstPath)
		return info, fmt.Errorf("failed to close compressed segment: %w", err)
	}

	if err := fsys.Remove(info.Path); err != nil {
		return info, fmt.Errorf("failed to remove raw segment: %w", err)
	}

	info.Path = dstPath
	info.Compressed = true
	return info, nil
}

// readSegmentData loads the full contents of a sealed segment, transparently
// decompressing .zst files. The returned bytes include the header.
func readSegmentData(fsys fs.FileSystem, info SegmentInfo) ([]byte, error) {
	f, err := fsys.OpenFile(info.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if info.Compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment: %w", err)
	}
	return data, nil
}

// listSegments scans dir for segment files, sorted by index.
func listSegments(fsys fs.FileSystem, dir string) ([]SegmentInfo, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list log directory: %w", err)
	}

	var infos []SegmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		index, compressed, ok := parseSegmentName(e.Name())
		if !ok {
			continue
		}
		fi, err := fsys.Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to stat segment: %w", err)
		}
		infos = append(infos, SegmentInfo{
			Index:      index,
			Path:       filepath.Join(dir, e.Name()),
			Compressed: compressed,
			Size:       fi.Size(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Index < infos[j].Index })
	return infos, nil
}
