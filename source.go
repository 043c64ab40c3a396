package mdict

import (
	"fmt"
	"os"
)

// Source is the random-access byte-source contract a Reader is opened
// against. It must be durable and positional: concurrent calls are
// permitted, but a partial read (fewer bytes than requested, short of EOF)
// is a fault, not a valid result.
type Source interface {
	// ReadRange returns exactly length bytes starting at offset, or an
	// error. Implementations must not return a short read silently.
	ReadRange(offset, length uint32) ([]byte, error)

	// Size returns the total size of the underlying byte source.
	Size() uint32

	// Close releases any resources held by the source (an open file
	// handle, for instance). Closing a MemorySource is a no-op.
	Close() error
}

// FileSource is a Source backed by an *os.File, opened once and read from
// by absolute offset for the lifetime of the Reader.
type FileSource struct {
	file *os.File
	size int64
}

// OpenFile opens path and wraps it as a Source. The file handle is held
// open until Close is called.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mdict: open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mdict: stat %q: %w", path, err)
	}
	if info.Size() > 1<<32-1 {
		f.Close()
		return nil, fmt.Errorf("mdict: %q exceeds 4 GiB: %w", path, ErrTruncated)
	}
	return &FileSource{file: f, size: info.Size()}, nil
}

// ReadRange implements Source.
func (s *FileSource) ReadRange(offset, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	n, err := s.file.ReadAt(buf, int64(offset))
	if err != nil && n != int(length) {
		return nil, fmt.Errorf("mdict: short read at offset %d (%d/%d bytes): %w", offset, n, length, ErrTruncated)
	}
	return buf, nil
}

// Size implements Source.
func (s *FileSource) Size() uint32 { return uint32(s.size) }

// Close implements Source.
func (s *FileSource) Close() error { return s.file.Close() }

// MemorySource is a Source backed by an in-memory byte slice.
type MemorySource struct {
	buf []byte
}

// NewMemorySource wraps buf as a Source. buf is not copied; the caller
// must not mutate it while the Reader is in use.
func NewMemorySource(buf []byte) (*MemorySource, error) {
	if len(buf) > 1<<32-1 {
		return nil, fmt.Errorf("mdict: in-memory buffer exceeds 4 GiB: %w", ErrTruncated)
	}
	return &MemorySource{buf: buf}, nil
}

// ReadRange implements Source.
func (s *MemorySource) ReadRange(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(s.buf)) {
		return nil, fmt.Errorf("mdict: read [%d:%d) beyond buffer length %d: %w", offset, end, len(s.buf), ErrTruncated)
	}
	out := make([]byte, length)
	copy(out, s.buf[offset:end])
	return out, nil
}

// Size implements Source.
func (s *MemorySource) Size() uint32 { return uint32(len(s.buf)) }

// Close implements Source.
func (s *MemorySource) Close() error { return nil }
