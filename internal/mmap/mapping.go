package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped window of a file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	offset int64
	size   int
	closed atomic.Bool
	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// Open maps the whole file at path into memory.
// The file is mapped as read-only.
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
	return MapRange(f, 0, int(size))
}

// MapRange maps length bytes of f starting at offset.
// offset must be a multiple of Granularity(). The file handle may be closed
// once MapRange returns; the mapping keeps its own reference.
func MapRange(f *os.File, offset int64, length int) (*Mapping, error) {
	if offset < 0 || offset%int64(Granularity()) != 0 {
		return nil, ErrInvalidOffset
	}
	if length < 0 {
		return nil, ErrInvalidSize
	}
	if length == 0 {
		return &Mapping{offset: offset}, nil
	}

	// Platform-specific mapping
	data, unmapFunc, err := osMap(f, offset, length)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:   data,
		offset: offset,
		size:   length,
		unmap:  unmapFunc,
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
// Warning: The slice is valid only until Close() is called.
// Accessing the slice after Close() results in undefined behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Offset returns the file offset of the first mapped byte.
func (m *Mapping) Offset() int64 {
	return m.offset
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Advise passes h for the whole window.
func (m *Mapping) Advise(h Hint) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, h)
}

// ReadAt implements io.ReaderAt. off is relative to the start of the window.
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
