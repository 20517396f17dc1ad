package mmap

import "os"

// Region is a view of part of a window. The Mapping owns the memory, so a
// Region must not outlive it.
type Region struct {
	m      *Mapping
	lo, hi int
}

// Region returns the view of size bytes at offset within the window.
func (m *Mapping) Region(offset, size int) (*Region, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if offset < 0 || size < 0 || offset+size > m.size {
		return nil, ErrOutOfBounds
	}
	return &Region{m: m, lo: offset, hi: offset + size}, nil
}

// Bytes returns the viewed bytes, or nil once the window is unmapped.
func (r *Region) Bytes() []byte {
	if r.m.closed.Load() {
		return nil
	}
	return r.m.data[r.lo:r.hi:r.hi]
}

// Advise passes h for the pages backing the view. The start is rounded down
// to a page boundary because madvise rejects unaligned addresses; windows
// themselves always start on one.
func (r *Region) Advise(h Hint) error {
	if r.m.closed.Load() {
		return ErrClosed
	}
	if r.lo == r.hi {
		return nil
	}
	lo := r.lo - r.lo%os.Getpagesize()
	return osAdvise(r.m.data[lo:r.hi], h)
}
