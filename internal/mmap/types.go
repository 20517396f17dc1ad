package mmap

import "errors"

// Hint describes how a mapped range is about to be read.
type Hint int

const (
	// HintNormal clears earlier hints.
	HintNormal Hint = iota
	// HintScan marks a range read front to back, such as a run of sequences.
	HintScan
	// HintLookup marks a range searched at random offsets, such as a sorted
	// identifier index.
	HintLookup
	// HintPrefetch asks for read-ahead of a range that is read next.
	HintPrefetch
)

var (
	// ErrClosed is returned for access to an unmapped window.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for negative window lengths.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrOutOfBounds is returned for views outside the window.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
	// ErrInvalidOffset is returned for negative or unaligned offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
