//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// Granularity returns the alignment required for mapping offsets.
func Granularity() int {
	return os.Getpagesize()
}

func osMap(f *os.File, offset int64, size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(int(f.Fd()), offset, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}

func osAdvise(data []byte, h Hint) error {
	if len(data) == 0 {
		return nil
	}

	advice := unix.MADV_NORMAL
	switch h {
	case HintScan:
		advice = unix.MADV_SEQUENTIAL
	case HintLookup:
		advice = unix.MADV_RANDOM
	case HintPrefetch:
		advice = unix.MADV_WILLNEED
	}
	return unix.Madvise(data, advice)
}
