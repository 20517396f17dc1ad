//go:build windows

package mmap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Granularity returns the alignment required for mapping offsets.
// MapViewOfFile offsets must be multiples of the allocation granularity.
func Granularity() int {
	return 64 << 10
}

func osMap(f *os.File, offset int64, size int) ([]byte, func([]byte) error, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, nil, err
	}
	// The view holds its own reference to the mapping object.
	defer windows.CloseHandle(h)

	hi := uint32(uint64(offset) >> 32)
	lo := uint32(uint64(offset) & 0xffffffff)
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, hi, lo, uintptr(size))
	if err != nil {
		return nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	return data, func([]byte) error {
		return windows.UnmapViewOfFile(addr)
	}, nil
}

func osAdvise([]byte, Hint) error {
	return nil
}
