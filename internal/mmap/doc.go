// Package mmap provides read-only memory-mapped file access for zero-copy I/O.
//
// # Overview
//
// Database volumes are mapped in windows rather than as whole files so that a
// process can address databases much larger than its address space budget.
// A window is described by a file offset aligned to Granularity() and a length.
//
// # Usage
//
//	f, _ := os.Open("nr.00.psq")
//	m, err := mmap.MapRange(f, 0, 16<<20)
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-copy access to the window
//	data := m.Bytes()
//
//	// Create a view into a specific part of the window
//	region, _ := m.Region(offset, size)
//
//	// Tell the kernel how the window is read
//	m.Advise(mmap.HintScan)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): Uses mmap(2) with madvise(2) for access hints
//   - Windows: Uses CreateFileMapping/MapViewOfFile (madvise is a no-op)
//
// # Thread Safety
//
// Mapping and Region are safe for concurrent read access. The Close() method
// is idempotent and protected by atomic operations. However, callers must
// ensure no goroutines access Bytes() after Close() returns.
package mmap
