package blobstore

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/hupe1980/seqdb/internal/mmap"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is a read-only source of database files (volumes, alias files,
// ID lists, index files). Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// List returns the names of all blobs starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes at off. It returns io.EOF when fewer bytes
	// are available.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	io.Closer
}

// Mappable is an optional interface for Blobs whose whole contents are
// already resident in memory.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// RangeMapper is an optional interface for Blobs backed by local files that
// can be memory mapped in windows.
type RangeMapper interface {
	// MapRange maps length bytes starting at offset, which must be a
	// multiple of mmap.Granularity().
	MapRange(offset int64, length int) (*mmap.Mapping, error)
}

// PathResolver is an optional interface for stores backed by the local
// file system. Libraries that need a real file path (e.g. bbolt) use it.
type PathResolver interface {
	LocalPath(name string) (string, bool)
}

// Fetcher is an optional interface for stores that can download a whole
// blob more efficiently than a sequence of ReadAt calls.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// ReadFile returns the whole contents of a (small) blob such as an alias
// descriptor or an ID list file.
func ReadFile(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	if f, ok := store.(Fetcher); ok {
		return f.Fetch(ctx, name)
	}

	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	buf := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Exists reports whether a blob can be opened.
func Exists(ctx context.Context, store BlobStore, name string) (bool, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_ = b.Close()
	return true, nil
}
