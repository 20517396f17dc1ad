package cache

import (
	"context"
)

// CacheKind separates the key spaces of blob blocks and decoded headers.
type CacheKind uint8

const (
	CacheKindUnknown CacheKind = iota
	CacheKindBlob              // Fixed-size blocks of a remote file
	CacheKindHeader            // Raw defline blobs keyed by volume and OID

	numKinds = int(CacheKindHeader) + 1
)

// headerOverhead is charged on top of each header entry. Deflines are
// small, so the index entry dominates their footprint.
const headerOverhead = 64

// CacheKey must be stable across processes. Database files are immutable for
// the lifetime of a handle, so Path and Offset identify a block uniquely.
type CacheKey struct {
	Kind CacheKind
	// Path identifies the source file (blob name or volume base).
	Path string
	// Offset is the block index for blobs and the volume-local OID for headers.
	Offset uint64
}

// charge is the number of bytes an entry of n bytes costs.
func (k CacheKey) charge(n int) int64 {
	if k.Kind == CacheKindHeader {
		return int64(n) + headerOverhead
	}
	return int64(n)
}

func (k CacheKey) slot() int {
	if int(k.Kind) >= numKinds {
		return int(CacheKindUnknown)
	}
	return int(k.Kind)
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. A key that is already present keeps its block,
	// since the files it came from never change under an open handle.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Close waits for pending work and releases resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
