// Package blobstore provides the read-only storage abstraction that database
// files are served from.
//
// BlobStore is the interface for opening and listing immutable blobs (volume
// index, sequence and header files, alias descriptors, ID lists).
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem; blobs implement RangeMapper so the atlas
//     can memory map them in windows
//   - MemoryStore: In-memory blobs for tests
//   - CachingStore: Block cache in front of a slow store
//   - s3.Store: Amazon S3 with range reads
//   - minio.Store: MinIO and other S3-compatible stores
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Blobs that are not RangeMapper or Mappable are read into memory charged
// against the handle's memory budget.
package blobstore
