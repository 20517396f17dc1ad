// Package cache keeps immutable blocks of database files close at hand.
//
// Two kinds of entries share one key space: fixed-size blocks of remote
// files (CacheKindBlob) and raw header blobs of single OIDs
// (CacheKindHeader). Header entries are small, so each is charged a fixed
// overhead on top of its length.
//
// # Memory
//
// LRUBlockCache bounds its charged bytes and, given a resource controller,
// draws them from the handle's memory budget. ShardedLRUBlockCache spreads
// keys over 64 such caches by maphash of path, kind and offset.
//
// # Disk
//
// DiskBlockCache stores one file per block in a flat directory. File names
// carry the kind, an xxhash of the source path and the offset, so volumes
// never collide on equal offsets. Writes run in the background under a
// semaphore and the index is rebuilt, oldest first, on open.
//
// TieredCache checks memory before disk and promotes disk hits.
package cache
