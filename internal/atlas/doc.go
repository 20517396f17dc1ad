// Package atlas manages every byte range the database reads from its files.
//
// An Atlas hands out reference-counted Leases over slice-aligned regions.
// Local files are memory mapped in windows; blobs that are already resident
// are sliced without copying; remote blobs are read into heap buffers. All
// regions are charged against one memory budget. Idle regions (refcount zero)
// stay cached on an LRU list and are unmapped oldest-first when the budget is
// exhausted.
//
// The Atlas also owns the coarse lock (Lock/Unlock) that higher layers use to
// build lazily shared state. Region bookkeeping uses its own innermost mutex,
// so Acquire may be called while the coarse lock is held.
package atlas
