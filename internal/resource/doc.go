// Package resource implements the Controller for per-handle limits.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: the soft ceiling for mapped regions and sequence buffers
//   - Concurrency: slots for background scan goroutines (totals, list resolution)
//   - IO: rate limiting of reads against remote blob stores
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                         Controller                          │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Limit   │  Background     │  IO Rate Limiter        │
//	│  (soft)         │  Workers (sem)  │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  TryAcquire-    │  AcquireBack-   │  AcquireIO              │
//	│  Memory         │  ground         │  RateLimitedReader      │
//	│  Overcommit     │  TryAcquire     │                         │
//	│  ReleaseMemory  │  Release        │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for the limit and atomic counters
// for usage. The atlas first tries to reserve a region's size; when that
// fails it evicts idle regions and, if nothing is left to evict, records the
// region as overcommit so that a mapping request never blocks:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//
//	if !rc.TryAcquireMemory(size) {
//	    rc.Overcommit(size)
//	}
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
