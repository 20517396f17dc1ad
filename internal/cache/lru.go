package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/seqdb/internal/resource"
)

// LRUBlockCache is a byte-bounded LRU over immutable blocks. Every entry is
// charged to its kind and, when a controller is set, to the memory budget.
type LRUBlockCache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	byKind   [numKinds]int64
	items    map[CacheKey]*list.Element
	order    list.List // front is most recent
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type lruItem struct {
	key    CacheKey
	block  []byte
	charge int64
}

// NewLRUBlockCache returns a cache holding at most capacity charged bytes.
// A nil rc disables the memory budget.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity: capacity,
		items:    make(map[CacheKey]*list.Element),
		rc:       rc,
	}
}

// Get returns a cached block.
func (c *LRUBlockCache) Get(_ context.Context, key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(el)
	return el.Value.(*lruItem).block, true
}

// Set caches a block. Blocks that cannot fit in capacity, or that the memory
// budget refuses, are dropped.
func (c *LRUBlockCache) Set(_ context.Context, key CacheKey, b []byte) {
	charge := key.charge(len(b))
	if charge > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return
	}

	// Evict first so the budget sees the released bytes.
	for c.used+charge > c.capacity {
		el := c.order.Back()
		if el == nil {
			break
		}
		c.remove(el)
	}
	if c.rc != nil && !c.rc.TryAcquireMemory(charge) {
		return
	}

	c.items[key] = c.order.PushFront(&lruItem{key: key, block: b, charge: charge})
	c.used += charge
	c.byKind[key.slot()] += charge
}

func (c *LRUBlockCache) remove(el *list.Element) {
	it := c.order.Remove(el).(*lruItem)
	delete(c.items, it.key)
	c.used -= it.charge
	c.byKind[it.key.slot()] -= it.charge
	if c.rc != nil {
		c.rc.ReleaseMemory(it.charge)
	}
}

// Close drops every entry and returns its bytes to the memory budget.
func (c *LRUBlockCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		c.remove(el)
	}
	return nil
}

func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the charged bytes across all kinds.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Usage returns the charged bytes of one kind.
func (c *LRUBlockCache) Usage(kind CacheKind) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byKind[CacheKey{Kind: kind}.slot()]
}
