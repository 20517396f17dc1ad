package cache

import (
	"context"
	"errors"
)

// TieredCache checks a fast cache before a slow one and promotes hits.
type TieredCache struct {
	l1 BlockCache
	l2 BlockCache
}

// NewTieredCache combines an in-memory l1 with a larger l2 (usually disk).
func NewTieredCache(l1, l2 BlockCache) *TieredCache {
	return &TieredCache{l1: l1, l2: l2}
}

func (c *TieredCache) Get(ctx context.Context, key CacheKey) ([]byte, bool) {
	if b, ok := c.l1.Get(ctx, key); ok {
		return b, true
	}
	b, ok := c.l2.Get(ctx, key)
	if ok {
		c.l1.Set(ctx, key, b)
	}
	return b, ok
}

func (c *TieredCache) Set(ctx context.Context, key CacheKey, b []byte) {
	c.l1.Set(ctx, key, b)
	c.l2.Set(ctx, key, b)
}

func (c *TieredCache) Close() error {
	return errors.Join(c.l1.Close(), c.l2.Close())
}

// Stats reports L1 hits and L2 misses, i.e. requests that reached the backend.
func (c *TieredCache) Stats() (hits, misses int64) {
	h1, _ := c.l1.Stats()
	h2, m2 := c.l2.Stats()
	return h1 + h2, m2
}
