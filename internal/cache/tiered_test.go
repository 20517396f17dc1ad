package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTieredCache_PromotesFromL2(t *testing.T) {
	ctx := context.Background()
	l1 := NewLRUBlockCache(1024, nil)
	l2, err := NewDiskBlockCache(DiskCacheConfig{RootDir: t.TempDir(), MaxSizeBytes: 4096})
	require.NoError(t, err)

	c := NewTieredCache(l1, l2)
	defer c.Close()

	key := CacheKey{Kind: CacheKindBlob, Path: "db/vol.00.psq", Offset: 3}
	c.Set(ctx, key, []byte("block"))
	l2.flush()

	require.NoError(t, l1.Close())
	_, ok := l1.Get(ctx, key)
	require.False(t, ok)

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "block", string(got))

	got, ok = l1.Get(ctx, key)
	require.True(t, ok, "L2 hit must be promoted")
	assert.Equal(t, "block", string(got))
}

func TestTieredCache_Miss(t *testing.T) {
	c := NewTieredCache(NewLRUBlockCache(1024, nil), NewLRUBlockCache(1024, nil))
	_, ok := c.Get(context.Background(), CacheKey{Path: "x"})
	assert.False(t, ok)

	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)
}
