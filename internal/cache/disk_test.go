package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDisk(t *testing.T, dir string, maxSize int64) *DiskBlockCache {
	t.Helper()
	c, err := NewDiskBlockCache(DiskCacheConfig{RootDir: dir, MaxSizeBytes: maxSize})
	require.NoError(t, err)
	return c
}

func TestDiskBlockCache_Eviction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c := newDisk(t, dir, 1024)

	k1 := blobKey("db/vol.00.psq", 0)
	c.Set(ctx, k1, make([]byte, 400))
	c.flush()
	assert.FileExists(t, filepath.Join(dir, diskKeyOf(k1).fileName()))

	got, ok := c.Get(ctx, k1)
	require.True(t, ok)
	assert.Len(t, got, 400)

	c.Set(ctx, blobKey("db/vol.00.psq", 1), make([]byte, 400))
	c.flush()
	c.Set(ctx, blobKey("db/vol.00.psq", 2), make([]byte, 400))
	c.flush()

	_, ok = c.Get(ctx, k1)
	assert.False(t, ok, "oldest block is evicted")
	assert.NoFileExists(t, filepath.Join(dir, diskKeyOf(k1).fileName()))
	assert.Equal(t, int64(800), c.Size())
}

func TestDiskBlockCache_VolumesShareOffsets(t *testing.T) {
	ctx := context.Background()
	c := newDisk(t, t.TempDir(), 1<<20)

	c.Set(ctx, blobKey("db/vol.00.psq", 7), []byte("vol00"))
	c.Set(ctx, blobKey("db/vol.01.psq", 7), []byte("vol01"))
	c.Set(ctx, headerKey("db/vol.00", 7), []byte("hdr00"))
	c.flush()

	for key, want := range map[CacheKey]string{
		blobKey("db/vol.00.psq", 7): "vol00",
		blobKey("db/vol.01.psq", 7): "vol01",
		headerKey("db/vol.00", 7):   "hdr00",
	} {
		got, ok := c.Get(ctx, key)
		require.True(t, ok, key.Path)
		assert.Equal(t, want, string(got))
	}
}

func TestDiskBlockCache_Reload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := blobKey("s3://bucket/db/vol.00.psq", 0)

	c := newDisk(t, dir, 10000)
	c.Set(ctx, key, []byte("hello"))
	require.NoError(t, c.Close())

	// Leftover from an interrupted write.
	tmp := filepath.Join(dir, tmpPrefix+"123")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	c = newDisk(t, dir, 10000)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, int64(5), c.Size())
	assert.NoFileExists(t, tmp)
}

func TestDiskBlockCache_ReloadTrimsToLimit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := newDisk(t, dir, 1000)
	for b := range uint64(4) {
		c.Set(ctx, blobKey("vol.00.psq", b), make([]byte, 200))
		c.flush()
	}
	require.NoError(t, c.Close())

	c = newDisk(t, dir, 500)
	assert.LessOrEqual(t, c.Size(), int64(500))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDiskBlockCache_ConcurrentSetSameBlock(t *testing.T) {
	ctx := context.Background()
	c := newDisk(t, t.TempDir(), 1<<20)
	key := blobKey("vol.00.psq", 3)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Set(ctx, key, []byte("block"))
		}()
	}
	wg.Wait()
	c.flush()

	assert.Equal(t, int64(5), c.Size())
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "block", string(got))
}

func TestParseFileName(t *testing.T) {
	k := diskKeyOf(headerKey("db/vol.03", 42))
	got, ok := parseFileName(k.fileName())
	require.True(t, ok)
	assert.Equal(t, k, got)

	for _, name := range []string{"tmp-blk-1", "1-0-0.blk.bak", "x-00-1.blk", "notes.txt"} {
		_, ok := parseFileName(name)
		assert.False(t, ok, name)
	}
}
