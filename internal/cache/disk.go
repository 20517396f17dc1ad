package cache

import (
	"container/list"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
)

// DiskCacheConfig holds configuration for the disk cache.
type DiskCacheConfig struct {
	// RootDir is the directory where cache files are stored.
	RootDir string
	// MaxSizeBytes is the maximum size of the cache in bytes.
	MaxSizeBytes int64
	// MaxConcurrentWrites bounds background writes. Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
}

const tmpPrefix = "tmp-blk-"

// diskKey names a block on disk. Source paths are hashed so blocks of every
// volume share one flat directory without colliding on equal offsets.
type diskKey struct {
	kind   CacheKind
	source uint64
	offset uint64
}

func diskKeyOf(k CacheKey) diskKey {
	return diskKey{kind: k.Kind, source: xxhash.Sum64String(k.Path), offset: k.Offset}
}

func (k diskKey) fileName() string {
	return fmt.Sprintf("%d-%016x-%d.blk", k.kind, k.source, k.offset)
}

func parseFileName(name string) (diskKey, bool) {
	var (
		k    diskKey
		kind uint8
	)
	if !strings.HasSuffix(name, ".blk") {
		return k, false
	}
	if n, err := fmt.Sscanf(name, "%d-%x-%d.blk", &kind, &k.source, &k.offset); err != nil || n != 3 {
		return k, false
	}
	k.kind = CacheKind(kind)
	return k, k.fileName() == name
}

type diskItem struct {
	key  diskKey
	size int64
}

// DiskBlockCache is an L2 BlockCache of one file per block under RootDir.
// Writes happen in the background; the index lives in memory and is rebuilt
// from the directory on open.
type DiskBlockCache struct {
	root     string
	maxSize  int64
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	mu       sync.Mutex
	size     int64
	items    map[diskKey]*list.Element
	order    list.List // front is most recent
	inflight map[diskKey]struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDiskBlockCache opens the cache directory, dropping temporaries left by
// interrupted writes and indexing surviving blocks oldest first.
func NewDiskBlockCache(config DiskCacheConfig) (*DiskBlockCache, error) {
	if err := os.MkdirAll(config.RootDir, 0o755); err != nil {
		return nil, err
	}
	maxWrites := config.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	c := &DiskBlockCache{
		root:     config.RootDir,
		maxSize:  config.MaxSizeBytes,
		writeSem: semaphore.NewWeighted(maxWrites),
		items:    make(map[diskKey]*list.Element),
		inflight: make(map[diskKey]struct{}),
	}
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("cache: scan %s: %w", config.RootDir, err)
	}
	return c, nil
}

func (c *DiskBlockCache) load() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return err
	}

	type found struct {
		key   diskKey
		size  int64
		mtime time.Time
	}
	var blocks []found
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			_ = os.Remove(filepath.Join(c.root, e.Name()))
			continue
		}
		key, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		blocks = append(blocks, found{key: key, size: info.Size(), mtime: info.ModTime()})
	}

	slices.SortFunc(blocks, func(a, b found) int { return a.mtime.Compare(b.mtime) })
	for _, b := range blocks {
		c.insert(b.key, b.size)
	}
	for c.size > c.maxSize && c.order.Len() > 0 {
		c.evictOldest()
	}
	return nil
}

func (c *DiskBlockCache) path(k diskKey) string {
	return filepath.Join(c.root, k.fileName())
}

func (c *DiskBlockCache) Get(_ context.Context, key CacheKey) ([]byte, bool) {
	k := diskKeyOf(key)

	c.mu.Lock()
	el, ok := c.items[k]
	if ok {
		c.order.MoveToFront(el)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	data, err := os.ReadFile(c.path(k))
	if err != nil {
		c.mu.Lock()
		if el, ok := c.items[k]; ok {
			c.drop(el)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return data, true
}

// Set writes b in the background. Blocks already on disk or being written
// are skipped, as are writes beyond the concurrency bound.
func (c *DiskBlockCache) Set(_ context.Context, key CacheKey, b []byte) {
	size := int64(len(b))
	if size > c.maxSize {
		return
	}
	k := diskKeyOf(key)

	c.mu.Lock()
	if el, ok := c.items[k]; ok {
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return
	}
	if _, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		return
	}
	if !c.writeSem.TryAcquire(1) {
		c.mu.Unlock()
		return
	}
	c.inflight[k] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)

		err := c.write(k, b)

		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.inflight, k)
		if err != nil {
			return
		}
		for c.size+size > c.maxSize && c.order.Len() > 0 {
			c.evictOldest()
		}
		c.insert(k, size)
	}()
}

func (c *DiskBlockCache) write(k diskKey, b []byte) error {
	f, err := os.CreateTemp(c.root, tmpPrefix+"*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, c.path(k)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// flush waits for background writes.
func (c *DiskBlockCache) flush() {
	c.wg.Wait()
}

// Close waits for background writes. Blocks stay on disk for the next open.
func (c *DiskBlockCache) Close() error {
	c.flush()
	return nil
}

func (c *DiskBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the bytes of indexed blocks.
func (c *DiskBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Callers of insert, drop and evictOldest hold mu.

func (c *DiskBlockCache) insert(k diskKey, size int64) {
	c.items[k] = c.order.PushFront(&diskItem{key: k, size: size})
	c.size += size
}

func (c *DiskBlockCache) drop(el *list.Element) {
	it := c.order.Remove(el).(*diskItem)
	delete(c.items, it.key)
	c.size -= it.size
}

func (c *DiskBlockCache) evictOldest() {
	el := c.order.Back()
	_ = os.Remove(c.path(el.Value.(*diskItem).key))
	c.drop(el)
}
