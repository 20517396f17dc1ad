package atlas

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/seqdb/blobstore"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/mmap"
	"github.com/hupe1980/seqdb/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heapStore hides Mappable so regions are read into charged heap buffers.
type heapStore struct {
	*blobstore.MemoryStore
}

type heapBlob struct {
	blobstore.Blob
}

func (s heapStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return heapBlob{b}, nil
}

type countingObserver struct {
	maps, unmaps atomic.Int64
}

func (o *countingObserver) RecordMap(int64)   { o.maps.Add(1) }
func (o *countingObserver) RecordUnmap(int64) { o.unmaps.Add(1) }

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestAcquire_ReusesRegion(t *testing.T) {
	ctx := context.Background()
	ms := blobstore.NewMemoryStore()
	data := pattern(10000)
	ms.Put("vol.psq", data)

	obs := &countingObserver{}
	a := New(heapStore{ms}, WithSliceSize(4096), WithObserver(obs))
	defer a.Close()

	l1, err := a.Acquire(ctx, "vol.psq", 10, 100)
	require.NoError(t, err)
	assert.Equal(t, data[10:110], l1.Bytes())

	l2, err := a.Acquire(ctx, "vol.psq", 200, 50)
	require.NoError(t, err)
	assert.Equal(t, data[200:250], l2.Bytes())
	assert.Equal(t, int64(1), obs.maps.Load(), "same slice must be reused")

	// Spans two slices.
	l3, err := a.Acquire(ctx, "vol.psq", 4000, 200)
	require.NoError(t, err)
	assert.Equal(t, data[4000:4200], l3.Bytes())

	st := a.Stats()
	assert.Equal(t, 2, st.LiveRegions)
	assert.Equal(t, 0, st.IdleRegions)

	l1.Release()
	l2.Release()
	l3.Release()
	st = a.Stats()
	assert.Equal(t, 0, st.LiveRegions)
	assert.Equal(t, 2, st.IdleRegions)
}

func TestLease_ReleaseSemantics(t *testing.T) {
	ms := blobstore.NewMemoryStore()
	ms.Put("f", []byte("abcdef"))
	a := New(ms)
	defer a.Close()

	l, err := a.Acquire(context.Background(), "f", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(l.Bytes()))
	assert.Equal(t, 3, l.Len())

	l.Release()
	assert.Nil(t, l.Bytes())
	l.Release() // no-op
	assert.Equal(t, 1, a.Stats().IdleRegions)

	var nilLease *Lease
	assert.Nil(t, nilLease.Bytes())
	nilLease.Release()
}

func TestAcquire_Errors(t *testing.T) {
	ctx := context.Background()
	ms := blobstore.NewMemoryStore()
	ms.Put("f", []byte("abc"))
	a := New(ms)

	_, err := a.Acquire(ctx, "missing", 0, 1)
	assert.ErrorIs(t, err, dberr.ErrFileAccess)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = a.Acquire(ctx, "f", 2, 5)
	assert.ErrorIs(t, err, dberr.ErrFileAccess)

	_, err = a.Acquire(ctx, "f", -1, 1)
	assert.ErrorIs(t, err, dberr.ErrFileAccess)

	l, err := a.Acquire(ctx, "f", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, l.Bytes())
	l.Release()

	require.NoError(t, a.Close())
	_, err = a.Acquire(ctx, "f", 0, 1)
	assert.ErrorIs(t, err, dberr.ErrClosed)
	require.NoError(t, a.Close())
}

func TestAcquire_EvictsIdleUnderBudget(t *testing.T) {
	ctx := context.Background()
	ms := blobstore.NewMemoryStore()
	ms.Put("f", pattern(64*1024))

	g := int64(mmap.Granularity())
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * g})
	a := New(heapStore{ms}, WithController(rc), WithSliceSize(g))
	defer a.Close()

	for i := range int64(4) {
		l, err := a.Acquire(ctx, "f", i*g, 16)
		require.NoError(t, err)
		l.Release()
	}

	st := a.Stats()
	assert.LessOrEqual(t, st.MappedBytes, 2*g)
	assert.Equal(t, int64(2), st.Unmaps)
	assert.Zero(t, st.OvercommitBytes)
	assert.LessOrEqual(t, rc.MemoryUsage(), 2*g)
}

func TestAcquire_OvercommitWhenAllLeased(t *testing.T) {
	ctx := context.Background()
	ms := blobstore.NewMemoryStore()
	ms.Put("f", pattern(64*1024))

	g := int64(mmap.Granularity())
	rc := resource.NewController(resource.Config{MemoryLimitBytes: g})
	a := New(heapStore{ms}, WithController(rc), WithSliceSize(g))
	defer a.Close()

	l1, err := a.Acquire(ctx, "f", 0, 8)
	require.NoError(t, err)
	l2, err := a.Acquire(ctx, "f", g, 8)
	require.NoError(t, err, "acquire never fails on budget")

	assert.Equal(t, g, a.Stats().OvercommitBytes)
	assert.NotNil(t, l1.Bytes())

	l2.Release()
	assert.Zero(t, a.Stats().OvercommitBytes)
	assert.Equal(t, 0, a.Stats().IdleRegions, "overcommitted region is unmapped on release")
	l1.Release()
	assert.Equal(t, g, rc.MemoryUsage())

	a.Flush()
	assert.Zero(t, rc.MemoryUsage())
	assert.Equal(t, 0, a.Stats().IdleRegions)
}

func TestAcquire_LocalMmap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	data := pattern(3*mmap.Granularity() + 17)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vol.nsq"), data, 0o600))

	a := New(blobstore.NewLocalStore(dir), WithSliceSize(int64(mmap.Granularity())))

	size, err := a.FileSize(ctx, "vol.nsq")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	off := int64(len(data) - 30)
	l, err := a.Acquire(ctx, "vol.nsq", off, 30)
	require.NoError(t, err)
	assert.Equal(t, data[off:], l.Bytes())

	assert.NoError(t, l.Advise(mmap.HintPrefetch))

	require.NoError(t, a.Close())
	assert.Nil(t, l.Bytes(), "close invalidates outstanding leases")
	assert.NoError(t, l.Advise(mmap.HintScan))
}

func TestExistsAndReadFile(t *testing.T) {
	ctx := context.Background()
	ms := blobstore.NewMemoryStore()
	ms.Put("db.pal", []byte("TITLE t\n"))
	a := New(ms)
	defer a.Close()

	ok, err := a.Exists(ctx, "db.pal")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.Exists(ctx, "db.nal")
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := a.ReadFile(ctx, "db.pal")
	require.NoError(t, err)
	assert.Equal(t, "TITLE t\n", string(b))

	_, err = a.ReadFile(ctx, "nope")
	assert.ErrorIs(t, err, dberr.ErrFileAccess)

	names, err := a.List(ctx, "db")
	require.NoError(t, err)
	assert.Equal(t, []string{"db.pal"}, names)
}

func TestAcquire_UnderCoarseLock(t *testing.T) {
	ms := blobstore.NewMemoryStore()
	ms.Put("f", pattern(100))
	a := New(ms)
	defer a.Close()

	a.Lock()
	l, err := a.Acquire(context.Background(), "f", 0, 10)
	a.Unlock()
	require.NoError(t, err)
	l.Release()
}

func TestAcquire_Concurrent(t *testing.T) {
	ctx := context.Background()
	ms := blobstore.NewMemoryStore()
	data := pattern(1 << 16)
	ms.Put("f", data)

	g := int64(mmap.Granularity())
	a := New(heapStore{ms}, WithMemoryBudget(4*g), WithSliceSize(g))
	defer a.Close()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				off := int64((w*131 + i*977) % (len(data) - 64))
				l, err := a.Acquire(ctx, "f", off, 64)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, data[off:off+64], l.Bytes())
				l.Release()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 0, a.Stats().LiveRegions)
}

func TestLocalFile(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v.pkv"), []byte("kv"), 0o600))
	local := New(blobstore.NewLocalStore(dir))
	p, cleanup, err := local.LocalFile(ctx, "v.pkv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "v.pkv"), p)
	cleanup()
	assert.FileExists(t, p, "local files are never removed")

	_, _, err = local.LocalFile(ctx, "missing.pkv")
	assert.ErrorIs(t, err, dberr.ErrFileAccess)

	ms := blobstore.NewMemoryStore()
	ms.Put("db/v.pkv", []byte("remote"))
	remote := New(ms)
	p, cleanup, err = remote.LocalFile(ctx, "db/v.pkv")
	require.NoError(t, err)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(got))
	cleanup()
	assert.NoFileExists(t, p)
}
