package atlas

import (
	"container/list"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/seqdb/blobstore"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/mmap"
	"github.com/hupe1980/seqdb/internal/resource"
)

// DefaultSliceSize is the default region granularity.
const DefaultSliceSize = 16 << 20

// Observer is notified when regions are mapped and unmapped.
type Observer interface {
	RecordMap(bytes int64)
	RecordUnmap(bytes int64)
}

type noopObserver struct{}

func (noopObserver) RecordMap(int64)   {}
func (noopObserver) RecordUnmap(int64) {}

// Option configures an Atlas.
type Option func(*Atlas)

// WithController charges regions against rc.
func WithController(rc *resource.Controller) Option {
	return func(a *Atlas) {
		a.rc = rc
	}
}

// WithMemoryBudget creates a private controller with the given ceiling.
func WithMemoryBudget(bytes int64) Option {
	return func(a *Atlas) {
		a.rc = resource.NewController(resource.Config{MemoryLimitBytes: bytes})
	}
}

// WithSliceSize sets the region size. It is rounded up to the mmap granularity.
func WithSliceSize(n int64) Option {
	return func(a *Atlas) {
		if n > 0 {
			a.slice = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Atlas) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver sets the map/unmap observer.
func WithObserver(o Observer) Option {
	return func(a *Atlas) {
		if o != nil {
			a.obs = o
		}
	}
}

// Stats is a snapshot of the region table.
type Stats struct {
	MappedBytes     int64
	OvercommitBytes int64
	LiveRegions     int
	IdleRegions     int
	Maps            int64
	Unmaps          int64
	OpenFiles       int
}

// Atlas owns all regions of all database files of one handle.
type Atlas struct {
	store  blobstore.BlobStore
	rc     *resource.Controller
	slice  int64
	logger *slog.Logger
	obs    Observer

	// mu is the coarse lock for lazily built state of higher layers.
	mu sync.Mutex

	// bk guards files, idle and region refcounts. Always innermost.
	bk     sync.Mutex
	files  map[string]*file
	idle   *list.List
	closed bool

	mapped atomic.Int64
	live   atomic.Int64
	maps   atomic.Int64
	unmaps atomic.Int64
}

type file struct {
	name    string
	blob    blobstore.Blob
	size    int64
	regions []*region
}

type region struct {
	f          *file
	begin, end int64
	data       []byte
	mapping    *mmap.Mapping
	refs       int
	elem       *list.Element
	charged    int64
	overcommit bool
	dead       atomic.Bool
}

func (r *region) contains(off, n int64) bool {
	return off >= r.begin && off+n <= r.end
}

// New creates an Atlas reading from store.
func New(store blobstore.BlobStore, opts ...Option) *Atlas {
	a := &Atlas{
		store:  store,
		slice:  DefaultSliceSize,
		logger: slog.New(slog.DiscardHandler),
		obs:    noopObserver{},
		files:  make(map[string]*file),
		idle:   list.New(),
	}
	for _, o := range opts {
		o(a)
	}
	g := int64(mmap.Granularity())
	a.slice = (a.slice + g - 1) / g * g
	return a
}

// Lock acquires the coarse lock.
func (a *Atlas) Lock() { a.mu.Lock() }

// Unlock releases the coarse lock.
func (a *Atlas) Unlock() { a.mu.Unlock() }

// Store returns the underlying blob store.
func (a *Atlas) Store() blobstore.BlobStore { return a.store }

// Controller returns the memory controller (may be nil).
func (a *Atlas) Controller() *resource.Controller { return a.rc }

// SliceSize returns the region granularity in bytes.
func (a *Atlas) SliceSize() int64 { return a.slice }

func (a *Atlas) openFile(ctx context.Context, name string) (*file, error) {
	a.bk.Lock()
	if a.closed {
		a.bk.Unlock()
		return nil, dberr.ErrClosed
	}
	if f, ok := a.files[name]; ok {
		a.bk.Unlock()
		return f, nil
	}
	a.bk.Unlock()

	blob, err := a.store.Open(ctx, name)
	if err != nil {
		return nil, dberr.FileAccess("open", name, err)
	}

	a.bk.Lock()
	defer a.bk.Unlock()
	if a.closed {
		_ = blob.Close()
		return nil, dberr.ErrClosed
	}
	if f, ok := a.files[name]; ok {
		_ = blob.Close()
		return f, nil
	}
	f := &file{name: name, blob: blob, size: blob.Size()}
	a.files[name] = f
	return f, nil
}

// FileSize returns the size of a database file.
func (a *Atlas) FileSize(ctx context.Context, name string) (int64, error) {
	f, err := a.openFile(ctx, name)
	if err != nil {
		return 0, err
	}
	return f.size, nil
}

// Exists reports whether name can be opened. Errors other than not-found
// are returned.
func (a *Atlas) Exists(ctx context.Context, name string) (bool, error) {
	_, err := a.openFile(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// List lists files by prefix.
func (a *Atlas) List(ctx context.Context, prefix string) ([]string, error) {
	return a.store.List(ctx, prefix)
}

// ReadFile reads a small file whole, bypassing the region table.
func (a *Atlas) ReadFile(ctx context.Context, name string) ([]byte, error) {
	data, err := blobstore.ReadFile(ctx, a.store, name)
	if err != nil {
		return nil, dberr.FileAccess("read", name, err)
	}
	return data, nil
}

// LocalFile returns a file system path holding the contents of name. Local
// stores resolve in place; other stores are spooled to a temporary file that
// cleanup removes.
func (a *Atlas) LocalFile(ctx context.Context, name string) (path string, cleanup func(), err error) {
	if pr, ok := a.store.(blobstore.PathResolver); ok {
		if p, ok := pr.LocalPath(name); ok {
			if _, err := os.Stat(p); err != nil {
				return "", nil, dberr.FileAccess("stat", name, err)
			}
			return p, func() {}, nil
		}
	}

	data, err := a.ReadFile(ctx, name)
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp("", "seqdb-*-"+filepath.Base(name))
	if err != nil {
		return "", nil, dberr.FileAccess("spool", name, err)
	}
	cleanup = func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, dberr.FileAccess("spool", name, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, dberr.FileAccess("spool", name, err)
	}
	a.logger.Debug("atlas spooled remote file", "file", name, "bytes", len(data))
	return f.Name(), cleanup, nil
}

// Acquire returns a lease over [offset, offset+length) of name.
func (a *Atlas) Acquire(ctx context.Context, name string, offset, length int64) (*Lease, error) {
	f, err := a.openFile(ctx, name)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > f.size {
		return nil, dberr.FileAccess("read", name, io.ErrUnexpectedEOF)
	}
	if length == 0 {
		return &Lease{a: a, data: []byte{}}, nil
	}

	a.bk.Lock()
	if a.closed {
		a.bk.Unlock()
		return nil, dberr.ErrClosed
	}
	for _, r := range f.regions {
		if r.contains(offset, length) {
			a.retain(r)
			a.bk.Unlock()
			return a.lease(r, offset, length), nil
		}
	}
	begin, end := a.bounds(f, offset, length)
	charged, over := a.charge(f, end-begin)
	a.bk.Unlock()

	r, err := a.load(ctx, f, begin, end)
	if err != nil {
		a.refund(charged, over)
		return nil, err
	}
	r.charged, r.overcommit, r.refs = charged, over, 1

	a.bk.Lock()
	if a.closed {
		a.bk.Unlock()
		a.drop(r)
		return nil, dberr.ErrClosed
	}
	f.regions = append(f.regions, r)
	a.bk.Unlock()

	a.live.Add(1)
	a.maps.Add(1)
	a.mapped.Add(end - begin)
	a.obs.RecordMap(end - begin)
	return a.lease(r, offset, length), nil
}

func (a *Atlas) bounds(f *file, offset, length int64) (int64, int64) {
	begin := offset / a.slice * a.slice
	end := (offset + length + a.slice - 1) / a.slice * a.slice
	if end > f.size {
		end = f.size
	}
	return begin, end
}

// charge reserves budget for a new region, evicting idle regions first.
// Must hold bk.
func (a *Atlas) charge(f *file, n int64) (int64, bool) {
	if _, ok := f.blob.(blobstore.Mappable); ok {
		return 0, false
	}
	for !a.rc.TryAcquireMemory(n) {
		if !a.evictOldest() {
			a.rc.Overcommit(n)
			a.logger.Debug("atlas overcommit", "file", f.name, "bytes", n)
			return n, true
		}
	}
	return n, false
}

func (a *Atlas) refund(n int64, over bool) {
	if over {
		a.rc.ReleaseOvercommit(n)
	} else {
		a.rc.ReleaseMemory(n)
	}
}

func (a *Atlas) load(ctx context.Context, f *file, begin, end int64) (*region, error) {
	r := &region{f: f, begin: begin, end: end}

	switch b := f.blob.(type) {
	case blobstore.Mappable:
		whole, err := b.Bytes()
		if err != nil {
			return nil, dberr.FileAccess("map", f.name, err)
		}
		r.data = whole[begin:end]
	case blobstore.RangeMapper:
		m, err := b.MapRange(begin, int(end-begin))
		if err != nil {
			return nil, dberr.FileAccess("mmap", f.name, err)
		}
		r.mapping = m
		r.data = m.Bytes()
	default:
		buf := make([]byte, end-begin)
		n, err := f.blob.ReadAt(ctx, buf, begin)
		if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
			return nil, dberr.FileAccess("read", f.name, err)
		}
		r.data = buf
	}
	return r, nil
}

func (a *Atlas) lease(r *region, offset, length int64) *Lease {
	lo := offset - r.begin
	if r.mapping != nil {
		if w, err := r.mapping.Region(int(lo), int(length)); err == nil {
			return &Lease{a: a, r: r, data: w.Bytes(), win: w}
		}
	}
	return &Lease{a: a, r: r, data: r.data[lo : lo+length : lo+length]}
}

// retain must hold bk.
func (a *Atlas) retain(r *region) {
	if r.refs == 0 && r.elem != nil {
		a.idle.Remove(r.elem)
		r.elem = nil
	}
	r.refs++
}

func (a *Atlas) release(r *region) {
	a.bk.Lock()
	defer a.bk.Unlock()

	r.refs--
	if r.refs > 0 || a.closed {
		return
	}
	if r.overcommit {
		a.unmap(r)
		return
	}
	r.elem = a.idle.PushFront(r)
	for a.rc.OverLimit() && a.evictOldest() {
	}
}

// evictOldest unmaps the least recently released idle region. Must hold bk.
func (a *Atlas) evictOldest() bool {
	e := a.idle.Back()
	if e == nil {
		return false
	}
	a.unmap(e.Value.(*region))
	return true
}

// unmap removes r from the table. Must hold bk.
func (a *Atlas) unmap(r *region) {
	if r.elem != nil {
		a.idle.Remove(r.elem)
		r.elem = nil
	}
	rs := r.f.regions
	for i, x := range rs {
		if x == r {
			r.f.regions = append(rs[:i], rs[i+1:]...)
			break
		}
	}
	a.drop(r)
	a.refund(r.charged, r.overcommit)
	a.live.Add(-1)
	a.unmaps.Add(1)
	a.mapped.Add(-(r.end - r.begin))
	a.obs.RecordUnmap(r.end - r.begin)
}

func (a *Atlas) drop(r *region) {
	r.dead.Store(true)
	if r.mapping != nil {
		if err := r.mapping.Close(); err != nil {
			a.logger.Warn("atlas unmap failed", "file", r.f.name, "error", err)
		}
		r.mapping = nil
	}
}

// Flush unmaps all idle regions.
func (a *Atlas) Flush() {
	a.bk.Lock()
	defer a.bk.Unlock()
	for a.evictOldest() {
	}
}

// Stats returns a snapshot of the region table.
func (a *Atlas) Stats() Stats {
	a.bk.Lock()
	idle, files := a.idle.Len(), len(a.files)
	a.bk.Unlock()
	return Stats{
		MappedBytes:     a.mapped.Load(),
		OvercommitBytes: a.rc.OvercommitUsage(),
		LiveRegions:     int(a.live.Load()) - idle,
		IdleRegions:     idle,
		Maps:            a.maps.Load(),
		Unmaps:          a.unmaps.Load(),
		OpenFiles:       files,
	}
}

// Close unmaps every region and closes all files. Outstanding leases
// return nil from Bytes afterwards.
func (a *Atlas) Close() error {
	a.bk.Lock()
	defer a.bk.Unlock()
	if a.closed {
		return nil
	}

	var errs []error
	for _, f := range a.files {
		for len(f.regions) > 0 {
			a.unmap(f.regions[len(f.regions)-1])
		}
		if err := f.blob.Close(); err != nil {
			errs = append(errs, dberr.FileAccess("close", f.name, err))
		}
	}
	a.closed = true
	a.files = nil
	a.idle.Init()
	return errors.Join(errs...)
}
