package seqdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/hupe1980/seqdb/blobstore"
	"github.com/hupe1980/seqdb/internal/alias"
	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/cache"
	"github.com/hupe1980/seqdb/internal/idindex"
	"github.com/hupe1980/seqdb/internal/oidlist"
	"github.com/hupe1980/seqdb/internal/resource"
	"github.com/hupe1980/seqdb/internal/volset"
	"github.com/hupe1980/seqdb/internal/volume"
)

// SeqType selects the molecule type of a database.
type SeqType uint8

const (
	// Unknown tries protein first and falls back to nucleotide when the
	// protein files cannot be found.
	Unknown SeqType = iota
	Protein
	Nucleotide
)

func (t SeqType) String() string {
	switch t {
	case Protein:
		return "protein"
	case Nucleotide:
		return "nucleotide"
	default:
		return "unknown"
	}
}

func (t SeqType) volumeType() volume.SeqType {
	if t == Nucleotide {
		return volume.Nucleotide
	}
	return volume.Protein
}

// Lease pins the bytes returned by DB.Sequence. Bytes is valid until
// Release is called.
type Lease = atlas.Lease

// RegionStats is a snapshot of the mapped region table.
type RegionStats = atlas.Stats

type oidRange struct {
	begin, end int
}

// DB is a read-only handle on one or more sequence database volumes,
// possibly combined and filtered by alias files.
//
// All methods are safe for concurrent use. Worker handles are not: each
// Worker belongs to one goroutine at a time.
type DB struct {
	name    string
	seqType SeqType
	opts    options
	logger  *Logger
	metrics MetricsCollector

	rc      *resource.Controller
	caches  []io.Closer
	headers cache.BlockCache
	atlas   *atlas.Atlas
	tree    *alias.Tree
	vols    *volset.Set
	index   *idindex.Index
	oids    *oidlist.Lazy

	title string
	date  string

	rng    atomic.Pointer[oidRange]
	cursor atomic.Int64

	totals totals
	exact  atomic.Pointer[lengthStats]
	masks  atomic.Pointer[maskTable]

	// workers is guarded by the atlas lock.
	workers    []*Worker
	numWorkers atomic.Int32

	closed atomic.Bool
}

// Open opens the databases named by name, a space separated list of volume
// and alias base names. Double quotes group names containing spaces.
// Relative names resolve against the search path (WithSearchPath, or the
// BLASTDB environment variable).
func Open(ctx context.Context, name string, seqType SeqType, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	logger := o.logger.WithDatabase(name)
	start := time.Now()

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:     o.memoryBudget,
		MaxBackgroundWorkers: int64(o.parallelism),
		IOLimitBytesPerSec:   o.ioLimit,
	})
	store, caches, err := newStore(o, rc)
	if err != nil {
		logger.LogOpen(ctx, seqType, 0, 0, time.Since(start), err)
		return nil, err
	}
	var headers cache.BlockCache
	if o.headerCache > 0 {
		hc := cache.NewShardedLRUBlockCache(o.headerCache, rc)
		headers = hc
		caches = append(caches, hc)
	}

	env := openEnv{opts: o, logger: logger, rc: rc, store: store, headers: headers}
	var db *DB
	switch seqType {
	case Protein, Nucleotide:
		db, err = env.open(ctx, name, seqType)
	case Unknown:
		db, err = env.open(ctx, name, Protein)
		if errors.Is(err, ErrFileAccess) {
			logger.LogRetry(ctx, Protein, Nucleotide, err)
			db, err = env.open(ctx, name, Nucleotide)
		}
	default:
		err = fmt.Errorf("%w: sequence type %d", ErrArgument, seqType)
	}
	if err != nil {
		closeAll(caches)
		logger.LogOpen(ctx, seqType, 0, 0, time.Since(start), err)
		return nil, err
	}
	db.caches = caches

	logger.LogOpen(ctx, db.seqType, db.vols.Len(), db.NumOIDs(), time.Since(start), nil)
	return db, nil
}

func newStore(o options, rc *resource.Controller) (blobstore.BlobStore, []io.Closer, error) {
	store := o.store
	if store == nil {
		store = blobstore.NewLocalStore("")
	}

	var mem, disk cache.BlockCache
	if o.diskCacheDir != "" && o.diskCacheBytes > 0 {
		dc, err := cache.NewDiskBlockCache(cache.DiskCacheConfig{
			RootDir:      o.diskCacheDir,
			MaxSizeBytes: o.diskCacheBytes,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		disk = dc
	}
	if o.blockCacheBytes > 0 {
		mem = cache.NewLRUBlockCache(o.blockCacheBytes, rc)
	}

	var bc cache.BlockCache
	switch {
	case mem != nil && disk != nil:
		bc = cache.NewTieredCache(mem, disk)
	case mem != nil:
		bc = mem
	case disk != nil:
		bc = disk
	default:
		return store, nil, nil
	}
	return blobstore.NewCachingStore(store, bc, o.blockSize), []io.Closer{bc}, nil
}

func closeAll(cs []io.Closer) error {
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type openEnv struct {
	opts    options
	logger  *Logger
	rc      *resource.Controller
	store   blobstore.BlobStore
	headers cache.BlockCache
}

func (e openEnv) open(ctx context.Context, name string, seqType SeqType) (*DB, error) {
	a := atlas.New(e.store,
		atlas.WithController(e.rc),
		atlas.WithSliceSize(e.opts.sliceSize),
		atlas.WithLogger(e.logger.Logger),
		atlas.WithObserver(e.opts.metricsCollector),
	)
	db := &DB{
		name:    name,
		seqType: seqType,
		opts:    e.opts,
		logger:  e.logger,
		metrics: e.opts.metricsCollector,
		rc:      e.rc,
		headers: e.headers,
		atlas:   a,
	}
	if err := db.init(ctx); err != nil {
		_ = db.release()
		return nil, err
	}
	return db, nil
}

func (db *DB) init(ctx context.Context) error {
	vt := db.seqType.volumeType()
	tree, err := alias.Resolve(ctx, db.atlas, db.name, vt, alias.Options{
		SearchPath: db.opts.searchPath,
		Logger:     db.logger.Logger,
	})
	if err != nil {
		return err
	}
	db.tree = tree

	vols, err := volset.Open(ctx, db.atlas, tree.Volumes, vt, volume.Options{Logger: db.logger.Logger}, db.rc.MaxBackgroundWorkers())
	if err != nil {
		return err
	}
	db.vols = vols
	db.index = idindex.New(vols, db.logger.Logger)
	db.oids = oidlist.NewLazy(db.atlas, db.buildOIDList)

	info := volumeInfo{vols}
	db.title = tree.Title(info)
	db.date = tree.Date(info)

	if err := db.SetIterationRange(db.opts.oidBegin, db.opts.oidEnd); err != nil {
		return err
	}
	if _, err := db.oids.Get(ctx); err != nil {
		return err
	}
	if err := db.computeTotals(ctx); err != nil {
		return err
	}
	return db.SetNumberOfWorkers(db.opts.workers)
}

func (db *DB) buildOIDList(ctx context.Context) (*oidlist.List, error) {
	start := time.Now()
	l, err := oidlist.Build(ctx, oidlist.Config{
		Atlas:    db.atlas,
		Tree:     db.tree,
		Volumes:  db.vols,
		Index:    db.index,
		Positive: db.opts.positive,
		Negative: db.opts.negative,
		Logger:   db.logger.Logger,
	})
	if err != nil {
		db.logger.LogOIDListBuilt(ctx, oidlist.NotBuilt.String(), 0, time.Since(start), err)
		return nil, err
	}
	db.logger.LogOIDListBuilt(ctx, l.State().String(), l.Total(), time.Since(start), nil)
	return l, nil
}

// visible returns the OID list. Open builds it, so it is never nil on an
// open handle.
func (db *DB) visible() *oidlist.List {
	return db.oids.Peek()
}

func (db *DB) check() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

// checkOID validates a global OID and returns its volume and local OID.
func (db *DB) checkOID(oid int) (*volume.Volume, int, int, error) {
	if err := db.check(); err != nil {
		return nil, 0, 0, err
	}
	v, local, i, ok := db.vols.FindVol(oid)
	if !ok {
		return nil, 0, 0, &OIDRangeError{OID: oid, NumOIDs: db.vols.NumOIDs()}
	}
	return v, local, i, nil
}

// Close releases all mapped memory, worker buffers and open files.
// Leases and sequences obtained from the database are invalid afterwards.
func (db *DB) Close() error {
	if db == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := db.release()
	if cerr := closeAll(db.caches); cerr != nil {
		err = errors.Join(err, cerr)
	}
	db.logger.LogClose(context.Background(), err)
	return err
}

func (db *DB) release() error {
	db.atlas.Lock()
	for _, w := range db.workers {
		w.retire()
	}
	db.workers = nil
	db.atlas.Unlock()

	var errs []error
	if db.vols != nil {
		if err := db.vols.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.atlas.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Name returns the name the database was opened with.
func (db *DB) Name() string { return db.name }

// SeqType returns Protein or Nucleotide.
func (db *DB) SeqType() SeqType { return db.seqType }

// NumOIDs returns the size of the OID space, including filtered OIDs.
func (db *DB) NumOIDs() int { return db.vols.NumOIDs() }

// Title returns the database title.
func (db *DB) Title() string { return db.title }

// Date returns the most recent volume or alias date.
func (db *DB) Date() string { return db.date }

// VolumeNames returns the base names of the physical volumes in OID order.
func (db *DB) VolumeNames() []string {
	return append([]string(nil), db.tree.Volumes...)
}

// AliasFileNames returns the alias files read while opening.
func (db *DB) AliasFileNames() []string {
	return append([]string(nil), db.tree.AliasFiles...)
}

// IsFiltered reports whether alias filters or id lists hide OIDs.
func (db *DB) IsFiltered() bool {
	return !db.visible().IsTrivial()
}

// MemoryStats returns a snapshot of the mapped region table.
func (db *DB) MemoryStats() RegionStats {
	return db.atlas.Stats()
}

type volumeInfo struct {
	vols *volset.Set
}

func (vi volumeInfo) volume(base string) *volume.Volume {
	i, ok := vi.vols.Index(base)
	if !ok {
		return nil
	}
	return vi.vols.Volume(i)
}

func (vi volumeInfo) VolumeTitle(base string) string {
	if v := vi.volume(base); v != nil {
		return v.Title()
	}
	return ""
}

func (vi volumeInfo) VolumeDate(base string) string {
	if v := vi.volume(base); v != nil {
		return v.Date()
	}
	return ""
}

func (vi volumeInfo) VolumeTotals(base string) (uint64, uint64) {
	if v := vi.volume(base); v != nil {
		return uint64(v.NumOIDs()), v.TotalLength()
	}
	return 0, 0
}
