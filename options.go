package seqdb

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hupe1980/seqdb/blobstore"
	"github.com/hupe1980/seqdb/internal/idlist"
)

// EnvSearchPath names the environment variable consulted for the search
// path when WithSearchPath is not given.
const EnvSearchPath = "BLASTDB"

const (
	// DefaultMemoryBudget is the default ceiling for mapped file regions.
	DefaultMemoryBudget = 1 << 30
	// DefaultSliceSize is the default size of one mapped region.
	DefaultSliceSize = 16 << 20
)

type options struct {
	oidBegin int
	oidEnd   int

	positive []*idlist.List
	negative []*idlist.List

	memoryBudget int64
	sliceSize    int64
	workers      int
	parallelism  int
	ioLimit      int64

	store         blobstore.BlobStore
	searchPath    []string
	searchPathSet bool

	blockCacheBytes int64
	blockSize       int64
	diskCacheDir    string
	diskCacheBytes  int64
	headerCache     int64

	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open.
type Option func(*options)

// WithOIDRange restricts iteration and totals to global OIDs [begin, end).
// An end of zero means the end of the database.
func WithOIDRange(begin, end int) Option {
	return func(o *options) {
		o.oidBegin = begin
		o.oidEnd = end
	}
}

// WithGIList restricts the database to sequences carrying one of the GIs.
func WithGIList(gis ...uint64) Option {
	return func(o *options) {
		o.positive = append(o.positive, idlist.NewNumeric(idlist.GI, gis...))
	}
}

// WithNegativeGIList hides sequences carrying any of the GIs.
func WithNegativeGIList(gis ...uint64) Option {
	return func(o *options) {
		o.negative = append(o.negative, idlist.NewNumeric(idlist.GI, gis...))
	}
}

// WithTIList restricts the database to sequences carrying one of the trace ids.
func WithTIList(tis ...uint64) Option {
	return func(o *options) {
		o.positive = append(o.positive, idlist.NewNumeric(idlist.TI, tis...))
	}
}

// WithNegativeTIList hides sequences carrying any of the trace ids.
func WithNegativeTIList(tis ...uint64) Option {
	return func(o *options) {
		o.negative = append(o.negative, idlist.NewNumeric(idlist.TI, tis...))
	}
}

// WithSeqIDList restricts the database to sequences carrying one of the
// accessions. FASTA-style ids such as "gi|5" and "ref|NP_1.1|" are accepted.
func WithSeqIDList(accs ...string) Option {
	return func(o *options) {
		o.positive = append(o.positive, idlist.NewAccessions(accs...))
	}
}

// WithNegativeSeqIDList hides sequences carrying any of the accessions.
func WithNegativeSeqIDList(accs ...string) Option {
	return func(o *options) {
		o.negative = append(o.negative, idlist.NewAccessions(accs...))
	}
}

// WithTaxIDList restricts the database to sequences of the given taxa.
func WithTaxIDList(taxIDs ...int) Option {
	return func(o *options) {
		ids := make([]uint64, 0, len(taxIDs))
		for _, id := range taxIDs {
			if id >= 0 {
				ids = append(ids, uint64(id))
			}
		}
		o.positive = append(o.positive, idlist.NewNumeric(idlist.TaxID, ids...))
	}
}

// WithMemoryBudget sets the soft ceiling for mapped file regions and worker
// buffers. The default is 1 GiB.
func WithMemoryBudget(bytes int64) Option {
	return func(o *options) {
		o.memoryBudget = bytes
	}
}

// WithSliceSize sets the size of one mapped region. The default is 16 MiB.
func WithSliceSize(bytes int64) Option {
	return func(o *options) {
		o.sliceSize = bytes
	}
}

// WithWorkers sets the initial number of worker buffers. See
// DB.SetNumberOfWorkers.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithParallelism bounds the goroutines used to open volumes and scan
// totals. The default is GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithIOLimit caps reads from the blob store in bytes per second.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithStore reads database files from store instead of the local file
// system.
func WithStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithSearchPath sets the directories searched for database names that are
// not found relative to the referring alias file.
func WithSearchPath(dirs ...string) Option {
	return func(o *options) {
		o.searchPath = dirs
		o.searchPathSet = true
	}
}

// WithBlockCache caches blocks of remote blobs in memory. blockSize of zero
// selects 4 KiB blocks.
func WithBlockCache(capacityBytes, blockSize int64) Option {
	return func(o *options) {
		o.blockCacheBytes = capacityBytes
		o.blockSize = blockSize
	}
}

// WithDiskCache caches blocks of remote blobs under dir. It may be combined
// with WithBlockCache, in which case memory is consulted first.
func WithDiskCache(dir string, maxBytes int64) Option {
	return func(o *options) {
		o.diskCacheDir = dir
		o.diskCacheBytes = maxBytes
	}
}

// WithHeaderCache keeps up to capacityBytes of decompressed headers in
// memory for Deflines, TaxIDs and SeqIDs.
func WithHeaderCache(capacityBytes int64) Option {
	return func(o *options) {
		o.headerCache = capacityBytes
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger sets the logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		memoryBudget:     DefaultMemoryBudget,
		sliceSize:        DefaultSliceSize,
		workers:          1,
		parallelism:      runtime.GOMAXPROCS(0),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	if !o.searchPathSet {
		o.searchPath = envSearchPath()
	}
	return o
}

func envSearchPath() []string {
	v := os.Getenv(EnvSearchPath)
	if v == "" {
		return nil
	}
	var dirs []string
	for _, d := range strings.Split(v, string(os.PathListSeparator)) {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, filepath.ToSlash(d))
		}
	}
	return dirs
}
