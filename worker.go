package seqdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/mmap"
	"github.com/hupe1980/seqdb/internal/volume"
)

// buffer is one leased run of consecutive sequences of a single volume.
type buffer struct {
	lease    *atlas.Lease
	base     int64
	vol      *volume.Volume
	volStart int
	// first and last are the global OIDs covered, inclusive.
	first, last int
}

func (b *buffer) contains(oid int) bool {
	return b != nil && oid >= b.first && oid <= b.last
}

func (b *buffer) sequence(oid int) []byte {
	data := b.lease.Bytes()
	if data == nil {
		return nil
	}
	begin, end := b.vol.SequenceSpan(oid - b.volStart)
	return data[begin-b.base : end-b.base]
}

func (b *buffer) release() {
	if b != nil {
		b.lease.Release()
	}
}

// Worker states.
const (
	workerIdle int32 = iota
	workerOut
	workerRetired
	// workerRetiredOut is a worker retired while a sequence was checked out.
	// Its buffer stays leased until RetSequence.
	workerRetiredOut
)

// Worker is a sequence buffer owned by one goroutine. GetSequence serves
// sequences from the buffer without taking any shared lock and refills it
// from the volume on a miss. At most one sequence may be checked out at a
// time.
type Worker struct {
	db    *DB
	idx   int
	state atomic.Int32
	buf   atomic.Pointer[buffer]
}

// Index returns the worker's position.
func (w *Worker) Index() int { return w.idx }

func (w *Worker) errRetired() error {
	return fmt.Errorf("%w: worker %d is no longer registered", ErrArgument, w.idx)
}

// GetSequence checks out the stored residues of oid (NCBIstdaa or packed
// NCBI2na). The bytes stay valid until RetSequence, even if the worker is
// retired in between. Checking out a second sequence before returning the
// first fails with ErrSequenceNotReturned.
func (w *Worker) GetSequence(ctx context.Context, oid int) ([]byte, error) {
	start := time.Now()
	switch w.state.Load() {
	case workerOut:
		return nil, ErrSequenceNotReturned
	case workerRetired, workerRetiredOut:
		return nil, w.errRetired()
	}
	if err := w.db.check(); err != nil {
		return nil, err
	}

	b := w.buf.Load()
	hit := b.contains(oid)
	if !hit {
		nb, err := w.refill(ctx, oid)
		if err != nil {
			return nil, err
		}
		if !w.buf.CompareAndSwap(b, nb) {
			nb.release()
			return nil, w.errRetired()
		}
		b.release()
		b = nb
	}

	seq := b.sequence(oid)
	if seq == nil {
		return nil, ErrClosed
	}
	// Retirement flips the state before it releases the buffer, so a
	// successful checkout pins b until RetSequence.
	if !w.state.CompareAndSwap(workerIdle, workerOut) {
		w.buf.Swap(nil).release()
		return nil, w.errRetired()
	}
	w.db.metrics.RecordSequenceFetch(hit, time.Since(start))
	return seq, nil
}

// refill leases a run of sequences starting at oid. The run ends at the
// end of the volume, the end of the iteration range or when the byte budget
// is spent, and always holds oid. Hidden OIDs inside the run do not count
// against the budget.
func (w *Worker) refill(ctx context.Context, oid int) (*buffer, error) {
	v, local, i, err := w.db.checkOID(oid)
	if err != nil {
		return nil, err
	}
	vstart := w.db.vols.Start(i)
	r := w.db.rng.Load()
	stop := min(w.db.vols.End(i), max(r.end, oid+1))
	list := w.db.visible()

	budget := w.db.bufferBudget()
	begin, end := v.SequenceSpan(local)
	used := end - begin
	last := local
	next := oid + 1
	for list.CheckOrFindOID(&next, stop) {
		b, e := v.SequenceSpan(next - vstart)
		if used+e-b > budget {
			break
		}
		used += e - b
		last = next - vstart
		next++
	}

	lease, base, err := v.RawRun(ctx, local, last)
	if err != nil {
		return nil, err
	}
	_ = lease.Advise(mmap.HintPrefetch)
	w.db.metrics.RecordBufferRefill(last-local+1, int64(lease.Len()))
	return &buffer{
		lease:    lease,
		base:     base,
		vol:      v,
		volStart: vstart,
		first:    oid,
		last:     vstart + last,
	}, nil
}

// RetSequence returns the checked out sequence. On a retired worker it also
// releases the buffer that was kept alive for the sequence.
func (w *Worker) RetSequence() error {
	for {
		switch s := w.state.Load(); s {
		case workerOut:
			if w.state.CompareAndSwap(workerOut, workerIdle) {
				return nil
			}
		case workerRetiredOut:
			if w.state.CompareAndSwap(workerRetiredOut, workerRetired) {
				w.buf.Swap(nil).release()
				return nil
			}
		default:
			return fmt.Errorf("%w: no sequence checked out", ErrUsage)
		}
	}
}

// Flush releases the buffer. The next GetSequence refills it.
func (w *Worker) Flush() error {
	switch w.state.Load() {
	case workerOut, workerRetiredOut:
		return ErrSequenceNotReturned
	}
	w.buf.Swap(nil).release()
	return nil
}

// retire unregisters the worker. A checked out sequence keeps its buffer
// until the owner returns it.
func (w *Worker) retire() {
	for {
		switch s := w.state.Load(); s {
		case workerIdle:
			if w.state.CompareAndSwap(workerIdle, workerRetired) {
				w.buf.Swap(nil).release()
				return
			}
		case workerOut:
			if w.state.CompareAndSwap(workerOut, workerRetiredOut) {
				return
			}
		default:
			return
		}
	}
}

// bufferBudget is the byte target of one worker refill.
func (db *DB) bufferBudget() int64 {
	n := int64(db.numWorkers.Load())
	return max(db.opts.memoryBudget/(4*max(n, 1)), 1)
}

// SetNumberOfWorkers registers n worker buffers. Reducing the count
// flushes and retires the excess workers; their handles fail with
// ErrArgument afterwards.
func (db *DB) SetNumberOfWorkers(n int) error {
	if err := db.check(); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("%w: worker count %d", ErrArgument, n)
	}
	db.atlas.Lock()
	defer db.atlas.Unlock()
	for len(db.workers) > n {
		last := len(db.workers) - 1
		db.workers[last].retire()
		db.workers[last] = nil
		db.workers = db.workers[:last]
	}
	for len(db.workers) < n {
		db.workers = append(db.workers, &Worker{db: db, idx: len(db.workers)})
	}
	db.numWorkers.Store(int32(n))
	return nil
}

// NumWorkers returns the number of registered workers.
func (db *DB) NumWorkers() int {
	return int(db.numWorkers.Load())
}

// Worker returns the i-th worker.
func (db *DB) Worker(i int) (*Worker, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	db.atlas.Lock()
	defer db.atlas.Unlock()
	if i < 0 || i >= len(db.workers) {
		return nil, fmt.Errorf("%w: worker %d of %d", ErrArgument, i, len(db.workers))
	}
	return db.workers[i], nil
}
