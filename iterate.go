package seqdb

import (
	"fmt"
	"iter"

	"github.com/hupe1980/seqdb/internal/oidlist"
)

// SetIterationRange restricts iteration, chunking and validated lookups to
// global OIDs [begin, end). An end of zero, or past NumOIDs, means the end
// of the database. The shared chunk cursor is reset to begin. Totals keep
// the range given to Open.
func (db *DB) SetIterationRange(begin, end int) error {
	n := db.vols.NumOIDs()
	if end == 0 || end > n {
		end = n
	}
	if begin < 0 || begin > end {
		return fmt.Errorf("%w: oid range [%d,%d) of %d", ErrArgument, begin, end, n)
	}
	db.rng.Store(&oidRange{begin: begin, end: end})
	db.cursor.Store(int64(begin))
	return nil
}

// IterationRange returns the current iteration range.
func (db *DB) IterationRange() (begin, end int) {
	r := db.rng.Load()
	return r.begin, r.end
}

// CheckOrFindOID advances *oid to the first visible OID at or after it
// within the iteration range and reports whether there is one. A visible
// OID is left unchanged.
func (db *DB) CheckOrFindOID(oid *int) bool {
	if db.closed.Load() {
		return false
	}
	r := db.rng.Load()
	if *oid < r.begin {
		*oid = r.begin
	}
	return db.visible().CheckOrFindOID(oid, r.end)
}

// OIDs yields the visible OIDs of the iteration range in increasing order.
func (db *DB) OIDs() iter.Seq[int] {
	r := db.rng.Load()
	return db.visible().All(r.begin, r.end)
}

// Chunk is a batch of OIDs claimed by NextChunk or Cursor.Next. Unfiltered
// databases yield ranges; filtered databases yield explicit OID lists.
type Chunk struct {
	// Begin and End bound the chunk. For list chunks End is one past the
	// last OID.
	Begin int
	End   int
	// OIDs lists the visible OIDs when the database is filtered; it is nil
	// for range chunks.
	OIDs []int
}

// Len returns the number of OIDs in the chunk.
func (c Chunk) Len() int {
	if c.OIDs != nil {
		return len(c.OIDs)
	}
	return c.End - c.Begin
}

// All yields the OIDs of the chunk.
func (c Chunk) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		if c.OIDs != nil {
			for _, oid := range c.OIDs {
				if !yield(oid) {
					return
				}
			}
			return
		}
		for oid := c.Begin; oid < c.End; oid++ {
			if !yield(oid) {
				return
			}
		}
	}
}

// chunkAt returns the chunk of up to size visible OIDs starting at pos and
// the position after it.
func chunkAt(list *oidlist.List, pos, end, size int) (Chunk, int) {
	if list.IsTrivial() {
		stop := min(pos+size, end)
		if pos >= stop {
			return Chunk{Begin: end, End: end}, end
		}
		return Chunk{Begin: pos, End: stop}, stop
	}
	oids := make([]int, 0, size)
	oid := pos
	for len(oids) < size && list.CheckOrFindOID(&oid, end) {
		oids = append(oids, oid)
		oid++
	}
	if len(oids) == 0 {
		return Chunk{Begin: end, End: end, OIDs: oids}, end
	}
	return Chunk{Begin: oids[0], End: oids[len(oids)-1] + 1, OIDs: oids}, oid
}

// NextChunk claims the next chunk of up to size visible OIDs from the
// shared cursor. Concurrent callers receive disjoint chunks. An empty chunk
// means the range is exhausted.
func (db *DB) NextChunk(size int) (Chunk, error) {
	if err := db.check(); err != nil {
		return Chunk{}, err
	}
	if size <= 0 {
		return Chunk{}, fmt.Errorf("%w: chunk size %d", ErrArgument, size)
	}
	list := db.visible()
	for {
		r := db.rng.Load()
		pos := db.cursor.Load()
		c, next := chunkAt(list, max(int(pos), r.begin), r.end, size)
		if db.cursor.CompareAndSwap(pos, int64(next)) {
			return c, nil
		}
	}
}

// ResetChunkCursor rewinds the shared cursor to the start of the iteration
// range.
func (db *DB) ResetChunkCursor() {
	db.cursor.Store(int64(db.rng.Load().begin))
}

// Cursor is an independent chunk cursor. It is not safe for concurrent use.
type Cursor struct {
	db  *DB
	pos int
}

// NewCursor returns a cursor at the start of the iteration range.
func (db *DB) NewCursor() *Cursor {
	return &Cursor{db: db, pos: db.rng.Load().begin}
}

// Next returns the next chunk of up to size visible OIDs. An empty chunk
// means the range is exhausted.
func (c *Cursor) Next(size int) (Chunk, error) {
	if err := c.db.check(); err != nil {
		return Chunk{}, err
	}
	if size <= 0 {
		return Chunk{}, fmt.Errorf("%w: chunk size %d", ErrArgument, size)
	}
	r := c.db.rng.Load()
	chunk, next := chunkAt(c.db.visible(), max(c.pos, r.begin), r.end, size)
	c.pos = next
	return chunk, nil
}
