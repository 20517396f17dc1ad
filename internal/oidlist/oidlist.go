// Package oidlist materializes the set of visible global OIDs from an alias
// filter tree and user supplied identifier lists.
//
// A List is either trivial (every OID visible) or a roaring bitmap over the
// global OID space. Lists are immutable once built; iteration ranges are
// applied by callers through the end bound of CheckOrFindOID.
package oidlist

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
)

// State is the build state of a lazily constructed list.
type State uint8

const (
	NotBuilt State = iota
	Trivial
	Bitmap
)

func (s State) String() string {
	switch s {
	case NotBuilt:
		return "not-built"
	case Trivial:
		return "trivial"
	case Bitmap:
		return "bitmap"
	default:
		return "unknown"
	}
}

// List is the set of visible OIDs in [0, NumOIDs).
type List struct {
	numOIDs int
	bm      *roaring.Bitmap
}

// NewTrivial returns a list with every OID visible.
func NewTrivial(numOIDs int) *List {
	return &List{numOIDs: numOIDs}
}

// NewBitmap returns a list over bm. Bits at or past numOIDs are dropped.
func NewBitmap(numOIDs int, bm *roaring.Bitmap) *List {
	bm.RemoveRange(uint64(numOIDs), uint64(1)<<32)
	bm.RunOptimize()
	return &List{numOIDs: numOIDs, bm: bm}
}

// State returns Trivial or Bitmap.
func (l *List) State() State {
	if l.bm == nil {
		return Trivial
	}
	return Bitmap
}

// IsTrivial reports whether every OID is visible.
func (l *List) IsTrivial() bool { return l.bm == nil }

// NumOIDs returns the size of the OID space.
func (l *List) NumOIDs() int { return l.numOIDs }

// CheckOrFindOID advances *oid to the first visible OID >= *oid and below
// end, and reports whether one exists. end is clamped to NumOIDs; a negative
// *oid starts at 0.
func (l *List) CheckOrFindOID(oid *int, end int) bool {
	end = min(end, l.numOIDs)
	o := max(*oid, 0)
	if o >= end {
		return false
	}
	if l.bm == nil {
		*oid = o
		return true
	}
	if l.bm.Contains(uint32(o)) {
		*oid = o
		return true
	}
	it := l.bm.Iterator()
	it.AdvanceIfNeeded(uint32(o))
	if !it.HasNext() {
		return false
	}
	next := int(it.Next())
	if next >= end {
		return false
	}
	*oid = next
	return true
}

// Contains reports whether oid is visible.
func (l *List) Contains(oid int) bool {
	if oid < 0 || oid >= l.numOIDs {
		return false
	}
	return l.bm == nil || l.bm.Contains(uint32(oid))
}

// Count returns the number of visible OIDs in [begin, end).
func (l *List) Count(begin, end int) int {
	begin, end = max(begin, 0), min(end, l.numOIDs)
	if begin >= end {
		return 0
	}
	if l.bm == nil {
		return end - begin
	}
	n := l.bm.Rank(uint32(end - 1))
	if begin > 0 {
		n -= l.bm.Rank(uint32(begin - 1))
	}
	return int(n)
}

// Total returns the number of visible OIDs.
func (l *List) Total() int {
	return l.Count(0, l.numOIDs)
}

// All yields the visible OIDs in [begin, end) in increasing order.
func (l *List) All(begin, end int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for oid := begin; l.CheckOrFindOID(&oid, end); oid++ {
			if !yield(oid) {
				return
			}
		}
	}
}

// ForEach calls fn for each visible OID in [begin, end) until fn returns
// false.
func (l *List) ForEach(begin, end int, fn func(oid int) bool) {
	for oid := range l.All(begin, end) {
		if !fn(oid) {
			return
		}
	}
}

// Next returns the first visible OID >= oid below end.
func (l *List) Next(oid, end int) (int, bool) {
	ok := l.CheckOrFindOID(&oid, end)
	return oid, ok
}

// Lazy builds a List once under an external lock. Reads after the build
// take no lock. A failed build leaves the slot empty so a later call can
// retry.
type Lazy struct {
	mu    sync.Locker
	build func(context.Context) (*List, error)
	list  atomic.Pointer[List]
}

// NewLazy returns a lazy slot guarded by mu.
func NewLazy(mu sync.Locker, build func(context.Context) (*List, error)) *Lazy {
	return &Lazy{mu: mu, build: build}
}

// Get returns the list, building it on first use.
func (z *Lazy) Get(ctx context.Context) (*List, error) {
	if l := z.list.Load(); l != nil {
		return l, nil
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	if l := z.list.Load(); l != nil {
		return l, nil
	}
	l, err := z.build(ctx)
	if err != nil {
		return nil, err
	}
	z.list.Store(l)
	return l, nil
}

// Peek returns the list if it has been built.
func (z *Lazy) Peek() *List {
	return z.list.Load()
}

// State returns NotBuilt until the first successful Get.
func (z *Lazy) State() State {
	if l := z.list.Load(); l != nil {
		return l.State()
	}
	return NotBuilt
}
