package volume

import (
	"context"
	"sort"

	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/mmap"
)

// IDKind selects an identifier index.
type IDKind uint8

const (
	KindGI IDKind = iota + 1
	KindPIG
	KindTI
	KindAccession
	KindTaxID
)

func (k IDKind) String() string {
	switch k {
	case KindGI:
		return "gi"
	case KindPIG:
		return "pig"
	case KindTI:
		return "ti"
	case KindAccession:
		return "accession"
	case KindTaxID:
		return "taxid"
	default:
		return "unknown"
	}
}

// Numeric reports whether k is served by a numeric ISAM file.
func (k IDKind) Numeric() bool {
	return k == KindGI || k == KindPIG || k == KindTI
}

func (k IDKind) suffix() string {
	switch k {
	case KindGI:
		return "nd"
	case KindPIG:
		return "pd"
	case KindTI:
		return "td"
	}
	return ""
}

const isamRecord = 12

// isam is a sorted table of (u64 key, u32 oid) records.
type isam struct {
	lease *atlas.Lease
	data  []byte
}

func (x *isam) n() int { return len(x.data) / isamRecord }

func (x *isam) key(i int) uint64 { return be.Uint64(x.data[i*isamRecord:]) }

func (x *isam) oid(i int) int { return int(be.Uint32(x.data[i*isamRecord+8:])) }

// find returns all OIDs stored under key in record order.
func (x *isam) find(key uint64) []int {
	n := x.n()
	i := sort.Search(n, func(i int) bool { return x.key(i) >= key })
	var oids []int
	for ; i < n && x.key(i) == key; i++ {
		oids = append(oids, x.oid(i))
	}
	return oids
}

// keyOf returns the first key stored for oid. ISAM files are ordered by key,
// so this is a linear scan.
func (x *isam) keyOf(oid int) (uint64, bool) {
	for i := range x.n() {
		if x.oid(i) == oid {
			return x.key(i), true
		}
	}
	return 0, false
}

func (x *isam) release() {
	x.lease.Release()
}

// loadISAM returns the index for kind, or nil if the volume has none.
// v.mu must be held.
func (v *Volume) loadISAM(ctx context.Context, kind IDKind) (*isam, error) {
	if x, ok := v.isams[kind]; ok {
		return x, nil
	}
	name := v.file(kind.suffix())
	ok, err := v.a.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		v.isams[kind] = nil
		return nil, nil
	}
	size, err := v.a.FileSize(ctx, name)
	if err != nil {
		return nil, err
	}
	if size%isamRecord != 0 {
		return nil, dberr.Corrupt(name, "size %d is not a multiple of %d", size, isamRecord)
	}
	lease, err := v.a.Acquire(ctx, name, 0, size)
	if err != nil {
		return nil, err
	}
	_ = lease.Advise(mmap.HintLookup)
	x := &isam{lease: lease, data: lease.Bytes()}
	v.isams[kind] = x
	return x, nil
}

// HasIndex reports whether the volume carries an index for kind.
func (v *Volume) HasIndex(ctx context.Context, kind IDKind) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if kind.Numeric() {
		x, err := v.loadISAM(ctx, kind)
		return x != nil, err
	}
	kv, err := v.loadKV(ctx)
	return kv != nil, err
}

// LookupNumeric returns the local OIDs stored under a GI, PIG or TI.
func (v *Volume) LookupNumeric(ctx context.Context, kind IDKind, key uint64) ([]int, error) {
	if !kind.Numeric() {
		return nil, dberr.ErrArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	x, err := v.loadISAM(ctx, kind)
	if err != nil || x == nil {
		return nil, err
	}
	return x.find(key), nil
}

// NumericOf returns the first GI, PIG or TI stored for oid in the volume's
// index, for volumes whose deflines do not carry it.
func (v *Volume) NumericOf(ctx context.Context, kind IDKind, oid int) (uint64, bool, error) {
	if !kind.Numeric() {
		return 0, false, dberr.ErrArgument
	}
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return 0, false, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	x, err := v.loadISAM(ctx, kind)
	if err != nil || x == nil {
		return 0, false, err
	}
	key, ok := x.keyOf(oid)
	return key, ok, nil
}
