package seqdb

import (
	"context"
	"time"

	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/volume"
)

// valid reports whether a raw index hit is visible and inside the current
// iteration range.
func (db *DB) valid(oid int) bool {
	r := db.rng.Load()
	return oid >= r.begin && oid < r.end && db.visible().Contains(oid)
}

func (db *DB) firstValid(oids []int) (int, bool) {
	for _, oid := range oids {
		if db.valid(oid) {
			return oid, true
		}
	}
	return NotFound, false
}

func (db *DB) lookupNumeric(ctx context.Context, kind volume.IDKind, key uint64) (int, bool, error) {
	if err := db.check(); err != nil {
		return NotFound, false, err
	}
	start := time.Now()
	oids, err := db.index.ResolveNumeric(ctx, kind, key)
	if err != nil {
		return NotFound, false, err
	}
	oid, ok := db.firstValid(oids)
	db.metrics.RecordLookup(kind.String(), ok, time.Since(start))
	return oid, ok, nil
}

// GIToOID returns the first visible OID carrying gi.
func (db *DB) GIToOID(ctx context.Context, gi uint64) (int, bool, error) {
	return db.lookupNumeric(ctx, volume.KindGI, gi)
}

// PIGToOID returns the first visible OID with the protein identity group.
func (db *DB) PIGToOID(ctx context.Context, pig uint64) (int, bool, error) {
	return db.lookupNumeric(ctx, volume.KindPIG, pig)
}

// TIToOID returns the first visible OID carrying the trace id.
func (db *DB) TIToOID(ctx context.Context, ti uint64) (int, bool, error) {
	return db.lookupNumeric(ctx, volume.KindTI, ti)
}

// numericOf reads a numeric id of oid from its deflines, falling back to
// the volume index for ids that are not stored in headers.
func (db *DB) numericOf(ctx context.Context, oid int, kind volume.IDKind, get func(defline.Defline) (int64, bool)) (uint64, bool, error) {
	v, local, _, err := db.checkOID(oid)
	if err != nil {
		return 0, false, err
	}
	set, err := db.header(ctx, oid)
	if err != nil {
		return 0, false, err
	}
	for _, d := range set {
		if n, ok := get(d); ok {
			return uint64(n), true, nil
		}
	}
	return v.NumericOf(ctx, kind, local)
}

// OIDToGI returns the GI of oid's first defline that has one.
func (db *DB) OIDToGI(ctx context.Context, oid int) (uint64, bool, error) {
	return db.numericOf(ctx, oid, volume.KindGI, defline.Defline.GI)
}

// OIDToPIG returns the protein identity group of oid.
func (db *DB) OIDToPIG(ctx context.Context, oid int) (uint64, bool, error) {
	return db.numericOf(ctx, oid, volume.KindPIG, defline.Defline.PIG)
}

// AccessionToOIDs returns the visible OIDs carrying acc. acc may be a bare
// accession, with or without version, or a FASTA-style id such as
// "gi|5" or "ref|NP_000001.1|". A bare number that matches no accession is
// looked up as a GI.
func (db *DB) AccessionToOIDs(ctx context.Context, acc string) ([]int, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	start := time.Now()
	oids, err := db.index.ResolveAccession(ctx, acc)
	if err != nil {
		return nil, err
	}
	out := oids[:0]
	for _, oid := range oids {
		if db.valid(oid) {
			out = append(out, oid)
		}
	}
	db.metrics.RecordLookup(volume.KindAccession.String(), len(out) > 0, time.Since(start))
	return out, nil
}

// AccessionsToOIDs resolves each accession to its first visible OID.
// Entries that do not resolve are NotFound; the result has the order and
// length of accs.
func (db *DB) AccessionsToOIDs(ctx context.Context, accs []string) ([]int, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.index.AccessionsToOIDs(ctx, accs, db.valid)
}

// TaxIDsToOIDs returns the visible OIDs of each taxid, in input order.
// Unknown taxids yield an empty slice.
func (db *DB) TaxIDsToOIDs(ctx context.Context, taxIDs []int) ([][]int, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.index.TaxIDsToOIDs(ctx, taxIDs, db.valid)
}
