// Package idindex resolves external identifiers to global OIDs by asking
// every volume's index in order.
//
// Results are raw: they are not checked against the visible OID set. The
// batch variants take a validity predicate so callers can apply the OID
// list and iteration range.
package idindex

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/idlist"
	"github.com/hupe1980/seqdb/internal/volset"
	"github.com/hupe1980/seqdb/internal/volume"
)

// NotFound marks an unresolved entry in batch results.
const NotFound = -1

// Index resolves identifiers over a volume set.
type Index struct {
	vols   *volset.Set
	logger *slog.Logger
}

// New returns an index over vols.
func New(vols *volset.Set, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{vols: vols, logger: logger}
}

func (x *Index) collect(ctx context.Context, lookup func(v *volume.Volume) ([]int, error)) ([]int, error) {
	var out []int
	for i := range x.vols.Len() {
		local, err := lookup(x.vols.Volume(i))
		if err != nil {
			return nil, err
		}
		start := x.vols.Start(i)
		for _, oid := range local {
			out = append(out, start+oid)
		}
	}
	return out, nil
}

// ResolveNumeric returns the global OIDs stored under a GI, PIG or TI.
func (x *Index) ResolveNumeric(ctx context.Context, kind volume.IDKind, key uint64) ([]int, error) {
	return x.collect(ctx, func(v *volume.Volume) ([]int, error) {
		return v.LookupNumeric(ctx, kind, key)
	})
}

// ResolveTaxID returns the global OIDs with the given taxonomy id.
func (x *Index) ResolveTaxID(ctx context.Context, taxID int) ([]int, error) {
	return x.collect(ctx, func(v *volume.Volume) ([]int, error) {
		return v.LookupTaxID(ctx, taxID)
	})
}

// parseAccession normalizes an accession argument. FASTA-style numeric ids
// return their kind and number; everything else returns a lookup key.
func parseAccession(acc string) (volume.IDKind, uint64, string, error) {
	acc = strings.TrimSpace(acc)
	if !strings.Contains(acc, "|") {
		return volume.KindAccession, 0, acc, nil
	}
	id, err := defline.Parse(acc)
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %w", dberr.ErrArgument, err)
	}
	switch id.Kind {
	case defline.GI:
		return volume.KindGI, uint64(id.Num), "", nil
	case defline.PIG:
		return volume.KindPIG, uint64(id.Num), "", nil
	case defline.TI:
		return volume.KindTI, uint64(id.Num), "", nil
	case defline.Accession:
		if id.Accession != "" {
			return volume.KindAccession, 0, id.VersionedAccession(), nil
		}
	}
	return volume.KindAccession, 0, id.Name, nil
}

// ResolveAccession returns the global OIDs for an accession. FASTA-style
// ids ("gi|5", "ref|NP_1.1|") are parsed first. When the string lookup
// finds nothing in any volume and acc is a number, it is retried as a GI.
func (x *Index) ResolveAccession(ctx context.Context, acc string) ([]int, error) {
	kind, num, key, err := parseAccession(acc)
	if err != nil {
		return nil, err
	}
	if kind != volume.KindAccession {
		return x.ResolveNumeric(ctx, kind, num)
	}
	if key == "" {
		return nil, nil
	}

	oids, err := x.collect(ctx, func(v *volume.Volume) ([]int, error) {
		return v.LookupAccession(ctx, key)
	})
	if err != nil || len(oids) > 0 {
		return oids, err
	}

	if gi, err := strconv.ParseUint(key, 10, 64); err == nil {
		x.logger.Debug("accession lookup retried as gi", "accession", key)
		return x.ResolveNumeric(ctx, volume.KindGI, gi)
	}
	return nil, nil
}

// Resolve dispatches on kind. Numeric kinds and taxids take decimal keys.
func (x *Index) Resolve(ctx context.Context, kind volume.IDKind, key string) ([]int, error) {
	switch kind {
	case volume.KindGI, volume.KindPIG, volume.KindTI:
		n, err := idlist.ParseNumber(idlist.GI, key)
		if err != nil {
			return nil, err
		}
		return x.ResolveNumeric(ctx, kind, n)
	case volume.KindAccession:
		return x.ResolveAccession(ctx, key)
	case volume.KindTaxID:
		n, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%w: taxid %q", dberr.ErrArgument, key)
		}
		return x.ResolveTaxID(ctx, n)
	default:
		return nil, fmt.Errorf("%w: id kind %d", dberr.ErrArgument, kind)
	}
}

func firstValid(oids []int, valid func(int) bool) int {
	for _, oid := range oids {
		if valid == nil || valid(oid) {
			return oid
		}
	}
	return NotFound
}

// AccessionsToOIDs resolves each accession to its first valid OID, or
// NotFound. Results are in input order.
func (x *Index) AccessionsToOIDs(ctx context.Context, accs []string, valid func(int) bool) ([]int, error) {
	out := make([]int, len(accs))
	for i, acc := range accs {
		oids, err := x.ResolveAccession(ctx, acc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			out[i] = NotFound
			continue
		}
		out[i] = firstValid(oids, valid)
	}
	return out, nil
}

// TaxIDsToOIDs resolves each taxid to all its valid OIDs. Unknown taxids
// yield an empty slice.
func (x *Index) TaxIDsToOIDs(ctx context.Context, taxIDs []int, valid func(int) bool) ([][]int, error) {
	out := make([][]int, len(taxIDs))
	for i, id := range taxIDs {
		oids, err := x.ResolveTaxID(ctx, id)
		if err != nil {
			return nil, err
		}
		kept := oids[:0]
		for _, oid := range oids {
			if valid == nil || valid(oid) {
				kept = append(kept, oid)
			}
		}
		out[i] = kept
	}
	return out, nil
}
