package idindex

import (
	"context"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/idlist"
	"github.com/hupe1980/seqdb/internal/volume"
)

func numericKind(k idlist.Kind) volume.IDKind {
	if k == idlist.TI {
		return volume.KindTI
	}
	return volume.KindGI
}

// VolumeOIDs returns the local OIDs of volume i matched by list. Volumes
// without a suitable index are scanned header by header.
func (x *Index) VolumeOIDs(ctx context.Context, i int, list *idlist.List) (*roaring.Bitmap, error) {
	v := x.vols.Volume(i)
	out := roaring.New()

	var idx volume.IDKind
	switch list.Kind {
	case idlist.GI, idlist.TI:
		idx = numericKind(list.Kind)
	case idlist.SeqID:
		idx = volume.KindAccession
	case idlist.TaxID:
		idx = volume.KindTaxID
	}
	indexed, err := v.HasIndex(ctx, idx)
	if err != nil {
		return nil, err
	}
	if !indexed {
		x.logger.Debug("scanning headers for id list", "volume", v.Base(), "kind", list.Kind.String())
		return scanVolume(ctx, v, matcher(list))
	}

	add := func(oids []int) {
		for _, oid := range oids {
			out.Add(uint32(oid))
		}
	}
	switch list.Kind {
	case idlist.GI, idlist.TI:
		it := list.IDs.Iterator()
		for it.HasNext() {
			oids, err := v.LookupNumeric(ctx, idx, it.Next())
			if err != nil {
				return nil, err
			}
			add(oids)
		}
	case idlist.TaxID:
		it := list.IDs.Iterator()
		for it.HasNext() {
			oids, err := v.LookupTaxID(ctx, int(it.Next()))
			if err != nil {
				return nil, err
			}
			add(oids)
		}
	case idlist.SeqID:
		for _, acc := range list.Accessions {
			oids, err := volumeAccession(ctx, v, acc)
			if err != nil {
				return nil, err
			}
			add(oids)
		}
	}
	return out, nil
}

// volumeAccession resolves one seqid list entry within a volume, with the
// same GI fallback as ResolveAccession.
func volumeAccession(ctx context.Context, v *volume.Volume, acc string) ([]int, error) {
	kind, num, key, err := parseAccession(acc)
	if err != nil {
		return nil, err
	}
	if kind != volume.KindAccession {
		return v.LookupNumeric(ctx, kind, num)
	}
	oids, err := v.LookupAccession(ctx, key)
	if err != nil || len(oids) > 0 {
		return oids, err
	}
	if gi, perr := strconv.ParseUint(key, 10, 64); perr == nil {
		return v.LookupNumeric(ctx, volume.KindGI, gi)
	}
	return nil, nil
}

// ListOIDs returns the global OIDs matched by list over all volumes.
func (x *Index) ListOIDs(ctx context.Context, list *idlist.List) (*roaring.Bitmap, error) {
	out := roaring.New()
	for i := range x.vols.Len() {
		local, err := x.VolumeOIDs(ctx, i, list)
		if err != nil {
			return nil, err
		}
		out.Or(roaring.AddOffset(local, uint32(x.vols.Start(i))))
	}
	return out, nil
}

func matcher(list *idlist.List) func(defline.Set) bool {
	switch list.Kind {
	case idlist.GI, idlist.TI:
		want := defline.GI
		if list.Kind == idlist.TI {
			want = defline.TI
		}
		return func(set defline.Set) bool {
			for _, id := range set.SeqIDs() {
				if id.Kind == want && list.IDs.Contains(uint64(id.Num)) {
					return true
				}
			}
			return false
		}
	case idlist.TaxID:
		return func(set defline.Set) bool {
			for _, t := range set.TaxIDs() {
				if list.IDs.Contains(uint64(t)) {
					return true
				}
			}
			return false
		}
	default:
		keys := make(map[string]bool, len(list.Accessions))
		nums := make(map[defline.Kind]map[int64]bool)
		addNum := func(k defline.Kind, n uint64) {
			if nums[k] == nil {
				nums[k] = make(map[int64]bool)
			}
			nums[k][int64(n)] = true
		}
		for _, a := range list.Accessions {
			kind, num, key, err := parseAccession(a)
			switch {
			case err != nil:
			case kind == volume.KindAccession:
				keys[strings.ToLower(key)] = true
				if gi, err := strconv.ParseUint(key, 10, 64); err == nil {
					addNum(defline.GI, gi)
				}
			default:
				addNum(map[volume.IDKind]defline.Kind{
					volume.KindGI: defline.GI, volume.KindPIG: defline.PIG, volume.KindTI: defline.TI,
				}[kind], num)
			}
		}
		return func(set defline.Set) bool {
			for _, id := range set.SeqIDs() {
				if nums[id.Kind][id.Num] {
					return true
				}
				for _, k := range id.Keys() {
					if keys[k] {
						return true
					}
				}
			}
			return false
		}
	}
}

// scanVolume returns the local OIDs whose deflines satisfy match.
func scanVolume(ctx context.Context, v *volume.Volume, match func(defline.Set) bool) (*roaring.Bitmap, error) {
	out := roaring.New()
	for oid := range v.NumOIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		set, err := v.Header(ctx, oid)
		if err != nil {
			return nil, err
		}
		if match(set) {
			out.Add(uint32(oid))
		}
	}
	return out, nil
}

// MembershipOIDs returns the local OIDs of volume i carrying bit.
func (x *Index) MembershipOIDs(ctx context.Context, i int, bit int) (*roaring.Bitmap, error) {
	return scanVolume(ctx, x.vols.Volume(i), func(set defline.Set) bool {
		return set.HasMembership(bit)
	})
}
