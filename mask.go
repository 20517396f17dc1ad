package seqdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/remap"
	"github.com/hupe1980/seqdb/internal/volume"
)

// maskTable maps volume-local masking algorithm ids to database-wide ids.
type maskTable struct {
	remap *remap.Remapper
	// cols holds the mask column id of each volume, or -1.
	cols []int
}

// maskData returns the mask table, building it once under the atlas lock.
func (db *DB) maskData(ctx context.Context) (*maskTable, error) {
	if m := db.masks.Load(); m != nil {
		return m, nil
	}
	db.atlas.Lock()
	defer db.atlas.Unlock()
	if m := db.masks.Load(); m != nil {
		return m, nil
	}

	m := &maskTable{remap: remap.New(), cols: make([]int, db.vols.Len())}
	for i := range db.vols.Len() {
		v := db.vols.Volume(i)
		col, err := v.ColumnByTitle(ctx, volume.MaskColumnTitle)
		if err != nil {
			return nil, err
		}
		m.cols[i] = col
		if col < 0 {
			continue
		}
		meta, err := v.ColumnMeta(ctx, col)
		if err != nil {
			return nil, err
		}
		for _, e := range meta {
			local, err := strconv.Atoi(e.Key)
			if err != nil {
				return nil, dberr.Corrupt(v.Base(), "mask algorithm id %q", e.Key)
			}
			if _, err := m.remap.Add(i, local, e.Value); err != nil {
				return nil, err
			}
		}
	}
	db.masks.Store(m)
	return m, nil
}

// MaskAlgorithms returns the masking algorithm ids available in the
// database.
func (db *DB) MaskAlgorithms(ctx context.Context) ([]int, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	m, err := db.maskData(ctx)
	if err != nil {
		return nil, err
	}
	return m.remap.IDs(), nil
}

// MaskAlgorithmDetails returns the program and options of a masking
// algorithm.
func (db *DB) MaskAlgorithmDetails(ctx context.Context, id int) (program, options string, err error) {
	if err := db.check(); err != nil {
		return "", "", err
	}
	m, err := db.maskData(ctx)
	if err != nil {
		return "", "", err
	}
	desc, ok := m.remap.Description(id)
	if !ok {
		return "", "", fmt.Errorf("%w: masking algorithm %d", ErrArgument, id)
	}
	program, options = remap.SplitDescription(desc)
	return program, options, nil
}

// MaskData returns the masked ranges of oid for the given algorithms,
// ordered by start.
func (db *DB) MaskData(ctx context.Context, oid int, algoIDs ...int) ([]Range, error) {
	v, local, vi, err := db.checkOID(oid)
	if err != nil {
		return nil, err
	}
	m, err := db.maskData(ctx)
	if err != nil {
		return nil, err
	}

	want := make(map[int]bool, len(algoIDs))
	for _, id := range algoIDs {
		if _, ok := m.remap.Description(id); !ok {
			return nil, fmt.Errorf("%w: masking algorithm %d", ErrArgument, id)
		}
		if l, ok := m.remap.Local(vi, id); ok {
			want[l] = true
		}
	}
	if len(want) == 0 || m.cols[vi] < 0 {
		return nil, nil
	}

	blob, err := v.ColumnData(ctx, m.cols[vi], local)
	if err != nil {
		return nil, err
	}
	out, err := parseMasks(blob, want)
	if err != nil {
		return nil, dberr.Corrupt(v.Base(), "mask data of oid %d: %v", local, err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Begin != out[j].Begin {
			return out[i].Begin < out[j].Begin
		}
		return out[i].End < out[j].End
	})
	return out, nil
}

var errTruncated = errors.New("truncated")

// parseMasks decodes a mask blob: u32 group count, then per group u32
// algorithm id, u32 range count and u32 begin/end pairs.
func parseMasks(b []byte, want map[int]bool) ([]Range, error) {
	if len(b) == 0 {
		return nil, nil
	}
	be := binary.BigEndian
	next := func() (int, error) {
		if len(b) < 4 {
			return 0, errTruncated
		}
		v := be.Uint32(b)
		b = b[4:]
		return int(v), nil
	}

	groups, err := next()
	if err != nil {
		return nil, err
	}
	var out []Range
	for range groups {
		id, err := next()
		if err != nil {
			return nil, err
		}
		n, err := next()
		if err != nil {
			return nil, err
		}
		if n > len(b)/8 {
			return nil, fmt.Errorf("range count %d exceeds blob", n)
		}
		for range n {
			begin, _ := next()
			end, _ := next()
			if end < begin {
				return nil, fmt.Errorf("range [%d,%d)", begin, end)
			}
			if want[id] {
				out = append(out, Range{Begin: begin, End: end})
			}
		}
	}
	return out, nil
}
