package volume

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/blockcodec"
	"github.com/hupe1980/seqdb/internal/dberr"
)

// ColumnMagic starts every column index file.
const ColumnMagic = "SQCL"

// MaskColumnTitle is the title of the column holding masked ranges.
const MaskColumnTitle = "BlastDb/MaskData"

// ColumnIndexExt returns the index file name of column name of base.
func ColumnIndexExt(base string, t SeqType, name string) string {
	return base + "." + name + "." + t.Letter() + "xa"
}

// ColumnDataExt returns the data file name of column name of base.
func ColumnDataExt(base string, t SeqType, name string) string {
	return base + "." + name + "." + t.Letter() + "xb"
}

// MetaEntry is one key/value pair of column metadata. Order is preserved.
type MetaEntry struct {
	Key   string
	Value string
}

type column struct {
	title     string
	meta      []MetaEntry
	indexName string
	dataName  string
	lease     *atlas.Lease
	offsets   []byte
}

func (c *column) release() {
	c.lease.Release()
}

func (c *column) offset(i int) int64 { return int64(be.Uint32(c.offsets[i*4:])) }

// columns discovers and parses the volume's column index files on first use.
func (v *Volume) columns(ctx context.Context) ([]*column, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.colDone {
		return v.cols, nil
	}

	suffix := "." + v.seqType.Letter() + "xa"
	names, err := v.a.List(ctx, v.base+".")
	if err != nil {
		return nil, dberr.FileAccess("list", v.base, err)
	}
	sort.Strings(names)

	var cols []*column
	for _, name := range names {
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		c, err := v.openColumn(ctx, name, strings.TrimSuffix(name, "a")+"b")
		if err != nil {
			for _, c := range cols {
				c.release()
			}
			return nil, err
		}
		cols = append(cols, c)
	}
	v.cols, v.colDone = cols, true
	return cols, nil
}

func (v *Volume) openColumn(ctx context.Context, indexName, dataName string) (*column, error) {
	size, err := v.a.FileSize(ctx, indexName)
	if err != nil {
		return nil, err
	}
	if _, err := v.a.FileSize(ctx, dataName); err != nil {
		return nil, err
	}
	lease, err := v.a.Acquire(ctx, indexName, 0, size)
	if err != nil {
		return nil, err
	}

	b := lease.Bytes()
	if len(b) < 4 || string(b[:4]) != ColumnMagic {
		lease.Release()
		return nil, dberr.Corrupt(indexName, "bad magic")
	}
	c := &cursor{b: b[4:], name: indexName}
	col := &column{indexName: indexName, dataName: dataName, lease: lease}
	col.title = c.str()
	nmeta := int(c.u32())
	for i := 0; i < nmeta && c.err == nil; i++ {
		k := c.str()
		col.meta = append(col.meta, MetaEntry{Key: k, Value: c.str()})
	}
	n := int(c.u32())
	if c.err == nil && n != v.NumOIDs() {
		c.err = dberr.Corrupt(indexName, "column has %d oids, volume has %d", n, v.NumOIDs())
	}
	col.offsets = c.table(n + 1)
	if c.err != nil {
		lease.Release()
		return nil, c.err
	}
	return col, nil
}

// Columns returns the titles of the volume's columns. The index of a title
// is its column id.
func (v *Volume) Columns(ctx context.Context) ([]string, error) {
	cols, err := v.columns(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.title
	}
	return titles, nil
}

// ColumnByTitle returns the column id with the given title, or -1.
func (v *Volume) ColumnByTitle(ctx context.Context, title string) (int, error) {
	cols, err := v.columns(ctx)
	if err != nil {
		return -1, err
	}
	for i, c := range cols {
		if c.title == title {
			return i, nil
		}
	}
	return -1, nil
}

func (v *Volume) column(ctx context.Context, id int) (*column, error) {
	cols, err := v.columns(ctx)
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(cols) {
		return nil, fmt.Errorf("%w: column %d", dberr.ErrArgument, id)
	}
	return cols[id], nil
}

// ColumnMeta returns the metadata of column id.
func (v *Volume) ColumnMeta(ctx context.Context, id int) ([]MetaEntry, error) {
	c, err := v.column(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.meta, nil
}

// ColumnBlob returns the stored blob of oid in column id without
// decompressing it. The bytes are valid until the lease is released.
func (v *Volume) ColumnBlob(ctx context.Context, id, oid int) (*atlas.Lease, []byte, error) {
	c, err := v.column(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return nil, nil, err
	}
	begin, end := c.offset(oid), c.offset(oid+1)
	l, err := v.a.Acquire(ctx, c.dataName, begin, end-begin)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Bytes(), nil
}

// ColumnData returns the decompressed blob of oid in column id. An empty
// stored blob yields nil.
func (v *Volume) ColumnData(ctx context.Context, id, oid int) ([]byte, error) {
	l, blob, err := v.ColumnBlob(ctx, id, oid)
	if err != nil {
		return nil, err
	}
	defer l.Release()
	if len(blob) == 0 {
		return nil, nil
	}
	data, err := blockcodec.Decode(blob)
	if err != nil {
		return nil, dberr.Corrupt(v.base, "column %d oid %d: %v", id, oid, err)
	}
	return append([]byte(nil), data...), nil
}
