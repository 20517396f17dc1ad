package volume

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/dberr"
)

// index is the parsed index file. The offset tables alias the leased file.
type index struct {
	lease       *atlas.Lease
	version     int
	title       string
	date        string
	numOIDs     int
	totalLength uint64
	maxLength   int
	hdr         []byte
	seq         []byte
	amb         []byte
}

type cursor struct {
	b    []byte
	name string
	err  error
}

func (c *cursor) u32() uint32 {
	if c.err != nil {
		return 0
	}
	if len(c.b) < 4 {
		c.err = dberr.Corrupt(c.name, "truncated header")
		return 0
	}
	v := be.Uint32(c.b)
	c.b = c.b[4:]
	return v
}

func (c *cursor) u64le() uint64 {
	if c.err != nil {
		return 0
	}
	if len(c.b) < 8 {
		c.err = dberr.Corrupt(c.name, "truncated header")
		return 0
	}
	v := binary.LittleEndian.Uint64(c.b)
	c.b = c.b[8:]
	return v
}

func (c *cursor) str() string {
	n := int(c.u32())
	if c.err != nil {
		return ""
	}
	if n > len(c.b) {
		c.err = dberr.Corrupt(c.name, "truncated string")
		return ""
	}
	s := string(c.b[:n])
	c.b = c.b[n:]
	return s
}

func (c *cursor) table(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n*4 > len(c.b) {
		c.err = dberr.Corrupt(c.name, "truncated offset table")
		return nil
	}
	t := c.b[: n*4 : n*4]
	c.b = c.b[n*4:]
	return t
}

func openIndex(ctx context.Context, a *atlas.Atlas, name string, seqType SeqType) (*index, error) {
	size, err := a.FileSize(ctx, name)
	if err != nil {
		return nil, err
	}
	lease, err := a.Acquire(ctx, name, 0, size)
	if err != nil {
		return nil, err
	}

	idx, err := parseIndex(lease.Bytes(), name, seqType)
	if err != nil {
		lease.Release()
		return nil, err
	}
	idx.lease = lease
	return idx, nil
}

func parseIndex(b []byte, name string, seqType SeqType) (*index, error) {
	c := &cursor{b: b, name: name}
	idx := &index{}

	idx.version = int(c.u32())
	typ := c.u32()
	idx.title = c.str()
	idx.date = c.str()
	idx.numOIDs = int(c.u32())
	idx.totalLength = c.u64le()
	idx.maxLength = int(c.u32())
	if c.err != nil {
		return nil, c.err
	}
	if idx.version != 4 && idx.version != 5 {
		return nil, dberr.Corrupt(name, "unsupported version %d", idx.version)
	}
	if want := map[SeqType]uint32{Protein: 1, Nucleotide: 0}[seqType]; typ != want {
		return nil, dberr.FileAccess("open", name, fmt.Errorf("volume is not %s", seqType))
	}

	idx.hdr = c.table(idx.numOIDs + 1)
	idx.seq = c.table(idx.numOIDs + 1)
	if seqType == Nucleotide {
		idx.amb = c.table(idx.numOIDs + 1)
	}
	if c.err != nil {
		return nil, c.err
	}
	return idx, nil
}

func (x *index) hdrOffset(i int) uint32 { return be.Uint32(x.hdr[i*4:]) }
func (x *index) seqOffset(i int) uint32 { return be.Uint32(x.seq[i*4:]) }
func (x *index) ambOffset(i int) uint32 { return be.Uint32(x.amb[i*4:]) }

func (x *index) release() {
	x.lease.Release()
}
