// Package defline models the per-OID header records of a sequence database.
//
// One OID may carry several deflines when identical sequences were merged
// when the database was built. Each defline holds its identifiers, the
// taxonomy id, the title and membership and link bit words.
package defline

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/seqdb/internal/dberr"
)

var be = binary.BigEndian

// Defline is one header record.
type Defline struct {
	Title       string
	TaxID       int
	IDs         []SeqID
	Memberships []uint32
	Links       []uint32
}

// GI returns the first GI of the defline.
func (d Defline) GI() (int64, bool) {
	return d.num(GI)
}

// PIG returns the first PIG of the defline.
func (d Defline) PIG() (int64, bool) {
	return d.num(PIG)
}

// TI returns the first trace id of the defline.
func (d Defline) TI() (int64, bool) {
	return d.num(TI)
}

func (d Defline) num(k Kind) (int64, bool) {
	for _, id := range d.IDs {
		if id.Kind == k {
			return id.Num, true
		}
	}
	return 0, false
}

// HasMembership reports whether membership bit is set.
func (d Defline) HasMembership(bit int) bool {
	if bit < 0 || bit/32 >= len(d.Memberships) {
		return false
	}
	return d.Memberships[bit/32]&(1<<(bit%32)) != 0
}

// Set is all deflines of one OID.
type Set []Defline

// TaxIDs returns the distinct taxonomy ids in order of first occurrence.
func (s Set) TaxIDs() []int {
	var out []int
	seen := make(map[int]bool, len(s))
	for _, d := range s {
		if !seen[d.TaxID] {
			seen[d.TaxID] = true
			out = append(out, d.TaxID)
		}
	}
	return out
}

// SeqIDs returns every identifier of every defline.
func (s Set) SeqIDs() []SeqID {
	var out []SeqID
	for _, d := range s {
		out = append(out, d.IDs...)
	}
	return out
}

// HasMembership reports whether any defline carries the bit.
func (s Set) HasMembership(bit int) bool {
	for _, d := range s {
		if d.HasMembership(bit) {
			return true
		}
	}
	return false
}

// Encode serializes the set.
func (s Set) Encode() []byte {
	var out []byte
	out = be.AppendUint32(out, uint32(len(s)))
	for _, d := range s {
		out = appendString(out, d.Title)
		out = be.AppendUint32(out, uint32(d.TaxID))
		out = be.AppendUint32(out, uint32(len(d.IDs)))
		for _, id := range d.IDs {
			out = appendString(out, id.String())
		}
		out = appendWords(out, d.Memberships)
		out = appendWords(out, d.Links)
	}
	return out
}

func appendString(b []byte, s string) []byte {
	b = be.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func appendWords(b []byte, w []uint32) []byte {
	b = be.AppendUint32(b, uint32(len(w)))
	for _, x := range w {
		b = be.AppendUint32(b, x)
	}
	return b
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.b) < 4 {
		r.err = fmt.Errorf("%w: truncated defline set", dberr.ErrCorrupt)
		return 0
	}
	v := be.Uint32(r.b)
	r.b = r.b[4:]
	return v
}

func (r *reader) count() int {
	n := int(r.u32())
	// Every element takes at least four bytes.
	if r.err == nil && n > len(r.b)/4+1 {
		r.err = fmt.Errorf("%w: count %d exceeds blob", dberr.ErrCorrupt, n)
		return 0
	}
	return n
}

func (r *reader) str() string {
	n := int(r.u32())
	if r.err != nil {
		return ""
	}
	if n > len(r.b) {
		r.err = fmt.Errorf("%w: truncated string", dberr.ErrCorrupt)
		return ""
	}
	s := string(r.b[:n])
	r.b = r.b[n:]
	return s
}

func (r *reader) words() []uint32 {
	n := r.count()
	if n == 0 {
		return nil
	}
	w := make([]uint32, n)
	for i := range w {
		w[i] = r.u32()
	}
	return w
}

// Decode parses a serialized set.
func Decode(b []byte) (Set, error) {
	r := &reader{b: b}
	n := r.count()
	set := make(Set, 0, n)
	for range n {
		var d Defline
		d.Title = r.str()
		d.TaxID = int(r.u32())
		nids := r.count()
		for range nids {
			s := r.str()
			if r.err != nil {
				break
			}
			id, err := Parse(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", dberr.ErrCorrupt, err)
			}
			d.IDs = append(d.IDs, id)
		}
		d.Memberships = r.words()
		d.Links = r.words()
		if r.err != nil {
			return nil, r.err
		}
		set = append(set, d)
	}
	if r.err != nil {
		return nil, r.err
	}
	return set, nil
}
