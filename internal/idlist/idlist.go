// Package idlist parses the identifier list files referenced by alias files
// and user options, and the binary OID mask format.
package idlist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/seqdb/internal/dberr"
)

// Kind is the identifier type of a list.
type Kind uint8

const (
	GI Kind = iota + 1
	TI
	SeqID
	TaxID
)

func (k Kind) String() string {
	switch k {
	case GI:
		return "gi"
	case TI:
		return "ti"
	case SeqID:
		return "seqid"
	case TaxID:
		return "taxid"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Numeric reports whether lists of kind hold numbers.
func (k Kind) Numeric() bool {
	return k != SeqID
}

// binaryMagic starts binary GI and TI lists.
const binaryMagic = 0xFFFFFFFF

// List is a parsed identifier list. Numeric kinds fill IDs, SeqID fills
// Accessions. Duplicates are collapsed.
type List struct {
	Kind       Kind
	IDs        *roaring64.Bitmap
	Accessions []string
}

// Len returns the number of distinct identifiers.
func (l *List) Len() int {
	if l.Kind.Numeric() {
		return int(l.IDs.GetCardinality())
	}
	return len(l.Accessions)
}

// NewNumeric returns a numeric list holding ids.
func NewNumeric(kind Kind, ids ...uint64) *List {
	return &List{Kind: kind, IDs: roaring64.BitmapOf(ids...)}
}

// NewAccessions returns a seqid list holding accs.
func NewAccessions(accs ...string) *List {
	l := &List{Kind: SeqID}
	seen := make(map[string]bool, len(accs))
	for _, a := range accs {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		l.Accessions = append(l.Accessions, a)
	}
	return l
}

// Parse parses the contents of a list file of the given kind.
func Parse(kind Kind, name string, data []byte) (*List, error) {
	if kind == GI || kind == TI {
		if ids, ok, err := parseBinary(name, data); ok {
			if err != nil {
				return nil, err
			}
			return &List{Kind: kind, IDs: ids}, nil
		}
	}

	lines, err := textLines(data)
	if err != nil {
		return nil, dberr.FileAccess("read", name, err)
	}
	if kind == SeqID {
		return NewAccessions(lines...), nil
	}

	l := &List{Kind: kind, IDs: roaring64.New()}
	for _, line := range lines {
		v, err := ParseNumber(kind, line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		l.IDs.Add(v)
	}
	return l, nil
}

// ParseNumber parses one numeric identifier. GI lists accept a "gi|" prefix.
func ParseNumber(kind Kind, s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if kind == GI && strings.HasPrefix(strings.ToLower(s), "gi|") {
		s = s[3:]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", dberr.ErrArgument, kind, s)
	}
	return v, nil
}

func parseBinary(name string, data []byte) (*roaring64.Bitmap, bool, error) {
	if len(data) < 8 || binary.BigEndian.Uint32(data) != binaryMagic {
		return nil, false, nil
	}
	n := int(binary.BigEndian.Uint32(data[4:]))
	body := data[8:]
	if len(body) < n*4 {
		return nil, true, dberr.Corrupt(name, "binary list declares %d ids, holds %d", n, len(body)/4)
	}
	ids := roaring64.New()
	for i := range n {
		ids.Add(uint64(binary.BigEndian.Uint32(body[i*4:])))
	}
	return ids, true, nil
}

func textLines(data []byte) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		out = append(out, strings.Fields(line)...)
	}
	return out, sc.Err()
}

// EncodeBinary writes ids in the binary list format.
func EncodeBinary(ids []uint32) []byte {
	out := binary.BigEndian.AppendUint32(nil, binaryMagic)
	out = binary.BigEndian.AppendUint32(out, uint32(len(ids)))
	for _, id := range ids {
		out = binary.BigEndian.AppendUint32(out, id)
	}
	return out
}

// ParseOIDMask parses an OID mask: a u32 OID count followed by a bitmap,
// most significant bit first. Bits at or past the count are ignored.
func ParseOIDMask(name string, data []byte) (*roaring.Bitmap, error) {
	if len(data) < 4 {
		return nil, dberr.Corrupt(name, "short oid mask")
	}
	n := int(binary.BigEndian.Uint32(data))
	bits := data[4:]
	if len(bits)*8 < n {
		return nil, dberr.Corrupt(name, "oid mask holds %d bits, declares %d", len(bits)*8, n)
	}
	bm := roaring.New()
	for i, b := range bits {
		if b == 0 {
			continue
		}
		for j := range 8 {
			oid := i*8 + j
			if oid >= n {
				break
			}
			if b&(0x80>>j) != 0 {
				bm.Add(uint32(oid))
			}
		}
	}
	return bm, nil
}

// EncodeOIDMask writes oids as an OID mask covering n OIDs.
func EncodeOIDMask(n int, oids []int) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(n))
	bits := make([]byte, (n+7)/8)
	for _, oid := range oids {
		if oid >= 0 && oid < n {
			bits[oid/8] |= 0x80 >> (oid % 8)
		}
	}
	return append(out, bits...)
}
