package seqdb

import (
	"context"
	"fmt"

	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/cache"
	"github.com/hupe1980/seqdb/internal/seqcodec"
	"github.com/hupe1980/seqdb/internal/volume"
)

// Encoding selects the alphabet of decoded sequences.
type Encoding uint8

const (
	// EncodingStdaa is NCBIstdaa, the stored protein alphabet.
	EncodingStdaa Encoding = iota
	// Encoding2na is packed nucleotides, four bases per byte, without
	// ambiguities. It is the stored form returned by Sequence.
	Encoding2na
	// Encoding4na is one nucleotide per byte as an NCBI4na code.
	Encoding4na
	// EncodingBlastNA8 is one nucleotide per byte in BLAST order.
	EncodingBlastNA8
	// EncodingIUPAC is residue letters, including nucleotide ambiguity codes.
	EncodingIUPAC
)

func (e Encoding) String() string {
	switch e {
	case EncodingStdaa:
		return "stdaa"
	case Encoding2na:
		return "2na"
	case Encoding4na:
		return "4na"
	case EncodingBlastNA8:
		return "blastna8"
	case EncodingIUPAC:
		return "iupac"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

func (e Encoding) codec(t SeqType) (seqcodec.Encoding, error) {
	if t == Protein {
		switch e {
		case EncodingStdaa:
			return seqcodec.Stdaa, nil
		case EncodingIUPAC:
			return seqcodec.IUPACAA, nil
		}
	} else {
		switch e {
		case Encoding4na:
			return seqcodec.NCBI4na, nil
		case EncodingBlastNA8:
			return seqcodec.BlastNA8, nil
		case EncodingIUPAC:
			return seqcodec.IUPACNA, nil
		}
	}
	return 0, fmt.Errorf("%w: encoding %s for %s database", ErrArgument, e, t)
}

// Range is a half open residue range [Begin, End).
type Range struct {
	Begin int
	End   int
}

// SeqLength returns the exact length of a sequence.
func (db *DB) SeqLength(ctx context.Context, oid int) (int, error) {
	v, local, _, err := db.checkOID(oid)
	if err != nil {
		return 0, err
	}
	return v.Length(ctx, local)
}

// SeqLengthApprox returns the length of a sequence without reading it.
// It is exact for proteins and may exceed the true nucleotide length by
// up to three.
func (db *DB) SeqLengthApprox(oid int) (int, error) {
	v, local, _, err := db.checkOID(oid)
	if err != nil {
		return 0, err
	}
	return v.LengthApprox(local)
}

// Sequence returns the stored residues of oid without copying: NCBIstdaa
// for proteins, packed NCBI2na for nucleotides. The caller must release the
// lease; the bytes are invalid afterwards.
func (db *DB) Sequence(ctx context.Context, oid int) (*Lease, []byte, error) {
	v, local, _, err := db.checkOID(oid)
	if err != nil {
		return nil, nil, err
	}
	return v.RawSequence(ctx, local)
}

// AmbiguousSequence decodes a sequence into enc, including nucleotide
// ambiguity codes. A nil rng selects the whole sequence.
func (db *DB) AmbiguousSequence(ctx context.Context, oid int, enc Encoding, rng *Range) ([]byte, error) {
	v, local, _, err := db.checkOID(oid)
	if err != nil {
		return nil, err
	}
	ce, err := enc.codec(db.seqType)
	if err != nil {
		return nil, err
	}
	begin, end := 0, -1
	if rng != nil {
		if rng.Begin < 0 || rng.End < rng.Begin {
			return nil, fmt.Errorf("%w: range [%d,%d)", ErrArgument, rng.Begin, rng.End)
		}
		begin, end = rng.Begin, rng.End
	}
	return v.AmbiguousSequence(ctx, local, ce, begin, end)
}

func (db *DB) header(ctx context.Context, oid int) (defline.Set, error) {
	v, local, _, err := db.checkOID(oid)
	if err != nil {
		return nil, err
	}
	if db.headers == nil {
		return v.Header(ctx, local)
	}

	key := cache.CacheKey{Kind: cache.CacheKindHeader, Path: v.Base(), Offset: uint64(local)}
	raw, ok := db.headers.Get(ctx, key)
	if !ok {
		if raw, err = v.RawHeader(ctx, local); err != nil {
			return nil, err
		}
		db.headers.Set(ctx, key, raw)
	}
	set, err := defline.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s oid %d: %w", volume.Ext(v.Base(), v.SeqType(), "hr"), local, err)
	}
	return set, nil
}

// Deflines returns the deflines of a sequence.
func (db *DB) Deflines(ctx context.Context, oid int) (defline.Set, error) {
	return db.header(ctx, oid)
}

// TaxIDs returns the distinct taxonomy ids of a sequence's deflines.
func (db *DB) TaxIDs(ctx context.Context, oid int) ([]int, error) {
	set, err := db.header(ctx, oid)
	if err != nil {
		return nil, err
	}
	return set.TaxIDs(), nil
}

// SeqIDs returns the identifiers of a sequence's deflines.
func (db *DB) SeqIDs(ctx context.Context, oid int) ([]defline.SeqID, error) {
	set, err := db.header(ctx, oid)
	if err != nil {
		return nil, err
	}
	return set.SeqIDs(), nil
}
