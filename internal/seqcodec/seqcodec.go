// Package seqcodec converts between the packed residue encodings stored in
// sequence files and the expanded alphabets handed to callers.
//
// Nucleotides are stored as NCBI2na, four bases per byte, most significant
// pair first. The low two bits of the final byte hold the number of bases in
// that byte; a final byte with count zero holds no bases. Bases that are not
// A, C, G or T are recorded as ambiguity runs in NCBI4na and overlaid on
// decode. Proteins are stored as NCBIstdaa, one residue per byte.
package seqcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var be = binary.BigEndian

// Encoding is a residue alphabet.
type Encoding uint8

const (
	// Stdaa is NCBIstdaa, the stored protein alphabet.
	Stdaa Encoding = iota
	// IUPACAA is protein letters.
	IUPACAA
	// NCBI2na is packed nucleotides without ambiguities, the stored form.
	NCBI2na
	// NCBI4na is one base per byte as a 4-bit A|C|G|T mask.
	NCBI4na
	// BlastNA8 is one base per byte in BLAST order (A C G T first).
	BlastNA8
	// IUPACNA is nucleotide letters including ambiguity codes.
	IUPACNA
)

func (e Encoding) String() string {
	switch e {
	case Stdaa:
		return "stdaa"
	case IUPACAA:
		return "iupacaa"
	case NCBI2na:
		return "2na"
	case NCBI4na:
		return "4na"
	case BlastNA8:
		return "blastna8"
	case IUPACNA:
		return "iupacna"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

// Protein reports whether e is a protein alphabet.
func (e Encoding) Protein() bool {
	return e == Stdaa || e == IUPACAA
}

var (
	// ErrEncoding is returned for an encoding that does not apply.
	ErrEncoding = errors.New("seqcodec: unsupported encoding")
	// ErrRange is returned for a sub-range outside the sequence.
	ErrRange = errors.New("seqcodec: range out of bounds")
	// ErrAmbiguity is returned for a malformed ambiguity block.
	ErrAmbiguity = errors.New("seqcodec: invalid ambiguity data")
)

const (
	// IUPACProtein maps NCBIstdaa codes to letters.
	IUPACProtein = "-ABCDEFGHIKLMNPQRSTVWXYZU*OJ"
	// IUPACNucleotide maps NCBI4na codes to letters.
	IUPACNucleotide = "-ACMGRSVTWYHKDBN"
)

var (
	na2to4    = [4]byte{1, 2, 4, 8}
	na4toNA8  = [16]byte{15, 0, 1, 6, 2, 4, 9, 13, 3, 8, 5, 12, 7, 11, 10, 14}
	letterTo4 [256]byte
	letterToS [256]byte
)

func init() {
	for i := range letterTo4 {
		letterTo4[i] = 0xff
		letterToS[i] = 0xff
	}
	for code, c := range []byte(IUPACNucleotide) {
		letterTo4[c] = byte(code)
		letterTo4[c|0x20] = byte(code)
	}
	letterTo4['U'], letterTo4['u'] = 8, 8
	for code, c := range []byte(IUPACProtein) {
		letterToS[c] = byte(code)
		if c >= 'A' && c <= 'Z' {
			letterToS[c|0x20] = byte(code)
		}
	}
}

// NucleotideLength returns the number of bases in a packed NCBI2na sequence.
func NucleotideLength(packed []byte) int {
	if len(packed) == 0 {
		return 0
	}
	return (len(packed)-1)*4 + int(packed[len(packed)-1]&3)
}

// NucleotideLengthApprox is an upper bound computed from the byte count only.
func NucleotideLengthApprox(nbytes int) int {
	if nbytes <= 0 {
		return 0
	}
	return nbytes*4 - 1
}

// Convert4na rewrites NCBI4na bytes in place into enc.
func Convert4na(seq []byte, enc Encoding) error {
	switch enc {
	case NCBI4na:
	case BlastNA8:
		for i, b := range seq {
			seq[i] = na4toNA8[b&15]
		}
	case IUPACNA:
		for i, b := range seq {
			seq[i] = IUPACNucleotide[b&15]
		}
	default:
		return fmt.Errorf("%w: %s for nucleotide", ErrEncoding, enc)
	}
	return nil
}

// DecodeNucleotide expands bases [begin, end) of a packed sequence with its
// ambiguity block into enc.
func DecodeNucleotide(packed, amb []byte, enc Encoding, begin, end int) ([]byte, error) {
	n := NucleotideLength(packed)
	if begin < 0 || end > n || begin > end {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", ErrRange, begin, end, n)
	}

	out := make([]byte, end-begin)
	for i := begin; i < end; i++ {
		b := packed[i>>2] >> (6 - 2*uint(i&3)) & 3
		out[i-begin] = na2to4[b]
	}

	if len(amb) > 0 {
		runs, err := ParseAmbiguities(amb)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			lo, hi := max(r.Pos, begin), min(r.Pos+r.Run, end)
			for i := lo; i < hi; i++ {
				out[i-begin] = r.Residue
			}
		}
	}

	if err := Convert4na(out, enc); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeProtein copies residues [begin, end) of a NCBIstdaa sequence into enc.
func DecodeProtein(raw []byte, enc Encoding, begin, end int) ([]byte, error) {
	if begin < 0 || end > len(raw) || begin > end {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", ErrRange, begin, end, len(raw))
	}
	out := make([]byte, end-begin)
	copy(out, raw[begin:end])

	switch enc {
	case Stdaa:
	case IUPACAA:
		for i, b := range out {
			if int(b) < len(IUPACProtein) {
				out[i] = IUPACProtein[b]
			} else {
				out[i] = 'X'
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s for protein", ErrEncoding, enc)
	}
	return out, nil
}
