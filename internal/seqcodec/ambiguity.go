package seqcodec

import "fmt"

const (
	longFormat = 1 << 31
	maxShortRun = 16
	maxLongRun  = 4096
	maxShortPos = 1<<24 - 1
)

// Ambiguity is a run of identical non-ACGT bases.
type Ambiguity struct {
	Residue byte // NCBI4na
	Pos     int
	Run     int
}

// ParseAmbiguities decodes an ambiguity block: a u32 entry count whose high
// bit selects the 64-bit entry form, followed by the entries.
//
//	short: residue:4 | run-1:4 | position:24
//	long:  residue:4 | run-1:12 | pad:16, position:32
func ParseAmbiguities(block []byte) ([]Ambiguity, error) {
	if len(block) < 4 {
		return nil, fmt.Errorf("%w: short header", ErrAmbiguity)
	}
	hdr := be.Uint32(block)
	long := hdr&longFormat != 0
	count := int(hdr &^ longFormat)

	width := 4
	if long {
		width = 8
	}
	if len(block)-4 < count*width {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrAmbiguity, count, len(block)-4)
	}

	runs := make([]Ambiguity, count)
	p := block[4:]
	for i := range runs {
		w := be.Uint32(p)
		if long {
			runs[i] = Ambiguity{
				Residue: byte(w >> 28),
				Run:     int(w>>16&0xfff) + 1,
				Pos:     int(be.Uint32(p[4:])),
			}
		} else {
			runs[i] = Ambiguity{
				Residue: byte(w >> 28),
				Run:     int(w>>24&0xf) + 1,
				Pos:     int(w & maxShortPos),
			}
		}
		p = p[width:]
	}
	return runs, nil
}

// EncodeNucleotide packs IUPAC letters into NCBI2na plus an ambiguity block.
// Ambiguous bases are packed as A. The block is nil when there are none.
func EncodeNucleotide(letters string) (packed, amb []byte, err error) {
	n := len(letters)
	packed = make([]byte, n/4+1)
	var runs []Ambiguity

	for i := 0; i < n; i++ {
		code := letterTo4[letters[i]]
		if code == 0xff {
			return nil, nil, fmt.Errorf("%w: letter %q", ErrEncoding, letters[i])
		}
		var two byte
		switch code {
		case 1:
			two = 0
		case 2:
			two = 1
		case 4:
			two = 2
		case 8:
			two = 3
		default:
			if k := len(runs) - 1; k >= 0 && runs[k].Residue == code && runs[k].Pos+runs[k].Run == i {
				runs[k].Run++
			} else {
				runs = append(runs, Ambiguity{Residue: code, Pos: i, Run: 1})
			}
		}
		packed[i>>2] |= two << (6 - 2*uint(i&3))
	}
	packed[len(packed)-1] |= byte(n & 3)

	if len(runs) > 0 {
		amb = EncodeAmbiguities(runs)
	}
	return packed, amb, nil
}

// EncodeAmbiguities writes runs, splitting long runs and switching to the
// 64-bit form when a run or position does not fit the short form.
func EncodeAmbiguities(runs []Ambiguity) []byte {
	long := false
	for _, r := range runs {
		if r.Run > maxShortRun || r.Pos > maxShortPos {
			long = true
			break
		}
	}
	limit := maxShortRun
	if long {
		limit = maxLongRun
	}

	var split []Ambiguity
	for _, r := range runs {
		for r.Run > 0 {
			n := min(r.Run, limit)
			split = append(split, Ambiguity{Residue: r.Residue, Pos: r.Pos, Run: n})
			r.Pos += n
			r.Run -= n
		}
	}

	width := 4
	hdr := uint32(len(split))
	if long {
		width = 8
		hdr |= longFormat
	}
	out := make([]byte, 4+len(split)*width)
	be.PutUint32(out, hdr)
	p := out[4:]
	for _, r := range split {
		if long {
			be.PutUint32(p, uint32(r.Residue)<<28|uint32(r.Run-1)<<16)
			be.PutUint32(p[4:], uint32(r.Pos))
		} else {
			be.PutUint32(p, uint32(r.Residue)<<28|uint32(r.Run-1)<<24|uint32(r.Pos))
		}
		p = p[width:]
	}
	return out
}

// EncodeProtein converts IUPAC letters to NCBIstdaa.
func EncodeProtein(letters string) ([]byte, error) {
	out := make([]byte, len(letters))
	for i := 0; i < len(letters); i++ {
		code := letterToS[letters[i]]
		if code == 0xff {
			return nil, fmt.Errorf("%w: letter %q", ErrEncoding, letters[i])
		}
		out[i] = code
	}
	return out, nil
}
