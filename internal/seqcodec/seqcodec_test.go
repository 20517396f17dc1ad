package seqcodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNucleotideRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		letters string
	}{
		{"empty", ""},
		{"one", "G"},
		{"exact byte", "ACGT"},
		{"remainder", "ACGTACG"},
		{"ambiguous", "ACNNNNGTRYA"},
		{"leading ambiguity", "NACGT"},
		{"long run", "A" + strings.Repeat("N", 40) + "T"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, amb, err := EncodeNucleotide(tt.letters)
			require.NoError(t, err)
			assert.Equal(t, len(tt.letters), NucleotideLength(packed))
			assert.LessOrEqual(t, len(tt.letters), NucleotideLengthApprox(len(packed)))

			got, err := DecodeNucleotide(packed, amb, IUPACNA, 0, len(tt.letters))
			require.NoError(t, err)
			assert.Equal(t, tt.letters, string(got))
		})
	}
}

func TestDecodeNucleotide_SubRange(t *testing.T) {
	letters := "ACGTNNNNACGTRRACGT"
	packed, amb, err := EncodeNucleotide(letters)
	require.NoError(t, err)

	for begin := 0; begin < len(letters); begin += 3 {
		for end := begin; end <= len(letters); end += 5 {
			got, err := DecodeNucleotide(packed, amb, IUPACNA, begin, end)
			require.NoError(t, err)
			assert.Equal(t, letters[begin:end], string(got), "[%d,%d)", begin, end)
		}
	}

	_, err = DecodeNucleotide(packed, amb, IUPACNA, 5, len(letters)+1)
	assert.ErrorIs(t, err, ErrRange)
}

func TestDecodeNucleotide_Encodings(t *testing.T) {
	packed, amb, err := EncodeNucleotide("ACGTN-")
	require.NoError(t, err)

	na4, err := DecodeNucleotide(packed, amb, NCBI4na, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 4, 8, 15, 0}, na4)

	na8, err := DecodeNucleotide(packed, amb, BlastNA8, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 14, 15}, na8)

	_, err = DecodeNucleotide(packed, amb, Stdaa, 0, 6)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestAmbiguities_LongFormat(t *testing.T) {
	runs := []Ambiguity{{Residue: 15, Pos: 1 << 25, Run: 3}}
	block := EncodeAmbiguities(runs)
	got, err := ParseAmbiguities(block)
	require.NoError(t, err)
	assert.Equal(t, runs, got)

	_, err = ParseAmbiguities(block[:6])
	assert.ErrorIs(t, err, ErrAmbiguity)
}

func TestProtein(t *testing.T) {
	letters := "MKVLA*XBZUOJ"
	raw, err := EncodeProtein(letters)
	require.NoError(t, err)
	assert.Equal(t, byte(12), raw[0]) // M

	got, err := DecodeProtein(raw, IUPACAA, 0, len(raw))
	require.NoError(t, err)
	assert.Equal(t, letters, string(got))

	sub, err := DecodeProtein(raw, Stdaa, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, raw[1:3], sub)

	lower, err := EncodeProtein("mkv")
	require.NoError(t, err)
	assert.Equal(t, raw[:3], lower)

	_, err = EncodeProtein("M1")
	assert.ErrorIs(t, err, ErrEncoding)
	_, err = DecodeProtein(raw, IUPACNA, 0, 1)
	assert.ErrorIs(t, err, ErrEncoding)
	_, err = DecodeProtein(raw, Stdaa, 4, 2)
	assert.ErrorIs(t, err, ErrRange)
}
