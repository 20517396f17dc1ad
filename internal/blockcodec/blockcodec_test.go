package blockcodec

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	data := bytes.Repeat([]byte("MKVLAAGIVGLLLA"), 500)

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			blob, err := Encode(data, typ)
			require.NoError(t, err)
			if typ != None {
				assert.Less(t, len(blob), len(data)/2, "repeated data should compress well")
				assert.Equal(t, byte(typ), blob[0])
			}

			got, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestEncode_IncompressibleStoredRaw(t *testing.T) {
	rng := rand.New(rand.NewPCG(4711, 42))
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(rng.Uint32())
	}

	for _, typ := range []Type{LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			blob, err := Encode(data, typ)
			require.NoError(t, err)
			assert.Equal(t, byte(None), blob[0])
			assert.Len(t, blob, len(data)+1)

			got, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestDecode_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"short header", []byte{byte(LZ4), 0, 0}},
		{"unknown tag", []byte{9, 0, 0, 0, 1, 0}},
		{"bad lz4", []byte{byte(LZ4), 0, 0, 0, 10, 0xff, 0xff}},
		{"bad zstd", []byte{byte(ZSTD), 0, 0, 0, 10, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.blob)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecode_NoneAliases(t *testing.T) {
	blob := []byte{0, 'a', 'b'}
	got, err := Decode(blob)
	require.NoError(t, err)
	got[0] = 'x'
	assert.Equal(t, byte('x'), blob[1])
}
