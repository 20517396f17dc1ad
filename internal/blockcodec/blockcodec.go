// Package blockcodec encodes and decodes the per-OID blobs stored in header
// and column files. A blob starts with a one-byte compression tag; compressed
// blobs carry the big-endian uncompressed size next.
//
//	[tag uint8][payload...]                          tag = None
//	[tag uint8][uncompressed uint32][compressed...]  tag = LZ4 | ZSTD
package blockcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores the payload as is.
	None Type = 0
	// LZ4 indicates LZ4 block compression (fast, good for hot data).
	LZ4 Type = 1
	// ZSTD indicates ZSTD block compression (better ratio, good for cold data).
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ErrCorrupt is returned for blobs that cannot be decoded.
var ErrCorrupt = errors.New("blockcodec: corrupt blob")

// maxUncompressed bounds allocations driven by the size field.
const maxUncompressed = 1 << 30

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Encode returns data framed with the given compression. If compression
// doesn't help (ratio > 0.9) the blob is stored uncompressed.
func Encode(data []byte, t Type) ([]byte, error) {
	var compressed []byte

	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
	default:
		return nil, fmt.Errorf("blockcodec: unknown type %d", t)
	}

	if t == None || len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, 1+len(data))
		out[0] = byte(None)
		copy(out[1:], data)
		return out, nil
	}

	out := make([]byte, 5+len(compressed))
	out[0] = byte(t)
	binary.BigEndian.PutUint32(out[1:], uint32(len(data)))
	copy(out[5:], compressed)
	return out, nil
}

// Decode returns the payload of blob. Uncompressed payloads alias blob.
func Decode(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrCorrupt)
	}

	t := Type(blob[0])
	if t == None {
		return blob[1:], nil
	}
	if len(blob) < 5 {
		return nil, fmt.Errorf("%w: short %s header", ErrCorrupt, t)
	}
	size := binary.BigEndian.Uint32(blob[1:])
	if size > maxUncompressed {
		return nil, fmt.Errorf("%w: size %d", ErrCorrupt, size)
	}
	payload := blob[5:]

	switch t {
	case LZ4:
		result := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return result, nil

	case ZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		decoded, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrCorrupt, blob[0])
	}
}
