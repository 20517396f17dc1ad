package volume

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/blockcodec"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/seqcodec"
)

var be = binary.BigEndian

// SeqType is the residue type of a volume.
type SeqType uint8

const (
	Protein SeqType = iota
	Nucleotide
)

// Letter returns the first letter of the volume's file extensions.
func (t SeqType) Letter() string {
	if t == Protein {
		return "p"
	}
	return "n"
}

func (t SeqType) String() string {
	if t == Protein {
		return "protein"
	}
	return "nucleotide"
}

// Ext returns the file name of base with the typed extension, e.g.
// Ext("nr.00", Protein, "in") == "nr.00.pin".
func Ext(base string, t SeqType, suffix string) string {
	return base + "." + t.Letter() + suffix
}

// Options configures Open.
type Options struct {
	Logger *slog.Logger
}

// Volume is one opened volume.
type Volume struct {
	a       *atlas.Atlas
	base    string
	seqType SeqType
	logger  *slog.Logger

	idx *index

	// mu guards the lazily loaded auxiliary state below. Callers may hold
	// the atlas coarse lock; mu is always taken inside it.
	mu      sync.Mutex
	isams   map[IDKind]*isam
	kv      *kvIndex
	kvDone  bool
	cols    []*column
	colDone bool
	minLen  int
	minDone bool
}

// Open opens the volume with the given base name (path without extension).
func Open(ctx context.Context, a *atlas.Atlas, base string, seqType SeqType, opts Options) (*Volume, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	idx, err := openIndex(ctx, a, Ext(base, seqType, "in"), seqType)
	if err != nil {
		return nil, err
	}

	for _, suffix := range []string{"sq", "hr"} {
		if _, err := a.FileSize(ctx, Ext(base, seqType, suffix)); err != nil {
			idx.release()
			return nil, err
		}
	}

	v := &Volume{
		a:       a,
		base:    base,
		seqType: seqType,
		logger:  logger,
		idx:     idx,
		isams:   make(map[IDKind]*isam),
	}
	logger.Debug("volume opened", "base", base, "type", seqType.String(), "oids", idx.numOIDs)
	return v, nil
}

// Base returns the volume base name.
func (v *Volume) Base() string { return v.base }

// SeqType returns the residue type.
func (v *Volume) SeqType() SeqType { return v.seqType }

// NumOIDs returns the number of OIDs.
func (v *Volume) NumOIDs() int { return v.idx.numOIDs }

// Title returns the volume title.
func (v *Volume) Title() string { return v.idx.title }

// Date returns the volume creation date string.
func (v *Volume) Date() string { return v.idx.date }

// Version returns the index format version.
func (v *Volume) Version() int { return v.idx.version }

// TotalLength returns the residue count from the index header.
func (v *Volume) TotalLength() uint64 { return v.idx.totalLength }

// MaxLength returns the longest sequence from the index header.
func (v *Volume) MaxLength() int { return v.idx.maxLength }

// MinLength returns the shortest sequence, computed on first use.
func (v *Volume) MinLength(ctx context.Context) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.minDone {
		return v.minLen, nil
	}
	minLen := 0
	for oid := range v.NumOIDs() {
		n, err := v.Length(ctx, oid)
		if err != nil {
			return 0, err
		}
		if oid == 0 || n < minLen {
			minLen = n
		}
	}
	v.minLen, v.minDone = minLen, true
	return minLen, nil
}

func (v *Volume) file(suffix string) string {
	return Ext(v.base, v.seqType, suffix)
}

// seqRange returns the byte range of the residues of oid in the sequence
// file. For nucleotides this is the packed data without ambiguities.
func (v *Volume) seqRange(oid int) (int64, int64) {
	begin := int64(v.idx.seqOffset(oid))
	if v.seqType == Protein {
		return begin, int64(v.idx.seqOffset(oid+1)) - 1
	}
	return begin, int64(v.idx.ambOffset(oid))
}

// Length returns the exact sequence length of oid.
func (v *Volume) Length(ctx context.Context, oid int) (int, error) {
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return 0, err
	}
	begin, end := v.seqRange(oid)
	if v.seqType == Protein {
		return int(end - begin), nil
	}
	if end == begin {
		return 0, nil
	}
	l, err := v.a.Acquire(ctx, v.file("sq"), end-1, 1)
	if err != nil {
		return 0, err
	}
	defer l.Release()
	return (int(end-begin)-1)*4 + int(l.Bytes()[0]&3), nil
}

// LengthApprox returns an upper bound on the sequence length without
// touching the sequence file. It is exact for proteins.
func (v *Volume) LengthApprox(oid int) (int, error) {
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return 0, err
	}
	begin, end := v.seqRange(oid)
	if v.seqType == Protein {
		return int(end - begin), nil
	}
	return seqcodec.NucleotideLengthApprox(int(end - begin)), nil
}

// SequenceBytes returns the size in bytes of the stored residues of oid.
func (v *Volume) SequenceBytes(oid int) (int, error) {
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return 0, err
	}
	begin, end := v.seqRange(oid)
	return int(end - begin), nil
}

// RawSequence returns the stored residues of oid (NCBIstdaa or packed
// NCBI2na) without copying. The bytes are valid until the lease is released.
func (v *Volume) RawSequence(ctx context.Context, oid int) (*atlas.Lease, []byte, error) {
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return nil, nil, err
	}
	begin, end := v.seqRange(oid)
	l, err := v.a.Acquire(ctx, v.file("sq"), begin, end-begin)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Bytes(), nil
}

// RawRun leases the sequence bytes of OIDs [first, last] as one range.
// It is used to fill prefetch buffers with a single lease.
func (v *Volume) RawRun(ctx context.Context, first, last int) (*atlas.Lease, int64, error) {
	if err := dberr.CheckOID(first, v.NumOIDs()); err != nil {
		return nil, 0, err
	}
	if err := dberr.CheckOID(last, v.NumOIDs()); err != nil {
		return nil, 0, err
	}
	begin := int64(v.idx.seqOffset(first))
	end := int64(v.idx.seqOffset(last + 1))
	l, err := v.a.Acquire(ctx, v.file("sq"), begin, end-begin)
	if err != nil {
		return nil, 0, err
	}
	return l, begin, nil
}

// SequenceSpan returns the residue byte range of oid relative to the start
// of the sequence file.
func (v *Volume) SequenceSpan(oid int) (begin, end int64) {
	return v.seqRange(oid)
}

// AmbiguousSequence decodes residues [begin, end) of oid into enc. A
// negative end means the end of the sequence.
func (v *Volume) AmbiguousSequence(ctx context.Context, oid int, enc seqcodec.Encoding, begin, end int) ([]byte, error) {
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return nil, err
	}
	if enc.Protein() != (v.seqType == Protein) || enc == seqcodec.NCBI2na {
		return nil, fmt.Errorf("%w: encoding %s for %s volume", dberr.ErrArgument, enc, v.seqType)
	}

	lease, raw, err := v.RawSequence(ctx, oid)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	if v.seqType == Protein {
		if end < 0 {
			end = len(raw)
		}
		out, err := seqcodec.DecodeProtein(raw, enc, begin, end)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", dberr.ErrArgument, err)
		}
		return out, nil
	}

	ambBegin := int64(v.idx.ambOffset(oid))
	ambEnd := int64(v.idx.seqOffset(oid + 1))
	var amb []byte
	if ambEnd > ambBegin {
		al, err := v.a.Acquire(ctx, v.file("sq"), ambBegin, ambEnd-ambBegin)
		if err != nil {
			return nil, err
		}
		defer al.Release()
		amb = al.Bytes()
	}

	if end < 0 {
		end = seqcodec.NucleotideLength(raw)
	}
	out, err := seqcodec.DecodeNucleotide(raw, amb, enc, begin, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberr.ErrArgument, err)
	}
	return out, nil
}

// RawHeader returns the decompressed defline blob of oid.
func (v *Volume) RawHeader(ctx context.Context, oid int) ([]byte, error) {
	if err := dberr.CheckOID(oid, v.NumOIDs()); err != nil {
		return nil, err
	}
	begin := int64(v.idx.hdrOffset(oid))
	end := int64(v.idx.hdrOffset(oid + 1))
	l, err := v.a.Acquire(ctx, v.file("hr"), begin, end-begin)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	payload, err := blockcodec.Decode(l.Bytes())
	if err != nil {
		return nil, dberr.Corrupt(v.file("hr"), "oid %d: %v", oid, err)
	}
	return append([]byte(nil), payload...), nil
}

// Header returns the deflines of oid.
func (v *Volume) Header(ctx context.Context, oid int) (defline.Set, error) {
	raw, err := v.RawHeader(ctx, oid)
	if err != nil {
		return nil, err
	}
	set, err := defline.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s oid %d: %w", v.file("hr"), oid, err)
	}
	return set, nil
}

// Files returns the names of all files of the volume that exist.
func (v *Volume) Files(ctx context.Context) ([]string, error) {
	files := []string{v.file("in"), v.file("sq"), v.file("hr")}
	for _, suffix := range []string{"nd", "pd", "td", "kv"} {
		name := v.file(suffix)
		ok, err := v.a.Exists(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, name)
		}
	}
	cols, err := v.columns(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		files = append(files, c.indexName, c.dataName)
	}
	return files, nil
}

// Close releases the index lease and closes the key-value index.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var err error
	if v.kv != nil {
		err = v.kv.close()
		v.kv = nil
	}
	for _, c := range v.cols {
		c.release()
	}
	v.cols = nil
	for k, is := range v.isams {
		// A nil entry records a missing index file.
		if is != nil {
			is.release()
		}
		delete(v.isams, k)
	}
	v.idx.release()
	return err
}
