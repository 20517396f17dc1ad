package testutil

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/seqdb/blobstore"
	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/blockcodec"
	"github.com/hupe1980/seqdb/internal/seqcodec"
	"github.com/hupe1980/seqdb/internal/volume"
)

var be = binary.BigEndian

// MaskRange is a half-open masked interval.
type MaskRange struct {
	Begin, End int
}

// Seq is one sequence of a fixture volume.
type Seq struct {
	// Letters are IUPAC residues.
	Letters  string
	Deflines defline.Set
	// Masks maps a local algorithm id to its masked ranges.
	Masks map[int][]MaskRange
}

// Column is an extra column written verbatim. Blobs holds one payload per
// OID; nil payloads are stored empty.
type Column struct {
	Name  string
	Title string
	Meta  []volume.MetaEntry
	Blobs [][]byte
}

// VolumeSpec describes a fixture volume.
type VolumeSpec struct {
	Base        string
	Type        volume.SeqType
	Title       string
	Date        string
	Version     int
	Compression blockcodec.Type
	Seqs        []Seq
	// MaskAlgorithms maps local algorithm ids to "program:options". A mask
	// column is written when it is non-empty.
	MaskAlgorithms map[int]string
	Columns        []Column
	// SkipKV suppresses the key-value index.
	SkipKV bool
}

// Def builds a defline from FASTA-style ids. It panics on malformed ids.
func Def(title string, taxID int, ids ...string) defline.Defline {
	d := defline.Defline{Title: title, TaxID: taxID}
	for _, s := range ids {
		id, err := defline.Parse(s)
		if err != nil {
			panic(err)
		}
		d.IDs = append(d.IDs, id)
	}
	return d
}

// Deflines collects deflines into a set.
func Deflines(ds ...defline.Defline) defline.Set {
	return defline.Set(ds)
}

// WithMembership returns d with membership bit set.
func WithMembership(d defline.Defline, bit int) defline.Defline {
	for len(d.Memberships) <= bit/32 {
		d.Memberships = append(d.Memberships, 0)
	}
	d.Memberships[bit/32] |= 1 << (bit % 32)
	return d
}

// BuildVolume encodes spec into file contents keyed by file name.
func BuildVolume(spec VolumeSpec) (map[string][]byte, error) {
	files := make(map[string][]byte)
	n := len(spec.Seqs)
	nucl := spec.Type == volume.Nucleotide

	var (
		hdrFile, seqFile    []byte
		hdrOff, seqOff, amb []uint32
		total               uint64
		maxLen              int
	)
	if !nucl {
		seqFile = append(seqFile, 0)
	}

	for i, s := range spec.Seqs {
		hdrOff = append(hdrOff, uint32(len(hdrFile)))
		blob, err := blockcodec.Encode(s.Deflines.Encode(), spec.Compression)
		if err != nil {
			return nil, err
		}
		hdrFile = append(hdrFile, blob...)

		seqOff = append(seqOff, uint32(len(seqFile)))
		if nucl {
			packed, ambBlock, err := seqcodec.EncodeNucleotide(s.Letters)
			if err != nil {
				return nil, fmt.Errorf("oid %d: %w", i, err)
			}
			seqFile = append(seqFile, packed...)
			amb = append(amb, uint32(len(seqFile)))
			seqFile = append(seqFile, ambBlock...)
		} else {
			raw, err := seqcodec.EncodeProtein(s.Letters)
			if err != nil {
				return nil, fmt.Errorf("oid %d: %w", i, err)
			}
			seqFile = append(seqFile, raw...)
			seqFile = append(seqFile, 0)
		}
		total += uint64(len(s.Letters))
		maxLen = max(maxLen, len(s.Letters))
	}
	hdrOff = append(hdrOff, uint32(len(hdrFile)))
	seqOff = append(seqOff, uint32(len(seqFile)))

	version := spec.Version
	if version == 0 {
		version = 5
	}
	var idx []byte
	idx = be.AppendUint32(idx, uint32(version))
	if nucl {
		idx = be.AppendUint32(idx, 0)
	} else {
		idx = be.AppendUint32(idx, 1)
	}
	idx = appendString(idx, spec.Title)
	idx = appendString(idx, spec.Date)
	idx = be.AppendUint32(idx, uint32(n))
	idx = binary.LittleEndian.AppendUint64(idx, total)
	idx = be.AppendUint32(idx, uint32(maxLen))
	for _, tbl := range [][]uint32{hdrOff, seqOff} {
		for _, o := range tbl {
			idx = be.AppendUint32(idx, o)
		}
	}
	if nucl {
		for _, o := range amb {
			idx = be.AppendUint32(idx, o)
		}
		idx = be.AppendUint32(idx, seqOff[n])
	}

	files[volume.Ext(spec.Base, spec.Type, "in")] = idx
	files[volume.Ext(spec.Base, spec.Type, "sq")] = seqFile
	files[volume.Ext(spec.Base, spec.Type, "hr")] = hdrFile

	for _, kind := range []struct {
		k      defline.Kind
		suffix string
	}{{defline.GI, "nd"}, {defline.PIG, "pd"}, {defline.TI, "td"}} {
		if data := buildISAM(spec.Seqs, kind.k); data != nil {
			files[volume.Ext(spec.Base, spec.Type, kind.suffix)] = data
		}
	}

	if !spec.SkipKV {
		data, err := buildKV(spec.Seqs)
		if err != nil {
			return nil, err
		}
		if data != nil {
			files[volume.Ext(spec.Base, spec.Type, "kv")] = data
		}
	}

	cols := spec.Columns
	if len(spec.MaskAlgorithms) > 0 {
		cols = append(cols, maskColumn(spec))
	}
	for _, c := range cols {
		index, data, err := buildColumn(c, n, spec.Compression)
		if err != nil {
			return nil, err
		}
		files[volume.ColumnIndexExt(spec.Base, spec.Type, c.Name)] = index
		files[volume.ColumnDataExt(spec.Base, spec.Type, c.Name)] = data
	}
	return files, nil
}

func appendString(b []byte, s string) []byte {
	b = be.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func buildISAM(seqs []Seq, kind defline.Kind) []byte {
	type rec struct {
		key uint64
		oid int
	}
	var recs []rec
	for oid, s := range seqs {
		for _, d := range s.Deflines {
			for _, id := range d.IDs {
				if id.Kind == kind {
					recs = append(recs, rec{uint64(id.Num), oid})
				}
			}
		}
	}
	if len(recs) == 0 {
		return nil
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].key < recs[j].key })
	out := make([]byte, 0, len(recs)*12)
	for _, r := range recs {
		out = be.AppendUint64(out, r.key)
		out = be.AppendUint32(out, uint32(r.oid))
	}
	return out
}

func buildKV(seqs []Seq) ([]byte, error) {
	acc := make(map[string][]int)
	tax := make(map[int][]int)
	add := func(list []int, oid int) []int {
		if len(list) > 0 && list[len(list)-1] == oid {
			return list
		}
		return append(list, oid)
	}
	for oid, s := range seqs {
		for _, d := range s.Deflines {
			tax[d.TaxID] = add(tax[d.TaxID], oid)
			for _, id := range d.IDs {
				for _, k := range id.Keys() {
					acc[k] = add(acc[k], oid)
				}
			}
		}
	}
	if len(acc) == 0 && len(tax) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "seqdb-fixture-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "index.kv")

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(volume.BucketAccession)
		if err != nil {
			return err
		}
		for k, oids := range acc {
			if err := bkt.Put([]byte(k), packOIDs(oids)); err != nil {
				return err
			}
		}
		bkt, err = tx.CreateBucketIfNotExists(volume.BucketTaxID)
		if err != nil {
			return err
		}
		for id, oids := range tax {
			if err := bkt.Put(be.AppendUint32(nil, uint32(id)), packOIDs(oids)); err != nil {
				return err
			}
		}
		return nil
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func packOIDs(oids []int) []byte {
	out := make([]byte, 0, len(oids)*4)
	for _, o := range oids {
		out = be.AppendUint32(out, uint32(o))
	}
	return out
}

func maskColumn(spec VolumeSpec) Column {
	ids := make([]int, 0, len(spec.MaskAlgorithms))
	for id := range spec.MaskAlgorithms {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	c := Column{Name: "mask", Title: volume.MaskColumnTitle}
	for _, id := range ids {
		c.Meta = append(c.Meta, volume.MetaEntry{Key: strconv.Itoa(id), Value: spec.MaskAlgorithms[id]})
	}
	for _, s := range spec.Seqs {
		c.Blobs = append(c.Blobs, EncodeMasks(s.Masks))
	}
	return c
}

// EncodeMasks serializes masked ranges grouped by algorithm id.
func EncodeMasks(masks map[int][]MaskRange) []byte {
	if len(masks) == 0 {
		return nil
	}
	ids := make([]int, 0, len(masks))
	for id := range masks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := be.AppendUint32(nil, uint32(len(ids)))
	for _, id := range ids {
		out = be.AppendUint32(out, uint32(id))
		out = be.AppendUint32(out, uint32(len(masks[id])))
		for _, r := range masks[id] {
			out = be.AppendUint32(out, uint32(r.Begin))
			out = be.AppendUint32(out, uint32(r.End))
		}
	}
	return out
}

func buildColumn(c Column, n int, t blockcodec.Type) (index, data []byte, err error) {
	index = append(index, volume.ColumnMagic...)
	index = appendString(index, c.Title)
	index = be.AppendUint32(index, uint32(len(c.Meta)))
	for _, m := range c.Meta {
		index = appendString(index, m.Key)
		index = appendString(index, m.Value)
	}
	index = be.AppendUint32(index, uint32(n))
	for i := range n {
		index = be.AppendUint32(index, uint32(len(data)))
		if i >= len(c.Blobs) || c.Blobs[i] == nil {
			continue
		}
		blob, err := blockcodec.Encode(c.Blobs[i], t)
		if err != nil {
			return nil, nil, err
		}
		data = append(data, blob...)
	}
	index = be.AppendUint32(index, uint32(len(data)))
	if data == nil {
		data = []byte{}
	}
	return index, data, nil
}

// WriteFiles writes files below dir, creating directories as needed.
func WriteFiles(t testing.TB, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// PutFiles stores files in an in-memory blob store.
func PutFiles(store *blobstore.MemoryStore, files map[string][]byte) {
	for name, data := range files {
		store.Put(name, data)
	}
}

// WriteVolume builds spec and writes it below dir.
func WriteVolume(t testing.TB, dir string, spec VolumeSpec) {
	t.Helper()
	files, err := BuildVolume(spec)
	if err != nil {
		t.Fatal(err)
	}
	WriteFiles(t, dir, files)
}
