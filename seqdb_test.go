package seqdb

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seqdb/blobstore"
	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/blockcodec"
	"github.com/hupe1980/seqdb/internal/idlist"
	"github.com/hupe1980/seqdb/internal/volume"
	"github.com/hupe1980/seqdb/testutil"
)

// proteinVolume returns n protein sequences. OID i has gi giBase+i,
// accession NP_<giBase+i>.1, taxid 9606 on even and 10090 on odd OIDs, and
// i%7+1 residues.
func proteinVolume(base string, n, giBase int) testutil.VolumeSpec {
	spec := testutil.VolumeSpec{
		Base:  base,
		Type:  volume.Protein,
		Title: "title " + base,
		Date:  "Jan 2, 2024  10:00 AM",
	}
	for i := range n {
		id := giBase + i
		tax := 9606
		if i%2 == 1 {
			tax = 10090
		}
		d := testutil.Def(fmt.Sprintf("protein %d", id), tax, fmt.Sprintf("gi|%d", id), fmt.Sprintf("ref|NP_%d.1|", id))
		spec.Seqs = append(spec.Seqs, testutil.Seq{
			Letters:  strings.Repeat("MKV", 3)[:i%7+1],
			Deflines: defline.Set{d},
		})
	}
	return spec
}

func nucleotideVolume(base string) testutil.VolumeSpec {
	return testutil.VolumeSpec{
		Base:        base,
		Type:        volume.Nucleotide,
		Title:       "nucl " + base,
		Compression: blockcodec.ZSTD,
		Seqs: []testutil.Seq{
			{Letters: "ACGTACGTAC", Deflines: defline.Set{testutil.Def("n0", 562, "gi|100", "gb|AB000001.1|")}},
			{Letters: "ACGNNNTTGCA", Deflines: defline.Set{testutil.Def("n1", 562, "gi|101", "gb|AB000002.1|")}},
			{Letters: "A", Deflines: defline.Set{testutil.Def("n2", 9606, "gi|102")}},
			{Letters: "TTTTRYKMACGT", Deflines: defline.Set{testutil.Def("n3", 9606, "gi|103", "ti|77")}},
		},
	}
}

func newMemStore(t *testing.T, extra map[string][]byte, specs ...testutil.VolumeSpec) *blobstore.MemoryStore {
	t.Helper()
	store := blobstore.NewMemoryStore()
	for _, spec := range specs {
		files, err := testutil.BuildVolume(spec)
		require.NoError(t, err)
		testutil.PutFiles(store, files)
	}
	testutil.PutFiles(store, extra)
	return store
}

func openDB(t *testing.T, store blobstore.BlobStore, name string, seqType SeqType, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithStore(store), WithSearchPath()}, opts...)
	db, err := Open(context.Background(), name, seqType, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func collect(db *DB) []int {
	var out []int
	for oid := range db.OIDs() {
		out = append(out, oid)
	}
	return out
}

func TestOpen_Metadata(t *testing.T) {
	store := newMemStore(t, nil, proteinVolume("p", 10, 2))
	db := openDB(t, store, "p", Protein)

	assert.Equal(t, Protein, db.SeqType())
	assert.Equal(t, "title p", db.Title())
	assert.Equal(t, "Jan 2, 2024  10:00 AM", db.Date())
	assert.Equal(t, 10, db.NumOIDs())
	assert.Equal(t, 10, db.NumSeqs())
	assert.Equal(t, totalsDirect, db.TotalsMode())
	assert.Equal(t, []string{"p"}, db.VolumeNames())
	assert.Empty(t, db.AliasFileNames())
	assert.False(t, db.IsFiltered())

	var total uint64
	for i := range 10 {
		total += uint64(i%7 + 1)
	}
	assert.Equal(t, total, db.TotalLength())

	maxLen, err := db.MaxLength(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, maxLen)
	minLen, err := db.MinLength(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, minLen)
}

func TestOpen_UnknownTriesNucleotide(t *testing.T) {
	store := newMemStore(t, nil, nucleotideVolume("n"))
	db := openDB(t, store, "n", Unknown)
	assert.Equal(t, Nucleotide, db.SeqType())
	assert.Equal(t, 4, db.NumOIDs())

	db = openDB(t, newMemStore(t, nil, proteinVolume("p", 3, 1)), "p", Unknown)
	assert.Equal(t, Protein, db.SeqType())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, nil, proteinVolume("p", 10, 2))

	tests := []struct {
		name    string
		db      string
		seqType SeqType
		opts    []Option
		want    error
	}{
		{"missing", "nope", Protein, nil, ErrFileAccess},
		{"missing unknown", "nope", Unknown, nil, ErrFileAccess},
		{"wrong type", "p", Nucleotide, nil, ErrFileAccess},
		{"empty name", "  ", Protein, nil, ErrArgument},
		{"bad seq type", "p", SeqType(9), nil, ErrArgument},
		{"both lists", "p", Protein, []Option{WithGIList(2), WithNegativeGIList(3)}, ErrArgument},
		{"range", "p", Protein, []Option{WithOIDRange(5, 3)}, ErrArgument},
		{"negative range", "p", Protein, []Option{WithOIDRange(-1, 3)}, ErrArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithStore(store), WithSearchPath()}, tt.opts...)
			_, err := Open(ctx, tt.db, tt.seqType, opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var fae *FileAccessError
	_, err := Open(ctx, "nope", Protein, WithStore(store), WithSearchPath())
	require.ErrorAs(t, err, &fae)
	assert.Contains(t, fae.Path, "nope")
}

func TestOpen_LocalFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteVolume(t, dir, proteinVolume("p", 5, 1))

	db, err := Open(context.Background(), dir+"/p", Protein)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 5, db.NumOIDs())

	t.Setenv(EnvSearchPath, dir)
	db2, err := Open(context.Background(), "p", Protein)
	require.NoError(t, err)
	defer db2.Close()
	assert.Equal(t, 5, db2.NumOIDs())
}

func TestVolumeBoundaries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, nil, proteinVolume("a", 100, 1000), proteinVolume("b", 50, 5000))
	db := openDB(t, store, "a b", Protein)

	assert.Equal(t, 150, db.NumOIDs())
	assert.Equal(t, []string{"a", "b"}, db.VolumeNames())
	assert.Equal(t, "title a; title b", db.Title())

	defs, err := db.Deflines(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "protein 5000", defs[0].Title)

	defs, err = db.Deflines(ctx, 149)
	require.NoError(t, err)
	assert.Equal(t, "protein 5049", defs[0].Title)

	_, err = db.SeqLength(ctx, 150)
	assert.ErrorIs(t, err, ErrOIDNotFound)
	var re *OIDRangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 150, re.NumOIDs)

	_, err = db.Deflines(ctx, -1)
	assert.ErrorIs(t, err, ErrArgument)
}

func TestNegativeGIList(t *testing.T) {
	ctx := context.Background()
	// OID 3 carries gi 5.
	store := newMemStore(t, nil, proteinVolume("p", 10, 2))
	db := openDB(t, store, "p", Protein, WithNegativeGIList(5))

	assert.True(t, db.IsFiltered())
	assert.Equal(t, 9, db.NumSeqs())
	assert.Equal(t, totalsScan, db.TotalsMode())
	assert.NotContains(t, collect(db), 3)
	assert.Len(t, collect(db), 9)

	oid := 3
	require.True(t, db.CheckOrFindOID(&oid))
	assert.Equal(t, 4, oid)

	_, ok, err := db.GIToOID(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	// Hidden OIDs stay readable by number.
	defs, err := db.Deflines(ctx, 3)
	require.NoError(t, err)
	gi, ok := defs[0].GI()
	require.True(t, ok)
	assert.Equal(t, int64(5), gi)
}

func TestPositiveAndNegativeListsAreComplementary(t *testing.T) {
	store := newMemStore(t, nil, proteinVolume("p", 10, 2), proteinVolume("q", 6, 100))

	tests := []struct {
		name string
		pos  Option
		neg  Option
	}{
		{"gi", WithGIList(2, 5, 9, 101, 999), WithNegativeGIList(2, 5, 9, 101, 999)},
		{"seqid", WithSeqIDList("NP_3.1", "NP_100", "XP_1"), WithNegativeSeqIDList("NP_3.1", "NP_100", "XP_1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all := collect(openDB(t, store, "p q", Protein))
			pos := collect(openDB(t, store, "p q", Protein, tt.pos))
			neg := collect(openDB(t, store, "p q", Protein, tt.neg))

			assert.NotEmpty(t, pos)
			union := append(append([]int(nil), pos...), neg...)
			assert.ElementsMatch(t, all, union)
			for _, oid := range pos {
				assert.NotContains(t, neg, oid)
			}
		})
	}
}

func TestTaxIDList(t *testing.T) {
	store := newMemStore(t, nil, proteinVolume("p", 10, 2))
	db := openDB(t, store, "p", Protein, WithTaxIDList(10090))
	assert.Equal(t, []int{1, 3, 5, 7, 9}, collect(db))
	assert.Equal(t, 5, db.NumSeqs())
}

func TestTotals_DirectMatchesScan(t *testing.T) {
	ctx := context.Background()
	for _, spec := range []testutil.VolumeSpec{proteinVolume("p", 20, 1), nucleotideVolume("n")} {
		t.Run(spec.Base, func(t *testing.T) {
			seqType := Protein
			if spec.Type == volume.Nucleotide {
				seqType = Nucleotide
			}
			db := openDB(t, newMemStore(t, nil, spec), spec.Base, seqType)
			require.Equal(t, totalsDirect, db.TotalsMode())

			s, err := db.scan(ctx, oidRange{0, db.NumOIDs()}, true)
			require.NoError(t, err)
			assert.Equal(t, db.NumSeqs(), s.seqs)
			assert.Equal(t, db.TotalLength(), s.length)

			exact, err := db.ExactTotalLength(ctx)
			require.NoError(t, err)
			assert.Equal(t, s.length, exact)
		})
	}
}

func TestTotals_FilteredNucleotide(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, nil, nucleotideVolume("n"))
	db := openDB(t, store, "n", Nucleotide, WithNegativeGIList(102))

	assert.Equal(t, 3, db.NumSeqs())
	exact, err := db.ExactTotalLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10+11+12), exact)
	assert.GreaterOrEqual(t, db.TotalLength(), exact)

	maxLen, err := db.MaxLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, maxLen)
	minLen, err := db.MinLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, minLen)
}

func TestTotals_OIDRange(t *testing.T) {
	store := newMemStore(t, nil, proteinVolume("p", 10, 2))
	db := openDB(t, store, "p", Protein, WithOIDRange(2, 5))

	assert.Equal(t, totalsScan, db.TotalsMode())
	assert.Equal(t, 3, db.NumSeqs())
	assert.Equal(t, uint64(3+4+5), db.TotalLength())
	assert.Equal(t, []int{2, 3, 4}, collect(db))
}

func TestGIRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, nil, proteinVolume("a", 30, 10), proteinVolume("b", 20, 500))
	db := openDB(t, store, "a b", Protein)

	for oid := range db.NumOIDs() {
		gi, ok, err := db.OIDToGI(ctx, oid)
		require.NoError(t, err)
		require.True(t, ok)

		got, ok, err := db.GIToOID(ctx, gi)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, oid, got)
	}

	_, ok, err := db.GIToOID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessionLookups(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, nil, proteinVolume("a", 10, 2), proteinVolume("b", 10, 100))
	db := openDB(t, store, "a b", Protein)

	tests := []struct {
		acc  string
		want []int
	}{
		{"NP_3.1", []int{1}},
		{"np_3", []int{1}},
		{"ref|NP_101.1|", []int{11}},
		{"gi|5", []int{3}},
		{"104", []int{14}},
		{"NP_3.2", nil},
		{"XP_1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.acc, func(t *testing.T) {
			got, err := db.AccessionToOIDs(ctx, tt.acc)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	oids, err := db.AccessionsToOIDs(ctx, []string{"XP_1", "NP_2.1", "NP_109", "bad|"})
	require.NoError(t, err)
	assert.Equal(t, []int{NotFound, 0, 19, NotFound}, oids)

	byTax, err := db.TaxIDsToOIDs(ctx, []int{10090, 1})
	require.NoError(t, err)
	require.Len(t, byTax, 2)
	assert.Equal(t, []int{1, 3, 5, 7, 9, 11, 13, 15, 17, 19}, byTax[0])
	assert.Empty(t, byTax[1])
}

func TestLookups_RespectIterationRange(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t, nil, proteinVolume("p", 10, 2))
	db := openDB(t, store, "p", Protein)

	require.NoError(t, db.SetIterationRange(5, 0))
	_, ok, err := db.GIToOID(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	oid, ok, err := db.GIToOID(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, oid)

	oids, err := db.AccessionsToOIDs(ctx, []string{"NP_2.1", "NP_8.1"})
	require.NoError(t, err)
	assert.Equal(t, []int{NotFound, 6}, oids)
}

func TestTIAndPIG(t *testing.T) {
	ctx := context.Background()
	spec := proteinVolume("p", 3, 1)
	spec.Seqs[1].Deflines[0].IDs = append(spec.Seqs[1].Deflines[0].IDs, testutil.Def("", 0, "pig|42", "ti|9").IDs...)
	db := openDB(t, newMemStore(t, nil, spec), "p", Protein)

	oid, ok, err := db.PIGToOID(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, oid)

	pig, ok, err := db.OIDToPIG(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(42), pig)

	_, ok, err = db.OIDToPIG(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	oid, ok, err = db.TIToOID(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, oid)
}

func TestSequences(t *testing.T) {
	ctx := context.Background()

	t.Run("protein", func(t *testing.T) {
		db := openDB(t, newMemStore(t, nil, proteinVolume("p", 10, 2)), "p", Protein)

		seq, err := db.AmbiguousSequence(ctx, 4, EncodingIUPAC, nil)
		require.NoError(t, err)
		assert.Equal(t, "MKVMK", string(seq))

		seq, err = db.AmbiguousSequence(ctx, 4, EncodingIUPAC, &Range{Begin: 1, End: 3})
		require.NoError(t, err)
		assert.Equal(t, "KV", string(seq))

		lease, raw, err := db.Sequence(ctx, 4)
		require.NoError(t, err)
		assert.Len(t, raw, 5)
		lease.Release()
		assert.Nil(t, lease.Bytes())

		n, err := db.SeqLength(ctx, 6)
		require.NoError(t, err)
		assert.Equal(t, 7, n)

		_, err = db.AmbiguousSequence(ctx, 4, Encoding4na, nil)
		assert.ErrorIs(t, err, ErrArgument)
		_, err = db.AmbiguousSequence(ctx, 4, EncodingIUPAC, &Range{Begin: 3, End: 1})
		assert.ErrorIs(t, err, ErrArgument)
	})

	t.Run("nucleotide", func(t *testing.T) {
		db := openDB(t, newMemStore(t, nil, nucleotideVolume("n")), "n", Nucleotide)

		seq, err := db.AmbiguousSequence(ctx, 1, EncodingIUPAC, nil)
		require.NoError(t, err)
		assert.Equal(t, "ACGNNNTTGCA", string(seq))

		seq, err = db.AmbiguousSequence(ctx, 3, EncodingIUPAC, &Range{Begin: 4, End: 8})
		require.NoError(t, err)
		assert.Equal(t, "RYKM", string(seq))

		n, err := db.SeqLength(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		approx, err := db.SeqLengthApprox(2)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, approx, n)

		_, err = db.AmbiguousSequence(ctx, 0, Encoding2na, nil)
		assert.ErrorIs(t, err, ErrArgument)
		_, err = db.AmbiguousSequence(ctx, 0, EncodingStdaa, nil)
		assert.ErrorIs(t, err, ErrArgument)

		taxa, err := db.TaxIDs(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{9606}, taxa)

		ids, err := db.SeqIDs(ctx, 3)
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.Equal(t, defline.TI, ids[1].Kind)
	})
}

func TestHeaderCache(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, newMemStore(t, nil, proteinVolume("p", 4, 1)), "p", Protein, WithHeaderCache(1<<20))

	first, err := db.Deflines(ctx, 2)
	require.NoError(t, err)
	second, err := db.Deflines(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	hits, _ := db.headers.Stats()
	assert.Equal(t, int64(1), hits)
}

func TestAliasFile(t *testing.T) {
	ctx := context.Background()
	gil := idlist.EncodeBinary([]uint32{2, 4, 6})
	store := newMemStore(t, map[string][]byte{
		"sub.pal": []byte("# subset\nTITLE Even subset\nDBLIST p\nGILIST sub.gil\n"),
		"sub.gil": gil,
		"all.pal": []byte("TITLE Everything\nDBLIST sub q\n"),
	}, proteinVolume("p", 10, 2), proteinVolume("q", 4, 100))

	db := openDB(t, store, "sub", Protein)
	assert.Equal(t, "Even subset", db.Title())
	assert.Equal(t, []string{"sub.pal"}, db.AliasFileNames())
	assert.Equal(t, []int{0, 2, 4}, collect(db))
	assert.Equal(t, 3, db.NumSeqs())

	db = openDB(t, store, "all", Protein)
	assert.Equal(t, "Everything", db.Title())
	assert.Equal(t, []string{"p", "q"}, db.VolumeNames())
	assert.Equal(t, []string{"all.pal", "sub.pal"}, db.AliasFileNames())
	assert.Equal(t, []int{0, 2, 4, 10, 11, 12, 13}, collect(db))

	// Lookups outside the alias subset are not found.
	_, ok, err := db.GIToOID(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSummaryAndDiskUsage(t *testing.T) {
	ctx := context.Background()
	spec := proteinVolume("p", 5, 1)
	files, err := testutil.BuildVolume(spec)
	require.NoError(t, err)
	var want int64
	for _, data := range files {
		want += int64(len(data))
	}

	db := openDB(t, newMemStore(t, nil, spec), "p", Protein)
	usage, err := db.DiskUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, usage)

	s, err := db.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "title p", s.Title)
	assert.Equal(t, 5, s.NumSeqs)
	assert.Equal(t, want, s.DiskUsage)
	assert.Contains(t, s.String(), "5 sequences")
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	mc := &BasicMetricsCollector{}
	db := openDB(t, newMemStore(t, nil, proteinVolume("p", 10, 2)), "p", Protein,
		WithMetricsCollector(mc), WithNegativeGIList(3))

	_, _, err := db.GIToOID(ctx, 4)
	require.NoError(t, err)
	_, _, err = db.GIToOID(ctx, 3)
	require.NoError(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.LookupCount)
	assert.Equal(t, int64(1), stats.LookupMisses)
	assert.Equal(t, int64(1), stats.ScanCount)
	assert.Equal(t, int64(9), stats.ScanOIDs)
	assert.Positive(t, stats.MapCount)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "p", Protein, WithStore(newMemStore(t, nil, proteinVolume("p", 3, 1))), WithSearchPath())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Deflines(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.NextChunk(10)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Worker(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_AfterLookupWithoutIndex(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "p", Protein, WithStore(newMemStore(t, nil, proteinVolume("p", 5, 1))), WithSearchPath())
	require.NoError(t, err)

	// The volume has no trace id index.
	oid, ok, err := db.TIToOID(ctx, 77)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, NotFound, oid)
	_, ok, err = db.OIDToPIG(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NotPanics(t, func() { assert.NoError(t, db.Close()) })
}
