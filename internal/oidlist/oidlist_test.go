package oidlist_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seqdb/blobstore"
	"github.com/hupe1980/seqdb/defline"
	"github.com/hupe1980/seqdb/internal/alias"
	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/idindex"
	"github.com/hupe1980/seqdb/internal/idlist"
	"github.com/hupe1980/seqdb/internal/oidlist"
	"github.com/hupe1980/seqdb/internal/volset"
	"github.com/hupe1980/seqdb/internal/volume"
	"github.com/hupe1980/seqdb/testutil"
)

type fixture struct {
	a     *atlas.Atlas
	store *blobstore.MemoryStore
	vols  *volset.Set
	index *idindex.Index
}

// tenOIDs writes volume "v": OID i has gi i+2, taxid 100+i%2 and membership
// bit 1 on even OIDs.
func tenOIDs(skipKV bool) testutil.VolumeSpec {
	spec := testutil.VolumeSpec{Base: "v", Type: volume.Protein, SkipKV: skipKV}
	for i := range 10 {
		d := testutil.Def(fmt.Sprintf("seq %d", i), 100+i%2, fmt.Sprintf("gi|%d", i+2), fmt.Sprintf("ref|NP_%d.1|", i))
		if i%2 == 0 {
			d = testutil.WithMembership(d, 1)
		}
		spec.Seqs = append(spec.Seqs, testutil.Seq{Letters: "MKV", Deflines: defline.Set{d}})
	}
	return spec
}

func newFixture(t *testing.T, extra map[string][]byte, specs ...testutil.VolumeSpec) *fixture {
	t.Helper()
	store := blobstore.NewMemoryStore()
	var bases []string
	for _, spec := range specs {
		files, err := testutil.BuildVolume(spec)
		require.NoError(t, err)
		testutil.PutFiles(store, files)
		bases = append(bases, spec.Base)
	}
	testutil.PutFiles(store, extra)

	a := atlas.New(store)
	t.Cleanup(func() { _ = a.Close() })
	vols, err := volset.Open(context.Background(), a, bases, volume.Protein, volume.Options{}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vols.Close() })
	return &fixture{a: a, store: store, vols: vols, index: idindex.New(vols, nil)}
}

func (f *fixture) build(t *testing.T, names string, pos, neg []*idlist.List) (*oidlist.List, error) {
	t.Helper()
	tree, err := alias.Resolve(context.Background(), f.a, names, volume.Protein, alias.Options{})
	require.NoError(t, err)
	return oidlist.Build(context.Background(), oidlist.Config{
		Atlas: f.a, Tree: tree, Volumes: f.vols, Index: f.index, Positive: pos, Negative: neg,
	})
}

func visible(l *oidlist.List) []int {
	var out []int
	for oid := range l.All(0, l.NumOIDs()) {
		out = append(out, oid)
	}
	return out
}

func TestBuild_Trivial(t *testing.T) {
	f := newFixture(t, nil, tenOIDs(false))
	l, err := f.build(t, "v", nil, nil)
	require.NoError(t, err)
	assert.True(t, l.IsTrivial())
	assert.Equal(t, oidlist.Trivial, l.State())
	assert.Equal(t, 10, l.Total())
	assert.Equal(t, 4, l.Count(3, 7))
}

func TestBuild_NegativeGI(t *testing.T) {
	for _, skipKV := range []bool{false, true} {
		f := newFixture(t, nil, tenOIDs(skipKV))
		l, err := f.build(t, "v", nil, []*idlist.List{idlist.NewNumeric(idlist.GI, 5)})
		require.NoError(t, err)
		assert.Equal(t, 9, l.Total())
		assert.False(t, l.Contains(3))
		assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7, 8, 9}, visible(l))
	}
}

func TestBuild_PositiveAndNegativeAreComplementary(t *testing.T) {
	f := newFixture(t, nil, tenOIDs(false))
	ids := idlist.NewNumeric(idlist.GI, 2, 5, 9, 9999)

	pos, err := f.build(t, "v", []*idlist.List{ids}, nil)
	require.NoError(t, err)
	neg, err := f.build(t, "v", nil, []*idlist.List{ids})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3, 7}, visible(pos))
	for oid := range 10 {
		assert.NotEqual(t, pos.Contains(oid), neg.Contains(oid), "oid %d", oid)
	}

	_, err = f.build(t, "v", []*idlist.List{ids}, []*idlist.List{ids})
	assert.ErrorIs(t, err, dberr.ErrArgument)
}

func TestBuild_EmptyIntersection(t *testing.T) {
	f := newFixture(t, nil, tenOIDs(false))
	l, err := f.build(t, "v", []*idlist.List{idlist.NewNumeric(idlist.GI, 12345)}, nil)
	require.NoError(t, err)
	assert.Zero(t, l.Total())
	oid := 0
	assert.False(t, l.CheckOrFindOID(&oid, l.NumOIDs()))
}

func TestBuild_AliasFilters(t *testing.T) {
	second := tenOIDs(false)
	second.Base = "w"
	f := newFixture(t, map[string][]byte{
		"gis.txt":   []byte("gi|4\ngi|5\n6\n"),
		"mask.bin":  idlist.EncodeOIDMask(10, []int{1, 2, 3}),
		"acc.txt":   []byte("NP_7\n"),
		"range.pal": []byte("DBLIST v\nFIRST_OID 2\nLAST_OID 4\n"),
		"gis.pal":   []byte("DBLIST v\nGILIST gis.txt\n"),
		"neg.pal":   []byte("DBLIST v\nNEGATIVE_GILIST gis.txt\nMEMB_BIT 1\n"),
		"mask.pal":  []byte("DBLIST range\nOIDLIST mask.bin\n"),
		"seqid.pal": []byte("DBLIST w\nSEQIDLIST acc.txt\n"),
		"tax.txt":   []byte("101\n"),
		"tax.pal":   []byte("DBLIST v\nTAXIDLIST tax.txt\n"),
	}, tenOIDs(false), second)

	tests := []struct {
		names string
		want  []int
	}{
		{"range", []int{1, 2, 3}},
		{"gis", []int{2, 3, 4}},
		{"neg", []int{0, 6, 8}},
		{"mask", []int{1, 2, 3}},
		{"seqid", []int{17}},
		{"tax", []int{1, 3, 5, 7, 9}},
		{"range seqid", []int{1, 2, 3, 17}},
		{"range gis", []int{1, 2, 3, 4}},
		{"v seqid", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 17}},
	}
	for _, tt := range tests {
		t.Run(tt.names, func(t *testing.T) {
			l, err := f.build(t, tt.names, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, visible(l))
		})
	}
}

func TestCheckOrFindOID(t *testing.T) {
	l := oidlist.NewBitmap(20, roaring.BitmapOf(2, 5, 6, 15, 25))

	oid := 0
	require.True(t, l.CheckOrFindOID(&oid, 20))
	assert.Equal(t, 2, oid)

	// Idempotent on a visible OID.
	require.True(t, l.CheckOrFindOID(&oid, 20))
	assert.Equal(t, 2, oid)

	oid = 7
	require.True(t, l.CheckOrFindOID(&oid, 20))
	assert.Equal(t, 15, oid)

	oid = 7
	assert.False(t, l.CheckOrFindOID(&oid, 15), "end bound is exclusive")

	oid = 16
	assert.False(t, l.CheckOrFindOID(&oid, 100), "bits past NumOIDs are dropped")

	assert.Equal(t, 4, l.Total())
	assert.Equal(t, 2, l.Count(3, 7))

	next, ok := l.Next(3, 20)
	assert.True(t, ok)
	assert.Equal(t, 5, next)

	var seen []int
	l.ForEach(0, 20, func(oid int) bool {
		seen = append(seen, oid)
		return len(seen) < 2
	})
	assert.Equal(t, []int{2, 5}, seen)
}

func TestLazy(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	fail := true
	z := oidlist.NewLazy(&mu, func(context.Context) (*oidlist.List, error) {
		calls++
		if fail {
			return nil, errors.New("boom")
		}
		return oidlist.NewTrivial(3), nil
	})
	assert.Equal(t, oidlist.NotBuilt, z.State())

	_, err := z.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, oidlist.NotBuilt, z.State())
	assert.Nil(t, z.Peek())

	fail = false
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := z.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 3, l.NumOIDs())
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, calls)
	assert.Equal(t, oidlist.Trivial, z.State())
}
