package oidlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/seqdb/internal/alias"
	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/idindex"
	"github.com/hupe1980/seqdb/internal/idlist"
	"github.com/hupe1980/seqdb/internal/volset"
)

// Config holds the inputs of Build.
type Config struct {
	Atlas   *atlas.Atlas
	Tree    *alias.Tree
	Volumes *volset.Set
	Index   *idindex.Index
	// Positive user lists restrict the visible set; Negative lists exclude
	// from it. Setting both is an error.
	Positive []*idlist.List
	Negative []*idlist.List
	Logger   *slog.Logger
}

type builder struct {
	Config
	lists map[alias.IDList]*idlist.List
	masks map[string]*roaring.Bitmap
}

// Build computes the visible OID set. An OID of a volume is visible if some
// occurrence of the volume in the tree passes every filter on its path from
// the root; user lists are applied to the result.
func Build(ctx context.Context, cfg Config) (*List, error) {
	if len(cfg.Positive) > 0 && len(cfg.Negative) > 0 {
		return nil, fmt.Errorf("%w: positive and negative id lists are mutually exclusive", dberr.ErrArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	n := cfg.Volumes.NumOIDs()
	if !treeFilters(cfg.Tree.Root) && len(cfg.Positive) == 0 && len(cfg.Negative) == 0 {
		return NewTrivial(n), nil
	}

	start := time.Now()
	b := &builder{
		Config: cfg,
		lists:  make(map[alias.IDList]*idlist.List),
		masks:  make(map[string]*roaring.Bitmap),
	}
	bm := roaring.New()
	if err := b.walk(ctx, cfg.Tree.Root, nil, bm); err != nil {
		return nil, err
	}

	for _, l := range cfg.Positive {
		oids, err := cfg.Index.ListOIDs(ctx, l)
		if err != nil {
			return nil, err
		}
		bm.And(oids)
	}
	for _, l := range cfg.Negative {
		oids, err := cfg.Index.ListOIDs(ctx, l)
		if err != nil {
			return nil, err
		}
		bm.AndNot(oids)
	}

	list := NewBitmap(n, bm)
	cfg.Logger.Debug("filter tree applied", "id_lists", len(b.lists), "oid_masks", len(b.masks), "user_lists", len(cfg.Positive)+len(cfg.Negative), "duration", time.Since(start))
	return list, nil
}

func treeFilters(n *alias.Node) bool {
	if len(n.Filters) > 0 {
		return true
	}
	for _, c := range n.Children {
		if treeFilters(c) {
			return true
		}
	}
	return false
}

func (b *builder) walk(ctx context.Context, n *alias.Node, path []alias.Filter, out *roaring.Bitmap) error {
	path = append(path[:len(path):len(path)], n.Filters...)
	for _, base := range n.Volumes {
		i, ok := b.Volumes.Index(base)
		if !ok {
			return fmt.Errorf("%w: volume %s not open", dberr.ErrArgument, base)
		}
		local, err := b.volume(ctx, i, path)
		if err != nil {
			return err
		}
		out.Or(roaring.AddOffset(local, uint32(b.Volumes.Start(i))))
	}
	for _, c := range n.Children {
		if err := b.walk(ctx, c, path, out); err != nil {
			return err
		}
	}
	return nil
}

// volume returns the local OIDs of volume i passing every filter.
func (b *builder) volume(ctx context.Context, i int, filters []alias.Filter) (*roaring.Bitmap, error) {
	n := b.Volumes.Volume(i).NumOIDs()
	set := roaring.New()
	set.AddRange(0, uint64(n))

	for _, f := range filters {
		if set.IsEmpty() {
			break
		}
		switch f := f.(type) {
		case alias.OIDRange:
			set.RemoveRange(0, uint64(max(f.Begin, 0)))
			if f.End < n {
				set.RemoveRange(uint64(max(f.End, 0)), uint64(n))
			}
		case alias.IDList:
			list, err := b.list(ctx, f)
			if err != nil {
				return nil, err
			}
			oids, err := b.Index.VolumeOIDs(ctx, i, list)
			if err != nil {
				return nil, err
			}
			if f.Negative {
				set.AndNot(oids)
			} else {
				set.And(oids)
			}
		case alias.MembershipBit:
			oids, err := b.Index.MembershipOIDs(ctx, i, f.Bit)
			if err != nil {
				return nil, err
			}
			set.And(oids)
		case alias.OIDMask:
			mask, err := b.mask(ctx, f.File)
			if err != nil {
				return nil, err
			}
			set.And(mask)
		default:
			panic(fmt.Sprintf("oidlist: unhandled filter %T", f))
		}
	}
	return set, nil
}

func (b *builder) list(ctx context.Context, f alias.IDList) (*idlist.List, error) {
	key := alias.IDList{Kind: f.Kind, File: f.File}
	if l, ok := b.lists[key]; ok {
		return l, nil
	}
	data, err := b.Atlas.ReadFile(ctx, f.File)
	if err != nil {
		return nil, err
	}
	l, err := idlist.Parse(f.Kind, f.File, data)
	if err != nil {
		return nil, err
	}
	b.lists[key] = l
	return l, nil
}

func (b *builder) mask(ctx context.Context, file string) (*roaring.Bitmap, error) {
	if m, ok := b.masks[file]; ok {
		return m, nil
	}
	data, err := b.Atlas.ReadFile(ctx, file)
	if err != nil {
		return nil, err
	}
	m, err := idlist.ParseOIDMask(file, data)
	if err != nil {
		return nil, err
	}
	b.masks[file] = m
	return m, nil
}
