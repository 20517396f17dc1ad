// Package volset holds the ordered volumes of an open database and maps
// global OIDs to (volume, local OID).
package volset

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/volume"
)

// Set is fixed after construction.
type Set struct {
	vols    []*volume.Volume
	starts  []int
	byBase  map[string]int
	numOIDs int
	total   uint64
	maxLen  int
}

// New builds a set over vols in order.
func New(vols []*volume.Volume) *Set {
	s := &Set{
		vols:   vols,
		starts: make([]int, len(vols)+1),
		byBase: make(map[string]int, len(vols)),
	}
	for i, v := range vols {
		s.starts[i] = s.numOIDs
		s.numOIDs += v.NumOIDs()
		s.total += v.TotalLength()
		s.maxLen = max(s.maxLen, v.MaxLength())
		s.byBase[v.Base()] = i
	}
	s.starts[len(vols)] = s.numOIDs
	return s
}

// Open opens the named volumes with at most limit concurrent opens and
// returns them as a set. On failure every opened volume is closed.
func Open(ctx context.Context, a *atlas.Atlas, bases []string, seqType volume.SeqType, opts volume.Options, limit int) (*Set, error) {
	vols := make([]*volume.Volume, len(bases))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, base := range bases {
		g.Go(func() error {
			v, err := volume.Open(gctx, a, base, seqType, opts)
			if err != nil {
				return err
			}
			vols[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, v := range vols {
			if v != nil {
				_ = v.Close()
			}
		}
		return nil, err
	}
	return New(vols), nil
}

// FindVol maps a global OID to its volume, local OID and volume index.
func (s *Set) FindVol(oid int) (*volume.Volume, int, int, bool) {
	if oid < 0 || oid >= s.numOIDs {
		return nil, 0, 0, false
	}
	for i := range s.vols {
		if oid < s.starts[i+1] {
			return s.vols[i], oid - s.starts[i], i, true
		}
	}
	return nil, 0, 0, false
}

// NumOIDs returns the OID count of all volumes.
func (s *Set) NumOIDs() int { return s.numOIDs }

// TotalLength sums the header totals of all volumes.
func (s *Set) TotalLength() uint64 { return s.total }

// MaxLength returns the largest header max length.
func (s *Set) MaxLength() int { return s.maxLen }

// Len returns the number of volumes.
func (s *Set) Len() int { return len(s.vols) }

// Volume returns volume i.
func (s *Set) Volume(i int) *volume.Volume { return s.vols[i] }

// Start returns the first global OID of volume i. Start(Len()) is NumOIDs.
func (s *Set) Start(i int) int { return s.starts[i] }

// End returns one past the last global OID of volume i.
func (s *Set) End(i int) int { return s.starts[i+1] }

// Index returns the position of the volume with the given base name.
func (s *Set) Index(base string) (int, bool) {
	i, ok := s.byBase[base]
	return i, ok
}

// Close closes all volumes.
func (s *Set) Close() error {
	var errs []error
	for _, v := range s.vols {
		if err := v.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
