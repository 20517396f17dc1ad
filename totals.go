package seqdb

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	totalsDirect = "direct"
	totalsScan   = "scan"
	totalsExact  = "exact"
)

// totals are the fast estimates computed at open over the iteration range
// given to Open.
type totals struct {
	mode   string
	rng    oidRange
	seqs   int
	length uint64
}

type lengthStats struct {
	seqs   int
	length uint64
	maxLen int
	minLen int
}

func (s *lengthStats) add(n int) {
	if s.seqs == 0 || n < s.minLen {
		s.minLen = n
	}
	s.maxLen = max(s.maxLen, n)
	s.seqs++
	s.length += uint64(n)
}

func (s *lengthStats) merge(o lengthStats) {
	if o.seqs == 0 {
		return
	}
	if s.seqs == 0 || o.minLen < s.minLen {
		s.minLen = o.minLen
	}
	s.maxLen = max(s.maxLen, o.maxLen)
	s.seqs += o.seqs
	s.length += o.length
}

// computeTotals sums declared per-volume totals when nothing narrows the
// database, and scans the visible OIDs with approximate lengths otherwise.
func (db *DB) computeTotals(ctx context.Context) error {
	start := time.Now()
	r := *db.rng.Load()
	db.totals.rng = r

	full := r.begin == 0 && r.end == db.vols.NumOIDs()
	if full && len(db.opts.positive) == 0 && len(db.opts.negative) == 0 {
		if n, length, ok := db.tree.DeclaredTotals(volumeInfo{db.vols}); ok {
			db.totals.mode = totalsDirect
			db.totals.seqs = int(n)
			db.totals.length = length
			db.logger.LogTotalsScan(ctx, totalsDirect, int(n), length, time.Since(start), nil)
			return nil
		}
	}

	s, err := db.scan(ctx, r, false)
	if err != nil {
		db.logger.LogTotalsScan(ctx, totalsScan, 0, 0, time.Since(start), err)
		return err
	}
	db.totals.mode = totalsScan
	db.totals.seqs = s.seqs
	db.totals.length = s.length
	db.logger.LogTotalsScan(ctx, totalsScan, s.seqs, s.length, time.Since(start), nil)
	return nil
}

// scan walks the visible OIDs of r, one goroutine per volume, bounded by
// the controller's background slots.
func (db *DB) scan(ctx context.Context, r oidRange, exact bool) (lengthStats, error) {
	start := time.Now()
	list := db.visible()
	parts := make([]lengthStats, db.vols.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.rc.MaxBackgroundWorkers())
	for i := range db.vols.Len() {
		vstart := db.vols.Start(i)
		begin, end := max(r.begin, vstart), min(r.end, db.vols.End(i))
		if begin >= end {
			continue
		}
		v := db.vols.Volume(i)
		g.Go(func() error {
			if err := db.rc.AcquireBackground(gctx); err != nil {
				return err
			}
			defer db.rc.ReleaseBackground()

			part := &parts[i]
			for oid := range list.All(begin, end) {
				if part.seqs&0xfff == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				var (
					n   int
					err error
				)
				if exact {
					n, err = v.Length(gctx, oid-vstart)
				} else {
					n, err = v.LengthApprox(oid - vstart)
				}
				if err != nil {
					return err
				}
				part.add(n)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return lengthStats{}, err
	}

	var out lengthStats
	for _, p := range parts {
		out.merge(p)
	}
	db.metrics.RecordScan(out.seqs, time.Since(start))
	return out, nil
}

// exactStats scans the totals range with exact lengths once, under the
// atlas lock.
func (db *DB) exactStats(ctx context.Context) (lengthStats, error) {
	if s := db.exact.Load(); s != nil {
		return *s, nil
	}
	db.atlas.Lock()
	defer db.atlas.Unlock()
	if s := db.exact.Load(); s != nil {
		return *s, nil
	}

	start := time.Now()
	s, err := db.scan(ctx, db.totals.rng, true)
	db.logger.LogTotalsScan(ctx, totalsExact, s.seqs, s.length, time.Since(start), err)
	if err != nil {
		return lengthStats{}, err
	}
	db.exact.Store(&s)
	return s, nil
}

// unfiltered reports whether the totals cover every OID of every volume.
func (db *DB) unfiltered() bool {
	r := db.totals.rng
	return db.visible().IsTrivial() && r.begin == 0 && r.end == db.vols.NumOIDs()
}

// NumSeqs returns the number of visible sequences in the iteration range
// given to Open.
func (db *DB) NumSeqs() int { return db.totals.seqs }

// TotalLength returns the total residue count of the visible sequences.
// For filtered nucleotide databases it is an upper bound; see
// ExactTotalLength.
func (db *DB) TotalLength() uint64 { return db.totals.length }

// TotalsMode reports how the totals were computed: "direct" from volume
// and alias headers, or "scan" over the visible OIDs.
func (db *DB) TotalsMode() string { return db.totals.mode }

// ExactTotalLength returns the exact total residue count of the visible
// sequences. The first call on a filtered database scans every sequence.
func (db *DB) ExactTotalLength(ctx context.Context) (uint64, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	if db.totals.mode == totalsDirect {
		return db.totals.length, nil
	}
	s, err := db.exactStats(ctx)
	if err != nil {
		return 0, err
	}
	return s.length, nil
}

// MaxLength returns the length of the longest visible sequence.
func (db *DB) MaxLength(ctx context.Context) (int, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	if db.unfiltered() {
		return db.vols.MaxLength(), nil
	}
	s, err := db.exactStats(ctx)
	if err != nil {
		return 0, err
	}
	return s.maxLen, nil
}

// MinLength returns the length of the shortest visible sequence.
func (db *DB) MinLength(ctx context.Context) (int, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	if !db.unfiltered() {
		s, err := db.exactStats(ctx)
		if err != nil {
			return 0, err
		}
		return s.minLen, nil
	}
	minLen, found := 0, false
	for i := range db.vols.Len() {
		v := db.vols.Volume(i)
		if v.NumOIDs() == 0 {
			continue
		}
		n, err := v.MinLength(ctx)
		if err != nil {
			return 0, err
		}
		if !found || n < minLen {
			minLen, found = n, true
		}
	}
	return minLen, nil
}
