// Package remap translates volume-local masking algorithm ids into ids
// that are unique across a database.
//
// Volumes number their algorithms independently. Identical descriptions
// share one global id; a new description keeps its local id when that id
// is still free, and otherwise takes the smallest free id.
package remap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/seqdb/internal/dberr"
)

// Remapper maps (volume, local id) pairs to global ids.
type Remapper struct {
	byDesc   map[string]int
	descs    map[int]string
	toGlobal map[int]map[int]int
	toLocal  map[int]map[int]int
}

// New returns an empty remapper.
func New() *Remapper {
	return &Remapper{
		byDesc:   make(map[string]int),
		descs:    make(map[int]string),
		toGlobal: make(map[int]map[int]int),
		toLocal:  make(map[int]map[int]int),
	}
}

// Add registers local id of vol with desc and returns its global id.
// Registering the same local id of a volume twice with a different
// description is an error.
func (r *Remapper) Add(vol, local int, desc string) (int, error) {
	if g, ok := r.toGlobal[vol][local]; ok {
		if r.descs[g] != desc {
			return 0, fmt.Errorf("%w: volume %d algorithm %d described as %q and %q", dberr.ErrCorrupt, vol, local, r.descs[g], desc)
		}
		return g, nil
	}

	g, ok := r.byDesc[desc]
	if !ok {
		g = local
		if _, taken := r.descs[g]; taken || g < 0 {
			g = r.free()
		}
		r.byDesc[desc] = g
		r.descs[g] = desc
	}

	if r.toGlobal[vol] == nil {
		r.toGlobal[vol] = make(map[int]int)
		r.toLocal[vol] = make(map[int]int)
	}
	r.toGlobal[vol][local] = g
	r.toLocal[vol][g] = local
	return g, nil
}

func (r *Remapper) free() int {
	for g := 0; ; g++ {
		if _, taken := r.descs[g]; !taken {
			return g
		}
	}
}

// Global returns the global id of local id of vol.
func (r *Remapper) Global(vol, local int) (int, bool) {
	g, ok := r.toGlobal[vol][local]
	return g, ok
}

// Local returns the local id vol uses for global id g.
func (r *Remapper) Local(vol, g int) (int, bool) {
	l, ok := r.toLocal[vol][g]
	return l, ok
}

// IDs returns all global ids in increasing order.
func (r *Remapper) IDs() []int {
	ids := make([]int, 0, len(r.descs))
	for g := range r.descs {
		ids = append(ids, g)
	}
	sort.Ints(ids)
	return ids
}

// Description returns the description of global id g.
func (r *Remapper) Description(g int) (string, bool) {
	d, ok := r.descs[g]
	return d, ok
}

// SplitDescription splits "program:options" into its parts.
func SplitDescription(desc string) (program, options string) {
	program, options, _ = strings.Cut(desc, ":")
	return program, options
}
