package atlas

import (
	"sync/atomic"

	"github.com/hupe1980/seqdb/internal/mmap"
)

// Lease pins a byte range of one file. Bytes is valid until Release.
type Lease struct {
	a        *Atlas
	r        *region
	data     []byte
	win      *mmap.Region
	released atomic.Bool
}

// Bytes returns the leased range, or nil once released.
func (l *Lease) Bytes() []byte {
	if l == nil || l.released.Load() {
		return nil
	}
	if l.r != nil && l.r.dead.Load() {
		return nil
	}
	return l.data
}

// Len returns the length of the leased range.
func (l *Lease) Len() int {
	if l == nil {
		return 0
	}
	return len(l.data)
}

// Advise passes an access hint for the leased range to the kernel. It is a
// no-op for leases that are not memory mapped.
func (l *Lease) Advise(h mmap.Hint) error {
	if l == nil || l.win == nil || l.Bytes() == nil {
		return nil
	}
	return l.win.Advise(h)
}

// Release returns the lease. Releasing twice is a no-op.
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	if l.r != nil {
		l.a.release(l.r)
	}
}
