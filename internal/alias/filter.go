package alias

import (
	"fmt"

	"github.com/hupe1980/seqdb/internal/idlist"
)

// Filter narrows the OIDs visible below an alias node. The set of
// implementations is closed: OIDRange, IDList, MembershipBit and OIDMask.
type Filter interface {
	filter()
	String() string
}

// OIDRange keeps local OIDs in [Begin, End) of every volume below the node.
type OIDRange struct {
	Begin, End int
}

// IDList keeps (or, when Negative, drops) OIDs whose identifiers appear in
// the list file.
type IDList struct {
	Kind     idlist.Kind
	Negative bool
	File     string
}

// MembershipBit keeps OIDs with at least one defline carrying Bit.
type MembershipBit struct {
	Bit int
}

// OIDMask keeps the local OIDs set in a binary OID mask file.
type OIDMask struct {
	File string
}

func (OIDRange) filter()      {}
func (IDList) filter()        {}
func (MembershipBit) filter() {}
func (OIDMask) filter()       {}

func (f OIDRange) String() string { return fmt.Sprintf("oids[%d,%d)", f.Begin, f.End) }

func (f IDList) String() string {
	if f.Negative {
		return fmt.Sprintf("-%s(%s)", f.Kind, f.File)
	}
	return fmt.Sprintf("%s(%s)", f.Kind, f.File)
}

func (f MembershipBit) String() string { return fmt.Sprintf("memb(%d)", f.Bit) }

func (f OIDMask) String() string { return fmt.Sprintf("oidmask(%s)", f.File) }
