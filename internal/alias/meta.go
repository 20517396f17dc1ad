package alias

import (
	"strings"
	"time"
)

// VolumeInfo supplies per-volume metadata to the tree aggregations.
type VolumeInfo interface {
	VolumeTitle(base string) string
	VolumeDate(base string) string
	VolumeTotals(base string) (n, length uint64)
}

// Title returns the database title: an alias TITLE wins, otherwise the
// titles of the children are joined by "; ".
func (t *Tree) Title(info VolumeInfo) string {
	return nodeTitle(t.Root, info)
}

func nodeTitle(n *Node, info VolumeInfo) string {
	if n.Title != "" {
		return n.Title
	}
	var parts []string
	for _, c := range n.Children {
		if s := nodeTitle(c, info); s != "" {
			parts = append(parts, s)
		}
	}
	for _, v := range n.Volumes {
		if s := info.VolumeTitle(v); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; ")
}

var dateLayouts = []string{
	"Jan 2, 2006  3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	time.RFC3339,
	"2006-01-02",
}

// ParseDate parses the date formats found in index and alias files.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Date returns the most recent date of all volumes and alias files.
// Unparseable dates are used only when nothing parses.
func (t *Tree) Date(info VolumeInfo) string {
	var (
		best     string
		bestTime time.Time
		parsed   bool
	)
	consider := func(s string) {
		if s == "" {
			return
		}
		ts, ok := ParseDate(s)
		switch {
		case ok && (!parsed || ts.After(bestTime)):
			best, bestTime, parsed = s, ts, true
		case !ok && !parsed && best == "":
			best = s
		}
	}

	var walk func(n *Node)
	walk = func(n *Node) {
		consider(n.Date)
		for _, v := range n.Volumes {
			consider(info.VolumeDate(v))
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return best
}

// DeclaredTotals sums per-volume header totals, replacing a subtree by the
// NSEQ and LENGTH of its alias file where both are declared. ok is false
// when a subtree filters without declaring totals, or when a volume would be
// counted twice.
func (t *Tree) DeclaredTotals(info VolumeInfo) (n, length uint64, ok bool) {
	seen := make(map[string]bool)
	var walk func(node *Node) bool
	walk = func(node *Node) bool {
		if node.NSeq > 0 && node.Length > 0 {
			for _, v := range volumesBelow(node) {
				if seen[v] {
					return false
				}
				seen[v] = true
			}
			n += node.NSeq
			length += node.Length
			return true
		}
		if len(node.Filters) > 0 {
			return false
		}
		for _, v := range node.Volumes {
			if seen[v] {
				return false
			}
			seen[v] = true
			vn, vl := info.VolumeTotals(v)
			n += vn
			length += vl
		}
		for _, c := range node.Children {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	if !walk(t.Root) {
		return 0, 0, false
	}
	return n, length, true
}

func volumesBelow(n *Node) []string {
	out := append([]string(nil), n.Volumes...)
	for _, c := range n.Children {
		out = append(out, volumesBelow(c)...)
	}
	return out
}
