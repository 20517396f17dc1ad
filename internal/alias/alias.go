package alias

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/hupe1980/seqdb/internal/atlas"
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/idlist"
	"github.com/hupe1980/seqdb/internal/volume"
)

// Node is one alias file, or the synthetic root joining the names given to
// Resolve.
type Node struct {
	// Name is the alias file name; empty for the root.
	Name    string
	Title   string
	Date    string
	Filters []Filter
	// Volumes are the physical volume base names listed directly.
	Volumes  []string
	Children []*Node
	// NSeq and Length are declared totals; zero when absent.
	NSeq   uint64
	Length uint64
}

// Tree is the resolved database.
type Tree struct {
	Root *Node
	// Volumes are the distinct volume base names in first occurrence order.
	Volumes []string
	// AliasFiles are the distinct alias files in first occurrence order.
	AliasFiles []string
	// NeedsScan is set when a filter narrows the visible set or a volume is
	// reachable more than once, so per-volume header totals cannot be summed.
	NeedsScan bool
}

// Options configures Resolve.
type Options struct {
	// SearchPath lists directories tried after the alias file's own
	// directory (or the store root for top-level names).
	SearchPath []string
	Logger     *slog.Logger
}

type resolver struct {
	a       *atlas.Atlas
	seqType volume.SeqType
	opts    Options
	stack   []string
	tree    *Tree
	seenVol map[string]bool
	seenAl  map[string]bool
}

// Resolve parses names, a space separated list of database names, into a
// tree. Double quotes group names containing spaces.
func Resolve(ctx context.Context, a *atlas.Atlas, names string, seqType volume.SeqType, opts Options) (*Tree, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	list, err := SplitNames(names)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: empty database name", dberr.ErrArgument)
	}

	r := &resolver{
		a:       a,
		seqType: seqType,
		opts:    opts,
		tree:    &Tree{},
		seenVol: make(map[string]bool),
		seenAl:  make(map[string]bool),
	}
	root := &Node{}
	if err := r.addChildren(ctx, root, "", list); err != nil {
		return nil, err
	}
	r.tree.Root = root
	if hasFilters(root) {
		r.tree.NeedsScan = true
	}
	return r.tree, nil
}

// SplitNames splits a space separated name list, honoring double quotes.
func SplitNames(s string) ([]string, error) {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
		inName bool
	)
	for _, c := range s {
		switch {
		case c == '"':
			quoted = !quoted
			inName = true
		case !quoted && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			if inName {
				out = append(out, cur.String())
				cur.Reset()
				inName = false
			}
		default:
			cur.WriteRune(c)
			inName = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unbalanced quote in %q", dberr.ErrArgument, s)
	}
	if inName && cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out, nil
}

func (r *resolver) aliasExt(base string) string {
	return base + "." + r.seqType.Letter() + "al"
}

func (r *resolver) candidates(dir, name string) []string {
	if path.IsAbs(name) {
		return []string{path.Clean(name)}
	}
	var out []string
	if dir != "" {
		out = append(out, path.Join(dir, name))
	} else {
		out = append(out, path.Clean(name))
	}
	for _, p := range r.opts.SearchPath {
		if p != "" {
			out = append(out, path.Join(p, name))
		}
	}
	return out
}

func (r *resolver) exists(ctx context.Context, name string) (bool, error) {
	return r.a.Exists(ctx, name)
}

func (r *resolver) onStack(name string) bool {
	for _, s := range r.stack {
		if s == name {
			return true
		}
	}
	return false
}

// addChildren resolves each name relative to dir and attaches it to n.
func (r *resolver) addChildren(ctx context.Context, n *Node, dir string, names []string) error {
	for _, name := range names {
		resolved := false
		for _, base := range r.candidates(dir, name) {
			aliasFile := r.aliasExt(base)
			isAlias, err := r.exists(ctx, aliasFile)
			if err != nil {
				return err
			}
			isVol, err := r.exists(ctx, volume.Ext(base, r.seqType, "in"))
			if err != nil {
				return err
			}

			if isAlias && r.onStack(aliasFile) {
				// An alias file may list the volume sharing its base name.
				if !isVol {
					return dberr.FileAccess("resolve", aliasFile, fmt.Errorf("alias cycle through %s", strings.Join(r.stack, " -> ")))
				}
				isAlias = false
			}

			switch {
			case isAlias:
				child, err := r.parseFile(ctx, aliasFile)
				if err != nil {
					return err
				}
				n.Children = append(n.Children, child)
			case isVol:
				n.Volumes = append(n.Volumes, base)
				if r.seenVol[base] {
					r.tree.NeedsScan = true
				} else {
					r.seenVol[base] = true
					r.tree.Volumes = append(r.tree.Volumes, base)
				}
			default:
				continue
			}
			resolved = true
			break
		}
		if !resolved {
			return dberr.FileAccess("resolve", name, fmt.Errorf("no %s database or alias named %q", r.seqType, name))
		}
	}
	return nil
}

func (r *resolver) parseFile(ctx context.Context, name string) (*Node, error) {
	data, err := r.a.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	r.stack = append(r.stack, name)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	if !r.seenAl[name] {
		r.seenAl[name] = true
		r.tree.AliasFiles = append(r.tree.AliasFiles, name)
	}

	n := &Node{Name: name}
	dir := path.Dir(name)
	if dir == "." {
		dir = ""
	}

	var dblist []string
	haveDBList := false
	first, last := -1, -1

	sc := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			key, value = line[:i], strings.TrimSpace(line[i+1:])
		}
		bad := func(err error) error {
			return fmt.Errorf("%w: %s:%d: %s %q: %v", dberr.ErrArgument, name, lineNo, key, value, err)
		}

		switch strings.ToUpper(key) {
		case "TITLE":
			n.Title = value
		case "DATE":
			n.Date = value
		case "DBLIST":
			names, err := SplitNames(value)
			if err != nil {
				return nil, bad(err)
			}
			dblist = append(dblist, names...)
			haveDBList = true
		case "GILIST", "TILIST", "SEQIDLIST", "TAXIDLIST",
			"NEGATIVE_GILIST", "NEGATIVE_TILIST", "NEGATIVE_SEQIDLIST", "NEGATIVE_TAXIDLIST":
			if strings.EqualFold(value, "none") || value == "" {
				continue
			}
			f, err := r.listFilter(ctx, strings.ToUpper(key), dir, value)
			if err != nil {
				return nil, err
			}
			n.Filters = append(n.Filters, f)
		case "OIDLIST":
			if strings.EqualFold(value, "none") || value == "" {
				continue
			}
			file, err := r.findFile(ctx, dir, value)
			if err != nil {
				return nil, err
			}
			n.Filters = append(n.Filters, OIDMask{File: file})
		case "FIRST_OID":
			v, err := strconv.Atoi(value)
			if err != nil || v < 1 {
				return nil, bad(err)
			}
			first = v
		case "LAST_OID":
			v, err := strconv.Atoi(value)
			if err != nil || v < 1 {
				return nil, bad(err)
			}
			last = v
		case "MEMB_BIT":
			v, err := strconv.Atoi(value)
			if err != nil || v < 0 {
				return nil, bad(err)
			}
			n.Filters = append(n.Filters, MembershipBit{Bit: v})
		case "NSEQ":
			v, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, bad(err)
			}
			n.NSeq = v
		case "LENGTH":
			v, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, bad(err)
			}
			n.Length = v
		default:
			r.opts.Logger.Debug("alias: ignoring key", "file", name, "key", key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, dberr.FileAccess("read", name, err)
	}

	if first >= 0 || last >= 0 {
		rng := OIDRange{Begin: 0, End: int(^uint(0) >> 1)}
		if first >= 0 {
			rng.Begin = first - 1
		}
		if last >= 0 {
			rng.End = last
		}
		if rng.End < rng.Begin {
			return nil, fmt.Errorf("%w: %s: LAST_OID %d before FIRST_OID %d", dberr.ErrArgument, name, last, first)
		}
		n.Filters = append(n.Filters, rng)
	}

	if !haveDBList || len(dblist) == 0 {
		return nil, fmt.Errorf("%w: %s: missing DBLIST", dberr.ErrArgument, name)
	}
	if err := r.addChildren(ctx, n, dir, dblist); err != nil {
		return nil, err
	}
	return n, nil
}

var listKinds = map[string]idlist.Kind{
	"GILIST":    idlist.GI,
	"TILIST":    idlist.TI,
	"SEQIDLIST": idlist.SeqID,
	"TAXIDLIST": idlist.TaxID,
}

func (r *resolver) listFilter(ctx context.Context, key, dir, value string) (Filter, error) {
	neg := strings.HasPrefix(key, "NEGATIVE_")
	kind := listKinds[strings.TrimPrefix(key, "NEGATIVE_")]
	file, err := r.findFile(ctx, dir, value)
	if err != nil {
		return nil, err
	}
	return IDList{Kind: kind, Negative: neg, File: file}, nil
}

// findFile resolves a file referenced from an alias file.
func (r *resolver) findFile(ctx context.Context, dir, name string) (string, error) {
	for _, c := range r.candidates(dir, name) {
		ok, err := r.exists(ctx, c)
		if err != nil {
			return "", err
		}
		if ok {
			return c, nil
		}
	}
	return "", dberr.FileAccess("resolve", name, fmt.Errorf("list file not found"))
}

func hasFilters(n *Node) bool {
	if len(n.Filters) > 0 {
		return true
	}
	for _, c := range n.Children {
		if hasFilters(c) {
			return true
		}
	}
	return false
}
