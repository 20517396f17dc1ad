package defline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant of a SeqID.
type Kind uint8

const (
	// GI is a numeric GenInfo identifier ("gi|N").
	GI Kind = iota + 1
	// PIG is a numeric protein identity group ("pig|N").
	PIG
	// TI is a numeric trace identifier ("ti|N").
	TI
	// Accession is a text identifier with a database tag ("ref|NP_000001.2|").
	Accession
	// Local is a database-local name ("lcl|name").
	Local
	// General is a name qualified by an arbitrary database ("gnl|db|tag").
	General
)

func (k Kind) String() string {
	switch k {
	case GI:
		return "gi"
	case PIG:
		return "pig"
	case TI:
		return "ti"
	case Accession:
		return "accession"
	case Local:
		return "lcl"
	case General:
		return "gnl"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ErrSeqID is returned for identifiers that do not parse.
var ErrSeqID = errors.New("defline: malformed seq-id")

// textDBs are the tags of accession-style identifiers.
var textDBs = map[string]bool{
	"ref": true, "gb": true, "emb": true, "dbj": true, "sp": true, "tr": true,
	"pdb": true, "pir": true, "prf": true, "tpg": true, "tpe": true, "tpd": true,
	"gpp": true, "nat": true, "pat": true,
}

// SeqID is one identifier of a sequence.
type SeqID struct {
	Kind Kind
	// Num holds GI, PIG and TI values.
	Num int64
	// DB is the database tag for Accession and General ids.
	DB string
	// Accession without version.
	Accession string
	// Version is 0 when absent.
	Version int
	// Name is the locus name, local name or general tag.
	Name string
}

// Parse parses one FASTA-style identifier such as "gi|129295",
// "sp|P01013.1|OVAX_CHICK" or "gnl|ti|12".
func Parse(s string) (SeqID, error) {
	parts := strings.Split(strings.TrimSpace(s), "|")
	if len(parts) < 2 {
		return SeqID{}, fmt.Errorf("%w: %q", ErrSeqID, s)
	}
	tag := strings.ToLower(parts[0])

	switch tag {
	case "gi", "pig", "ti":
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n < 0 {
			return SeqID{}, fmt.Errorf("%w: %q", ErrSeqID, s)
		}
		k := map[string]Kind{"gi": GI, "pig": PIG, "ti": TI}[tag]
		return SeqID{Kind: k, Num: n}, nil
	case "lcl":
		return SeqID{Kind: Local, Name: parts[1]}, nil
	case "gnl":
		if len(parts) < 3 {
			return SeqID{}, fmt.Errorf("%w: %q", ErrSeqID, s)
		}
		return SeqID{Kind: General, DB: parts[1], Name: parts[2]}, nil
	}

	if !textDBs[tag] {
		return SeqID{}, fmt.Errorf("%w: unknown tag %q", ErrSeqID, parts[0])
	}
	id := SeqID{Kind: Accession, DB: tag}
	id.Accession, id.Version = SplitVersion(parts[1])
	if len(parts) > 2 {
		id.Name = parts[2]
	}
	if id.Accession == "" && id.Name == "" {
		return SeqID{}, fmt.Errorf("%w: %q", ErrSeqID, s)
	}
	return id, nil
}

// SplitVersion splits "NP_000001.2" into ("NP_000001", 2).
func SplitVersion(acc string) (string, int) {
	i := strings.LastIndexByte(acc, '.')
	if i < 0 {
		return acc, 0
	}
	v, err := strconv.Atoi(acc[i+1:])
	if err != nil || v < 0 {
		return acc, 0
	}
	return acc[:i], v
}

// VersionedAccession returns "ACC.V", or "ACC" when there is no version.
func (id SeqID) VersionedAccession() string {
	if id.Version == 0 {
		return id.Accession
	}
	return id.Accession + "." + strconv.Itoa(id.Version)
}

// String formats the id in FASTA style.
func (id SeqID) String() string {
	switch id.Kind {
	case GI, PIG, TI:
		return id.Kind.String() + "|" + strconv.FormatInt(id.Num, 10)
	case Local:
		return "lcl|" + id.Name
	case General:
		return "gnl|" + id.DB + "|" + id.Name
	case Accession:
		s := id.DB + "|" + id.VersionedAccession() + "|"
		return s + id.Name
	default:
		return ""
	}
}

// Keys returns the lower-cased strings under which an accession lookup
// should find this id: the accession with and without version, and the
// local or general name.
func (id SeqID) Keys() []string {
	switch id.Kind {
	case Accession:
		keys := []string{strings.ToLower(id.Accession)}
		if id.Version != 0 {
			keys = append(keys, strings.ToLower(id.VersionedAccession()))
		}
		if id.Name != "" {
			keys = append(keys, strings.ToLower(id.Name))
		}
		return keys
	case Local, General:
		return []string{strings.ToLower(id.Name)}
	default:
		return nil
	}
}
