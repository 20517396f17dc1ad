package volume

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hupe1980/seqdb/internal/dberr"
)

// IDLookup resolves key under kind to local OIDs. Numeric kinds and taxids
// take a decimal string.
func (v *Volume) IDLookup(ctx context.Context, kind IDKind, key string) ([]int, error) {
	switch kind {
	case KindGI, KindPIG, KindTI:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", dberr.ErrArgument, kind, key)
		}
		return v.LookupNumeric(ctx, kind, n)
	case KindAccession:
		return v.LookupAccession(ctx, key)
	case KindTaxID:
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: taxid %q", dberr.ErrArgument, key)
		}
		return v.LookupTaxID(ctx, n)
	default:
		return nil, fmt.Errorf("%w: id kind %d", dberr.ErrArgument, kind)
	}
}
