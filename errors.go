package seqdb

import (
	"github.com/hupe1980/seqdb/internal/dberr"
	"github.com/hupe1980/seqdb/internal/idindex"
)

// Errors returned by the database. Match them with errors.Is; the typed
// errors below also match with errors.As.
var (
	// ErrArgument reports a bad OID, bad range, malformed name or conflicting options.
	ErrArgument = dberr.ErrArgument
	// ErrOIDNotFound reports an OID outside [0, NumOIDs). It wraps ErrArgument.
	ErrOIDNotFound = dberr.ErrOIDNotFound
	// ErrFileAccess reports a volume or alias file that cannot be opened, mapped or read.
	ErrFileAccess = dberr.ErrFileAccess
	// ErrUsage reports a violation of an API contract.
	ErrUsage = dberr.ErrUsage
	// ErrSequenceNotReturned is returned by Worker.GetSequence when the
	// previous sequence was not returned. It wraps ErrUsage.
	ErrSequenceNotReturned = dberr.ErrSequenceNotReturned
	// ErrClosed is returned by operations on a closed database.
	ErrClosed = dberr.ErrClosed
	// ErrCorrupt reports a database file whose contents do not parse.
	ErrCorrupt = dberr.ErrCorrupt
)

// FileAccessError carries the path and operation of a failed file access.
type FileAccessError = dberr.FileAccessError

// OIDRangeError reports an OID outside the database.
type OIDRangeError = dberr.OIDRangeError

// NotFound marks unresolved entries in batch lookups.
const NotFound = idindex.NotFound
