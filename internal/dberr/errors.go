// Package dberr holds the error taxonomy shared by all database layers.
// The root package re-exports every value so callers match with errors.Is
// and errors.As against seqdb names.
package dberr

import (
	"errors"
	"fmt"
)

var (
	// ErrArgument reports a bad OID, bad range, malformed name or conflicting options.
	ErrArgument = errors.New("invalid argument")
	// ErrOIDNotFound reports an OID outside the valid range.
	ErrOIDNotFound = fmt.Errorf("%w: oid not found", ErrArgument)
	// ErrFileAccess reports a database file that cannot be opened, mapped or read.
	ErrFileAccess = errors.New("file access failed")
	// ErrUsage reports a violation of an API contract by the caller.
	ErrUsage = errors.New("usage error")
	// ErrSequenceNotReturned is returned when a worker checks out a second
	// sequence before returning the first.
	ErrSequenceNotReturned = fmt.Errorf("%w: sequence not returned", ErrUsage)
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("database is closed")
	// ErrCorrupt reports a database file whose contents do not parse.
	ErrCorrupt = errors.New("corrupt database file")
)

// FileAccessError carries the file that failed.
type FileAccessError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileAccessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, ErrFileAccess)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, ErrFileAccess, e.Err)
}

func (e *FileAccessError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFileAccess}
	}
	return []error{ErrFileAccess, e.Err}
}

// FileAccess wraps err as a *FileAccessError.
func FileAccess(op, path string, err error) error {
	return &FileAccessError{Op: op, Path: path, Err: err}
}

// OIDRangeError reports an OID outside [0, NumOIDs).
type OIDRangeError struct {
	OID     int
	NumOIDs int
}

func (e *OIDRangeError) Error() string {
	return fmt.Sprintf("oid %d out of range [0, %d)", e.OID, e.NumOIDs)
}

func (e *OIDRangeError) Unwrap() error { return ErrOIDNotFound }

// CheckOID returns an *OIDRangeError if oid is not in [0, n).
func CheckOID(oid, n int) error {
	if oid < 0 || oid >= n {
		return &OIDRangeError{OID: oid, NumOIDs: n}
	}
	return nil
}

// Corrupt formats an ErrCorrupt error for path.
func Corrupt(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrCorrupt, path, fmt.Sprintf(format, args...))
}
