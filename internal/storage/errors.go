package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates no document exists under the requested name.
var ErrNotFound = errors.New("document not found")

// ErrInvalidName indicates a document name that is not safe to map to a
// path (empty, path separators, leading dots, uppercase).
var ErrInvalidName = errors.New("invalid document name")

// WriteErrorKind categorizes commit failures.
type WriteErrorKind string

const (
	// WriteLockTimeout: the advisory lock could not be acquired within
	// the configured timeout. The live document was not touched; the
	// caller decides whether to retry with backoff.
	WriteLockTimeout WriteErrorKind = "LOCK_TIMEOUT"

	// WriteLockUnsupported: the platform or filesystem cannot provide
	// advisory locking and the store was not configured to proceed
	// unserialized.
	WriteLockUnsupported WriteErrorKind = "LOCK_UNSUPPORTED"

	// WriteIOFailure: serialization or a filesystem operation failed.
	WriteIOFailure WriteErrorKind = "IO_FAILURE"
)

// WriteError reports a failed commit. The live document at Path is
// guaranteed untouched for every kind except an error from the final
// rename itself, which the underlying error identifies.
type WriteError struct {
	Kind WriteErrorKind
	Path string
	Err  error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: commit %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: commit %s", e.Kind, e.Path)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error { return e.Err }

// IsLockTimeout reports whether err is a lock-timeout commit failure.
// Uses errors.As to handle wrapped errors.
func IsLockTimeout(err error) bool {
	var we *WriteError
	return errors.As(err, &we) && we.Kind == WriteLockTimeout
}

// UnparsableError indicates stored bytes that do not decode as a
// document. Not repairable in place; recovery goes through backups.
type UnparsableError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *UnparsableError) Error() string {
	return fmt.Sprintf("document %q is unparsable: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnparsableError) Unwrap() error { return e.Err }
