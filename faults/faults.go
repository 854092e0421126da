// CLAUDE:SUMMARY Error taxonomy for the ingestion pipeline: malformed input, unavailable store, per-file parse warnings.
// Package faults classifies ingestion failures.
//
// Pure stages (sanitize, canonicalize, hash, metadata) either succeed or
// return an error wrapping ErrMalformedInput. Storage failures wrap
// ErrStoreUnavailable and always propagate: the pipeline never guesses
// "changed" or "unchanged" when a store cannot be reached.
//
// Loader failures on a single file or page are not errors. They are
// collected as ParseWarning values and the batch continues.
package faults

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is returned when an event or artifact cannot be
// canonicalized (non-serializable value, invalid JSON, schema violation).
var ErrMalformedInput = errors.New("faults: malformed input")

// ErrStoreUnavailable is returned when the hash store or the document
// store cannot be opened, read, or written.
var ErrStoreUnavailable = errors.New("faults: store unavailable")

type classified struct {
	kind  error
	cause error
}

func (e *classified) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *classified) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Malformed wraps cause so that errors.Is(err, ErrMalformedInput) holds.
// A nil cause returns nil.
func Malformed(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrMalformedInput) {
		return cause
	}
	return &classified{kind: ErrMalformedInput, cause: cause}
}

// Malformedf formats a new malformed-input error.
func Malformedf(format string, args ...any) error {
	return Malformed(fmt.Errorf(format, args...))
}

// Unavailable wraps cause so that errors.Is(err, ErrStoreUnavailable) holds.
// A nil cause returns nil.
func Unavailable(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrStoreUnavailable) {
		return cause
	}
	return &classified{kind: ErrStoreUnavailable, cause: cause}
}

// IsMalformed reports whether err is a malformed-input failure.
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformedInput) }

// IsUnavailable reports whether err is a store-unavailable failure.
func IsUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// ParseWarning records a file or page a loader skipped.
type ParseWarning struct {
	Path  string `json:"path"`
	Cause string `json:"cause"`
}

func (w ParseWarning) String() string {
	return w.Path + ": " + w.Cause
}

// Warn builds a ParseWarning from an error.
func Warn(path string, err error) ParseWarning {
	cause := "unknown"
	if err != nil {
		cause = err.Error()
	}
	return ParseWarning{Path: path, Cause: cause}
}
