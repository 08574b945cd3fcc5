// Package errors provides error handling for backfill runs.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints shown to the operator when a run aborts
//   - Marking, so a wrapped cause still matches a taxonomy sentinel
//
// Usage:
//
//	if err := rows.Err(); err != nil {
//	    return errors.MarkStore(errors.Wrap(err, "scan candidates"))
//	}
//
//	if errors.Is(err, errors.ErrStore) {
//	    // fatal: abort the run
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Fatal sentinels. Any of these aborts a run with a non-zero exit.
var (
	// ErrStore indicates the primary store could not be reached or queried
	ErrStore = New("store error")

	// ErrFormat indicates a malformed journal record
	ErrFormat = New("format error")

	// ErrIO indicates the journal could not be opened, locked or appended to
	ErrIO = New("journal io error")
)

// Item sentinels. These are per-candidate: the worker pool logs and skips the
// item, and it is selected again on the next run.
var (
	// ErrNotFound indicates the artifact for a candidate does not exist
	ErrNotFound = New("not found")

	// ErrTooLarge indicates the artifact exceeds the configured size limit
	ErrTooLarge = New("too large")

	// ErrParseFailure indicates the artifact could not be parsed
	ErrParseFailure = New("parse failure")
)

// MarkStore marks err as a store error while preserving its message and cause.
func MarkStore(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrStore)
}

// MarkIO marks err as a journal io error.
func MarkIO(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrIO)
}

// NewFormatError creates a format error with a formatted message
func NewFormatError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrFormat)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewTooLargeError creates a too-large error with a formatted message
func NewTooLargeError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrTooLarge)
}

// WrapParseFailure wraps err as a parse failure with context
func WrapParseFailure(err error, context string) error {
	return Mark(Wrap(err, context), ErrParseFailure)
}

// IsItemError reports whether err is a per-candidate failure that should be
// skipped rather than aborting the run.
func IsItemError(err error) bool {
	return err != nil && IsAny(err, ErrNotFound, ErrTooLarge, ErrParseFailure)
}

// IsFatal reports whether err belongs to the fatal part of the taxonomy.
func IsFatal(err error) bool {
	return err != nil && IsAny(err, ErrStore, ErrFormat, ErrIO)
}
