// Package apperr classifies request failures so the HTTP layer can map them
// to stable status codes without inspecting message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable classification reported to callers.
type Kind int

const (
	// KindStorage covers transaction and commit failures; never swallowed.
	KindStorage Kind = iota
	// KindNotFound covers unresolvable badges and unknown record ids.
	KindNotFound
	// KindConflict covers uniqueness violations, e.g. a duplicate badge.
	KindConflict
	// KindInvalid covers malformed required fields, caught before mutation.
	KindInvalid
)

// Error carries a kind, a human-readable message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a uniqueness-violation error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds a validation error.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps a datastore failure.
func Storage(err error, format string, args ...any) error {
	return &Error{Kind: KindStorage, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the classification of err, defaulting to KindStorage for
// unclassified errors so nothing surfaces as a silent success.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStorage
}

// IsNotFound reports whether err is classified not-found.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }
