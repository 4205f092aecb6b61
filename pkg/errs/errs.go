// Package errs classifies failures so callers can tell a bad request from a lost race
// or a broken dependency without matching on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// Storage is the zero kind: anything unclassified is treated as an internal failure.
	Storage Kind = iota
	Validation
	Conflict
	NotFound
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not found"
	case Forbidden:
		return "forbidden"
	default:
		return "storage"
	}
}

// Error is a classified error. Op names the operation that failed, Err is the optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a fixed message. Suitable for sentinels.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Validationf reports input that was rejected before any mutation.
func Validationf(op, format string, args ...any) error {
	return &Error{Kind: Validation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Forbiddenf reports an actor acting outside their owner/buyer/seller role.
func Forbiddenf(op, format string, args ...any) error {
	return &Error{Kind: Forbidden, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in the chain, or Storage.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
