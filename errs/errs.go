// Package errs defines the error taxonomy shared by the cms and ht
// engines and the bounter factory.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it with errors.As
// instead of string matching.
type Kind int

const (
	// TypeMismatch marks a non-string key or non-integer delta.
	TypeMismatch Kind = iota
	// InvalidArgument marks a negative delta, a non-power-of-two width,
	// an unknown variant, or another malformed constructor argument.
	InvalidArgument
	// Overflow marks a counter or total that would exceed its max value.
	Overflow
	// NotImplemented marks an operation unsupported by the active engine,
	// e.g. Get on a cardinality-only counter.
	NotImplemented
	// IncompatibleMerge marks a merge between peers of differing shape
	// or variant.
	IncompatibleMerge
	// BudgetTooSmall marks a size_mb budget too small to derive a
	// non-zero width, depth, or bucket count.
	BudgetTooSmall
)

func (k Kind) String() string {
	switch k {
	case TypeMismatch:
		return "TypeMismatch"
	case InvalidArgument:
		return "InvalidArgument"
	case Overflow:
		return "Overflow"
	case NotImplemented:
		return "NotImplemented"
	case IncompatibleMerge:
		return "IncompatibleMerge"
	case BudgetTooSmall:
		return "BudgetTooSmall"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by this module. Op names the
// failing operation (e.g. "cms.Increment") for trace-free debugging.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Is allows errors.Is(err, errs.New(SomeKind, "", "")) to match on Kind
// alone, ignoring Op and Msg.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a typed Error.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf constructs a typed Error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
