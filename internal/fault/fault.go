// Package fault classifies failures so callers can decide whether to retry,
// report, or treat a missing resource as empty.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the broad class of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindParse
	KindTransient
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindParse:
		return "parse"
	case KindTransient:
		return "transient"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op. A nil err still yields an error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound reports a missing resource.
func NotFound(op string, err error) error { return New(KindNotFound, op, err) }

// Parse reports malformed input.
func Parse(op string, err error) error { return New(KindParse, op, err) }

// Transient reports a failure worth retrying.
func Transient(op string, err error) error { return New(KindTransient, op, err) }

// Invalid reports a caller mistake.
func Invalid(op string, err error) error { return New(KindInvalid, op, err) }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsParse(err error) bool     { return KindOf(err) == KindParse }
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
func IsInvalid(err error) bool   { return KindOf(err) == KindInvalid }
