// Package errs defines the error kinds callers of the engine must be able
// to distinguish without string-matching, per the error handling design.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the distinguishable error categories a caller can match
// against with errors.Is.
type Kind int

const (
	// InvalidArgument covers a malformed op, unknown action, non-numeric
	// list index, negative counter, or duplicate seq.
	InvalidArgument Kind = iota
	// MissingDependency means a dep hash is unknown; the change is parked,
	// not rejected, unless the caller invoked a strict operation.
	MissingDependency
	// StateMismatch means a patch was applied to a doc whose backend state
	// does not match its deps.
	StateMismatch
	// DecodeError covers corrupt columnar bytes, bad magic, a truncated
	// chunk, an unknown chunk type, or a checksum mismatch.
	DecodeError
	// ActorCollision means two documents being merged share an actor id.
	ActorCollision
	// InternalInvariant is a violated invariant from the data model; it is
	// unrecoverable and the caller is expected to crash, not recover.
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case MissingDependency:
		return "MissingDependency"
	case StateMismatch:
		return "StateMismatch"
	case DecodeError:
		return "DecodeError"
	case ActorCollision:
		return "ActorCollision"
	case InternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a distinguishable Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error carrying the same Kind, so callers
// can do errors.Is(err, errs.New(errs.MissingDependency, "", nil)).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error for the given kind and wraps cause (may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// sentinel values usable directly with errors.Is(err, errs.MissingDep)
var (
	MissingDep      = New(MissingDependency, "", nil)
	InvalidArg      = New(InvalidArgument, "", nil)
	StateConflict   = New(StateMismatch, "", nil)
	Decode          = New(DecodeError, "", nil)
	ActorConflict   = New(ActorCollision, "", nil)
	InvariantBroken = New(InternalInvariant, "", nil)
)
