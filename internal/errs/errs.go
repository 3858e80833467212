// Package errs defines the error kinds shared by every codec layer.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind distinguishes the failure taxonomy used across the codec.
type Kind int

const (
	// OutOfMemory means an arena grow or workspace allocation failed.
	OutOfMemory Kind = iota
	// Truncated means the input stream ended mid-field.
	Truncated
	// InvalidEncoding means a field violates its own shape (bad CDU step count,
	// reserved token tag, ENUM k/rank out of range).
	InvalidEncoding
	// NonCanonical means the bytes decode but are not the canonical
	// representation of the resulting set.
	NonCanonical
	// Overflow means arena or offset arithmetic would exceed a u32.
	Overflow
	// InvariantViolated means the builder was called out of order.
	InvariantViolated
	// NotInitialized means static tables were not ready.
	NotInitialized
	// UnsupportedVersion means the format identifier isn't Format 0.
	UnsupportedVersion
)

func (k Kind) String() string {
	switch k {
	case OutOfMemory:
		return "OutOfMemory"
	case Truncated:
		return "Truncated"
	case InvalidEncoding:
		return "InvalidEncoding"
	case NonCanonical:
		return "NonCanonical"
	case Overflow:
		return "Overflow"
	case InvariantViolated:
		return "InvariantViolated"
	case NotInitialized:
		return "NotInitialized"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	default:
		return "Unknown"
	}
}

// Error is a structured codec error carrying its kind and an optional
// byte/bit location, mirroring the teacher's H5Error shape.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

// Unwrap provides compatibility with errors.Unwrap / errors.Is walking past
// a Wrap'd cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same Kind as e, which is what lets
// stdlib errors.Is match against the Err* sentinels below even though every
// New/Wrap call allocates a fresh *Error rather than returning a shared one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Err* are the sentinel values for each Kind, usable with stdlib
// errors.Is(err, errs.ErrTruncated) via (*Error).Is above.
var (
	ErrOutOfMemory        = &Error{Kind: OutOfMemory}
	ErrTruncated          = &Error{Kind: Truncated}
	ErrInvalidEncoding    = &Error{Kind: InvalidEncoding}
	ErrNonCanonical       = &Error{Kind: NonCanonical}
	ErrOverflow           = &Error{Kind: Overflow}
	ErrInvariantViolated  = &Error{Kind: InvariantViolated}
	ErrNotInitialized     = &Error{Kind: NotInitialized}
	ErrUnsupportedVersion = &Error{Kind: UnsupportedVersion}
)

// New builds a codec error with no underlying cause.
func New(kind Kind, context string) error {
	return &Error{Kind: kind, Context: context}
}

// Wrap attaches kind and context to a lower-level cause. The cause is wrapped
// with pkg/errors.WithStack, which records the stack at this call; formatting
// Cause with %+v prints it (the *Error itself formats without a stack).
func Wrap(kind Kind, context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, Cause: errors.WithStack(cause)}
}

// Is reports whether err carries the given Kind anywhere in its chain. A
// thin convenience wrapper so call sites that only have a Kind in hand (not
// one of the Err* sentinels) don't need to construct one; equivalent to
// stdlib errors.Is(err, &Error{Kind: kind}).
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
