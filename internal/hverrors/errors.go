// Package hverrors holds the typed error kinds of the coloring subsystem
// (§7), modeled as sentinel errors in the shape of an errno plus a
// descriptive message — the same pattern the teacher uses for
// pkg/errors.Error (an errno.Errno plus a message), adapted to this
// subsystem's own closed set of kinds instead of Linux errno values.
package hverrors

import "fmt"

// Kind is one of the five error kinds named in §7.
type Kind int

const (
	// ConfigInvalid: colors zero or out of range; managed region
	// without a root colored pool; colored region declared but no
	// unified cache present.
	ConfigInvalid Kind = iota
	// OutOfBounds: managed region extends past root pool; manual
	// region overlaps root pool.
	OutOfBounds
	// OutOfMemory: pool exhausted while installing page-table nodes.
	OutOfMemory
	// NotSupported: SMMU operation requested but no SMMU hook
	// registered.
	NotSupported
	// RootConflict: during DESTROY, remap_to_root found a conflicting
	// mapping (warn only, continue).
	RootConflict
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case OutOfBounds:
		return "OutOfBounds"
	case OutOfMemory:
		return "OutOfMemory"
	case NotSupported:
		return "NotSupported"
	case RootConflict:
		return "RootConflict"
	default:
		return "Unknown"
	}
}

// Error is a typed coloring-subsystem error: a Kind plus a message.
type Error struct {
	kind    Kind
	message string
}

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Newf creates an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Kind returns the underlying error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Is supports errors.Is(err, hverrors.New(hverrors.ConfigInvalid, ""))-style
// matching by Kind alone, ignoring message. Kind itself is a bare int, not
// an error, so it cannot be passed directly as errors.Is's target; callers
// that already hold a typed *Error (the common case here) instead assert
// err.(*Error) and compare Kind() directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// FailureMode selects the failure policy for RemapToRoot (§6): abort the
// whole operation on a conflicting mapping, or warn and continue.
type FailureMode int

const (
	AbortOnError FailureMode = iota
	WarnOnError
)
