package history

import "fmt"

// Kind classifies a history engine error the way the original Error::Code
// enum did, so callers can branch on failure category rather than string
// matching messages.
type Kind uint8

const (
	// UnknownError covers filesystem I/O failures, serializer failures, and
	// anything else without a more specific kind.
	UnknownError Kind = iota
	NotFound
	NoObjectFound
	InvalidPath
	InvalidPathSubcomponent
	InvalidPermissions
	InvalidType
	MalformedInput
	NotSupported
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case NoObjectFound:
		return "NoObjectFound"
	case InvalidPath:
		return "InvalidPath"
	case InvalidPathSubcomponent:
		return "InvalidPathSubcomponent"
	case InvalidPermissions:
		return "InvalidPermissions"
	case InvalidType:
		return "InvalidType"
	case MalformedInput:
		return "MalformedInput"
	case NotSupported:
		return "NotSupported"
	default:
		return "UnknownError"
	}
}

// Error is the sum type every fallible history operation returns through
// Go's normal error channel: there is no exception path, only explicit
// propagation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("history: %s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a *Error of the given kind, so callers can
// write `history.Is(err, history.NotFound)` instead of type-asserting.
func Is(err error, kind Kind) bool {
	he, ok := err.(*Error)
	return ok && he.Kind == kind
}
