// Package wireerr defines the error taxonomy that crosses the wire between
// peers. A transport's error envelope carries a Kind plus a message; the
// core never invents new kinds beyond these.
package wireerr

import "fmt"

// Kind identifies one of the abstract error categories a rejected call can
// carry. Kinds are stable strings so they survive a JSON round-trip through
// a transport's error envelope unambiguously.
type Kind string

const (
	// UnknownRemote: an incoming reference names an ID with no live stub
	// and no accompanying class description.
	UnknownRemote Kind = "UnknownRemote"
	// UnknownLocal: an incoming idRemote names an ID not registered
	// locally, or one that was garbage collected between the del send
	// and a later re-reference.
	UnknownLocal Kind = "UnknownLocal"
	// UnknownParentClass: a class description names a parent not yet
	// received; parent descriptions must arrive before their children.
	UnknownParentClass Kind = "UnknownParentClass"
	// DuplicateRemote: the peer re-introduced an ID that already has a
	// live stub.
	DuplicateRemote Kind = "DuplicateRemote"
	// UserException: a local method invocation threw/returned an error.
	UserException Kind = "UserException"
	// ConnectionLost: the transport closed with calls outstanding.
	ConnectionLost Kind = "ConnectionLost"
	// Unsupported: the host lacks a facility the runtime degrades
	// gracefully without (see gc.Bridge). Also returned when an `iter`
	// request targets an object whose class exposes no iterator.
	Unsupported Kind = "Unsupported"
)

// Error is the Go representation of a rejected call. Transports are
// expected to serialize Kind and Message into their error envelope and
// reconstruct an *Error on the other side.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a wireerr.Error of the given kind, so callers
// can do `if wireerr.Is(err, wireerr.UnknownLocal) { ... }`.
func Is(err error, kind Kind) bool {
	we, ok := err.(*Error)
	return ok && we.Kind == kind
}
