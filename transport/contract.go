// Package transport defines the two-primitive boundary every message
// channel binding (pipe, TCP, Redis pub/sub, HTTP JSON-RPC) must satisfy:
// the core depends on nothing beyond registering a handler for an inbound
// verb and sending an outbound one.
package transport

import "context"

// Handler processes one inbound verb invocation. method identifies the
// wire verb; payload is the raw JSON argument object; the returned bytes
// are the raw JSON reply (nil for void verbs like `class`/`set`/`del`).
// A returned error causes the transport to encode an error envelope
// instead of a reply.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Contract is the boundary dispatch.Core depends on. A transport
// implementation owns framing, correlation IDs, error-envelope encoding,
// and connection lifecycle; everything else is the dispatch core's concern.
type Contract interface {
	// RegisterIncoming installs handler for inbound invocations of
	// method. Only one handler per method name is meaningful; a second
	// registration replaces the first.
	RegisterIncoming(method string, handler Handler)

	// CallRemote sends an outbound invocation of method with the given
	// raw JSON payload and blocks for the reply (or ctx cancellation, or
	// peer/connection failure). del-style fire-and-forget verbs still
	// go through CallRemote; the core treats a nil/empty reply as void.
	CallRemote(ctx context.Context, method string, payload []byte) ([]byte, error)
}
