// Package pipe implements an in-process transport.Contract: two Pipe
// values wired to each other, for tests and for demos that don't need a
// real network hop. It is the transport the runtime's observable
// properties are most naturally driven through, in a loopback-channel
// style. Because both ends run on the caller's own goroutine (a call
// simply recurses into the peer's handler and returns), no correlation-ID
// bookkeeping is needed — the Go call stack already is the correlation.
package pipe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bfix/gospel/logger"

	"github.com/benbucksch/jpc/transport"
	"github.com/benbucksch/jpc/wireerr"
)

// Pipe is one end of an in-process peer pair. Create both ends with
// NewPair.
type Pipe struct {
	name string
	peer *Pipe

	mu       sync.Mutex
	handlers map[string]transport.Handler

	closed atomic.Bool
}

// NewPair builds two connected Pipe ends, each implementing
// transport.Contract for the other.
func NewPair(nameA, nameB string) (*Pipe, *Pipe) {
	a := &Pipe{name: nameA, handlers: make(map[string]transport.Handler)}
	b := &Pipe{name: nameB, handlers: make(map[string]transport.Handler)}
	a.peer, b.peer = b, a
	return a, b
}

// RegisterIncoming implements transport.Contract.
func (p *Pipe) RegisterIncoming(method string, handler transport.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = handler
}

// CallRemote implements transport.Contract: delivers method/payload to the
// peer's matching handler and returns its reply.
func (p *Pipe) CallRemote(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if p.closed.Load() || p.peer == nil {
		return nil, wireerr.New(wireerr.ConnectionLost, "pipe %s is closed", p.name)
	}
	logger.Printf(logger.DBG, "[pipe %s] -> %s", p.name, method)
	reply, err := p.peer.deliver(ctx, method, payload)
	if err != nil {
		logger.Printf(logger.DBG, "[pipe %s] <- %s error: %s", p.name, method, err)
		return nil, err
	}
	return reply, nil
}

func (p *Pipe) deliver(ctx context.Context, method string, payload []byte) ([]byte, error) {
	p.mu.Lock()
	handler, ok := p.handlers[method]
	p.mu.Unlock()
	if !ok {
		return nil, wireerr.New(wireerr.UnknownRemote, "no handler registered for verb %q on %s", method, p.name)
	}
	return handler(ctx, payload)
}

// Close marks the pipe closed; subsequent CallRemote calls fail with
// ConnectionLost.
func (p *Pipe) Close() {
	p.closed.Store(true)
}
