// Package tcp implements transport.Contract over a plain net.Conn: each
// direction is a stream of newline-terminated JSON frames correlated by a
// per-call sequence number, since unlike transport/pipe a real socket has
// no call stack to use as the correlation mechanism — the transport owns
// envelope framing and correlation IDs itself.
//
// Blocking reads are interruptible: the actual read runs in its own
// goroutine, and the calling goroutine selects between its result and a
// gospel/concurrent.Signaller broadcast, rather than leaking a goroutine
// blocked on a dead connection when Close is called.
package tcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"

	"github.com/benbucksch/jpc/transport"
	"github.com/benbucksch/jpc/wireerr"
)

type frame struct {
	CorrID  int64           `json:"corrId"`
	Kind    string          `json:"kind"` // "call" | "reply"
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ErrKind string          `json:"errKind,omitempty"`
	ErrMsg  string          `json:"errMsg,omitempty"`
}

// Transport is one end of a TCP-connected peer pair.
type Transport struct {
	conn net.Conn
	sig  *concurrent.Signaller

	writeMu sync.Mutex
	enc     *json.Encoder

	handlersMu sync.Mutex
	handlers   map[string]transport.Handler

	pendingMu sync.Mutex
	pending   map[int64]chan frame
	nextCorr  int64

	doneOnce sync.Once
	done     chan struct{}
}

// Listen opens a TCP listener at addr; each accepted connection should be
// wrapped with New.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Dial connects to a peer's TCP listener and wraps the connection.
func Dial(addr string) (*Transport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an already-accepted or already-dialed connection and starts
// its read loop.
func New(conn net.Conn) *Transport {
	t := &Transport{
		conn:     conn,
		sig:      concurrent.NewSignaller(),
		handlers: make(map[string]transport.Handler),
		pending:  make(map[int64]chan frame),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// RegisterIncoming implements transport.Contract.
func (t *Transport) RegisterIncoming(method string, handler transport.Handler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[method] = handler
}

// CallRemote implements transport.Contract.
func (t *Transport) CallRemote(ctx context.Context, method string, payload []byte) ([]byte, error) {
	id := atomic.AddInt64(&t.nextCorr, 1)
	replyCh := make(chan frame, 1)
	t.pendingMu.Lock()
	t.pending[id] = replyCh
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeFrame(frame{CorrID: id, Kind: "call", Method: method, Payload: payload}); err != nil {
		return nil, wireerr.New(wireerr.ConnectionLost, "%s", err)
	}

	select {
	case reply := <-replyCh:
		if reply.ErrKind != "" {
			return nil, &wireerr.Error{Kind: wireerr.Kind(reply.ErrKind), Message: reply.ErrMsg}
		}
		return reply.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, wireerr.New(wireerr.ConnectionLost, "connection to peer closed")
	}
}

// Close shuts down the transport, interrupting any in-flight read and
// failing every outstanding CallRemote with ConnectionLost.
func (t *Transport) Close() error {
	t.doneOnce.Do(func() {
		close(t.done)
		t.sig.Signal(true)
	})
	return t.conn.Close()
}

func (t *Transport) writeFrame(f frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.enc == nil {
		t.enc = json.NewEncoder(t.conn)
	}
	return t.enc.Encode(f)
}

func (t *Transport) readLoop() {
	dec := json.NewDecoder(t.conn)
	for {
		f, err := t.decodeInterruptible(dec)
		if err != nil {
			logger.Printf(logger.DBG, "[tcp] read loop ending: %s", err)
			t.doneOnce.Do(func() { close(t.done) })
			return
		}
		switch f.Kind {
		case "reply":
			t.pendingMu.Lock()
			ch, ok := t.pending[f.CorrID]
			t.pendingMu.Unlock()
			if ok {
				ch <- f
			}
		case "call":
			go t.dispatch(f)
		}
	}
}

func (t *Transport) decodeInterruptible(dec *json.Decoder) (frame, error) {
	type result struct {
		f   frame
		err error
	}
	out := make(chan result, 1)
	go func() {
		var f frame
		err := dec.Decode(&f)
		out <- result{f, err}
	}()

	listener := t.sig.Listen()
	defer t.sig.Drop(listener)
	select {
	case r := <-out:
		return r.f, r.err
	case <-listener:
		return frame{}, fmt.Errorf("tcp: read interrupted by close")
	}
}

func (t *Transport) dispatch(f frame) {
	t.handlersMu.Lock()
	handler, ok := t.handlers[f.Method]
	t.handlersMu.Unlock()

	reply := frame{CorrID: f.CorrID, Kind: "reply"}
	if !ok {
		reply.ErrKind = string(wireerr.UnknownRemote)
		reply.ErrMsg = fmt.Sprintf("no handler registered for verb %q", f.Method)
	} else if result, err := handler(context.Background(), f.Payload); err != nil {
		if we, ok := err.(*wireerr.Error); ok {
			reply.ErrKind = string(we.Kind)
			reply.ErrMsg = we.Message
		} else {
			reply.ErrKind = string(wireerr.UserException)
			reply.ErrMsg = err.Error()
		}
	} else {
		reply.Payload = result
	}
	if err := t.writeFrame(reply); err != nil {
		logger.Printf(logger.WARN, "[tcp] writing reply for %s failed: %s", f.Method, err)
	}
}
