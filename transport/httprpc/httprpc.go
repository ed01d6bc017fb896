// Package httprpc implements transport.Contract over HTTP: gorilla/mux
// routes "/jpc/rpc" to a gorilla/rpc JSON-RPC server wrapping the
// registered verb handlers, and "/jpc/debug" to a read-only JSON dump of
// live registry entries for operators. Outbound calls speak the same
// JSON-RPC 1.0 request/response shape as gorilla/rpc's json codec by hand
// (gorilla/rpc ships a server, not a client), so two jpc-peer processes can
// talk across a plain HTTP connection without a socket of their own.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	json2 "github.com/gorilla/rpc/json"

	"github.com/benbucksch/jpc/registry"
	"github.com/benbucksch/jpc/transport"
	"github.com/benbucksch/jpc/wireerr"
)

// InvokeArgs is the gorilla/rpc request body: one wire verb invocation.
type InvokeArgs struct {
	Verb    string          `json:"verb"`
	Payload json.RawMessage `json:"payload"`
}

// InvokeReply is the gorilla/rpc response body: the verb's raw JSON
// reply, or a wireerr.Kind/message pair on failure.
type InvokeReply struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	ErrKind string          `json:"errKind,omitempty"`
	ErrMsg  string          `json:"errMsg,omitempty"`
}

// Service is the gorilla/rpc-registered receiver; its one method fans out
// to whichever transport.Handler was registered for the requested verb.
type Service struct {
	t *Transport
}

// Invoke implements the gorilla/rpc method signature
// (func(*http.Request, *Args, *Reply) error); jpc-level failures are
// carried inside reply, not as the RPC-framework error, so a JSON-RPC
// client always gets a well-formed InvokeReply to inspect.
func (s *Service) Invoke(r *http.Request, args *InvokeArgs, reply *InvokeReply) error {
	s.t.handlersMu.Lock()
	handler, ok := s.t.handlers[args.Verb]
	s.t.handlersMu.Unlock()
	if !ok {
		reply.ErrKind = string(wireerr.UnknownRemote)
		reply.ErrMsg = fmt.Sprintf("no handler registered for verb %q", args.Verb)
		return nil
	}
	result, err := handler(r.Context(), args.Payload)
	if err != nil {
		if we, ok := err.(*wireerr.Error); ok {
			reply.ErrKind = string(we.Kind)
			reply.ErrMsg = we.Message
		} else {
			reply.ErrKind = string(wireerr.UserException)
			reply.ErrMsg = err.Error()
		}
		return nil
	}
	reply.Payload = result
	return nil
}

// Transport is an HTTP-backed transport.Contract: a server side (accepts
// "/jpc/rpc" requests and answers them via registered handlers) and a
// client side (POSTs verb invocations to a peer's "/jpc/rpc" endpoint).
type Transport struct {
	remoteURL  string
	httpClient *http.Client
	httpServer *http.Server
	nextID     int64

	debugRegistry *registry.Registry

	handlersMu sync.Mutex
	handlers   map[string]transport.Handler
}

// NewServer starts listening on addr, routing "/jpc/rpc" to the
// gorilla/rpc service and "/jpc/debug" to a registry dump.
func NewServer(addr string) *Transport {
	t := &Transport{handlers: make(map[string]transport.Handler)}

	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	rpcServer.RegisterService(&Service{t: t}, "Jpc")

	router := mux.NewRouter()
	router.Handle("/jpc/rpc", rpcServer).Methods(http.MethodPost)
	router.HandleFunc("/jpc/debug", t.debugHandler).Methods(http.MethodGet)

	t.httpServer = &http.Server{Addr: addr, Handler: router}
	go t.httpServer.ListenAndServe() //nolint:errcheck // server lifetime is process lifetime; shutdown errors logged by net/http itself
	return t
}

// NewClient targets a peer's "/jpc/rpc" endpoint, e.g.
// "http://host:port/jpc/rpc".
func NewClient(remoteURL string) *Transport {
	return &Transport{remoteURL: remoteURL, httpClient: &http.Client{}, handlers: make(map[string]transport.Handler)}
}

// SetDebugRegistry wires the live registry behind "/jpc/debug" (operator
// visibility only; never consulted by CallRemote/RegisterIncoming).
func (t *Transport) SetDebugRegistry(reg *registry.Registry) {
	t.debugRegistry = reg
}

// RegisterIncoming implements transport.Contract.
func (t *Transport) RegisterIncoming(method string, handler transport.Handler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[method] = handler
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params [1]InvokeArgs `json:"params"`
	ID     int64         `json:"id"`
}

type rpcResponse struct {
	Result InvokeReply `json:"result"`
	Error  *string     `json:"error"`
	ID     int64       `json:"id"`
}

// CallRemote implements transport.Contract by speaking gorilla/rpc's
// json codec convention (JSON-RPC 1.0) against the peer's "/jpc/rpc"
// endpoint.
func (t *Transport) CallRemote(ctx context.Context, method string, payload []byte) ([]byte, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	req := rpcRequest{Method: "Jpc.Invoke", ID: id}
	req.Params[0] = InvokeArgs{Verb: method, Payload: payload}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.remoteURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, wireerr.New(wireerr.ConnectionLost, "%s", err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("httprpc: malformed response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, wireerr.New(wireerr.ConnectionLost, "%s", *rpcResp.Error)
	}
	if rpcResp.Result.ErrKind != "" {
		return nil, &wireerr.Error{Kind: wireerr.Kind(rpcResp.Result.ErrKind), Message: rpcResp.Result.ErrMsg}
	}
	return rpcResp.Result.Payload, nil
}

// Close shuts down the HTTP server, if this Transport is server-side.
func (t *Transport) Close() error {
	if t.httpServer == nil {
		return nil
	}
	return t.httpServer.Close()
}

func (t *Transport) debugHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if t.debugRegistry == nil {
		json.NewEncoder(w).Encode(map[string]string{"status": "no registry wired"}) //nolint:errcheck
		return
	}
	json.NewEncoder(w).Encode(t.debugRegistry.Snapshot()) //nolint:errcheck
}
