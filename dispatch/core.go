// Package dispatch implements the wire-verb dispatch core of the runtime:
// the nine wire verbs, call correlation (delegated to the transport), and
// the `start` handshake. Core runs every inbound handler and every call it
// makes back out to completion on whatever goroutine the transport invokes
// it on, and the shared registry/classmirror state needs no locking beyond
// what those packages already do for their own cooperative re-entrancy
// (handlers may synchronously call back out while building a reply, e.g.
// to send a class description first).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bfix/gospel/logger"

	"github.com/benbucksch/jpc/classmirror"
	"github.com/benbucksch/jpc/gc"
	"github.com/benbucksch/jpc/registry"
	"github.com/benbucksch/jpc/transport"
	"github.com/benbucksch/jpc/wire"
)

const (
	verbStart = "start"
	verbClass = "class"
	verbNew   = "new"
	verbCall  = "call"
	verbFunc  = "func"
	verbGet   = "get"
	verbSet   = "set"
	verbIter  = "iter"
	verbDel   = "del"
)

// Constructor builds a new instance of a registered class from already
// unmarshaled arguments, for the `new` verb.
type Constructor func(args []any) (any, error)

// Core is component D: it owns the single transport.Contract for one peer
// connection and wires every inbound verb to registry/classmirror/wire,
// and every outbound member-access on a Stub back through the same
// transport.
type Core struct {
	t          transport.Contract
	objects    *registry.Registry
	classes    *classmirror.Registry
	mirror     *classmirror.Mirror
	bridge     *gc.Bridge
	marshaller *wire.Marshaller
	seed       any

	constructors map[string]Constructor
}

// NewCore wires a Core around an already-connected transport. seed is the
// local object published as the reply to the peer's `start` handshake; it
// may be nil for a pure client role. Core owns its
// Mirror and GC Bridge (it is the ClassSender/DelSender they call back
// through), reachable via Mirror()/Bridge(); gcOpts are passed to the
// bridge, e.g. gc.WithFinalization(false) for deterministic tests.
func NewCore(t transport.Contract, objects *registry.Registry, classes *classmirror.Registry, seed any, gcOpts ...gc.Option) *Core {
	classmirror.RegisterIteratorClass(classes)
	c := &Core{
		t:            t,
		objects:      objects,
		classes:      classes,
		seed:         seed,
		constructors: make(map[string]Constructor),
	}
	c.mirror = classmirror.NewMirror(classes, c)
	c.bridge = gc.New(objects, c, gcOpts...)
	c.marshaller = wire.New(objects, classes, c.mirror, c.bridge, c)
	c.registerHandlers()
	return c
}

// Mirror returns the per-connection Class Mirror.
func (c *Core) Mirror() *classmirror.Mirror { return c.mirror }

// Bridge returns the per-connection GC Bridge.
func (c *Core) Bridge() *gc.Bridge { return c.bridge }

// RegisterConstructor makes className constructible by the peer's `new`
// verb.
func (c *Core) RegisterConstructor(className string, ctor Constructor) {
	c.constructors[className] = ctor
}

// Start issues the one-shot `start` handshake: the local peer's first
// action, whose reply seeds the remote object graph.
func (c *Core) Start(ctx context.Context) (any, error) {
	reply, err := c.t.CallRemote(ctx, verbStart, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeReply(ctx, reply)
}

func (c *Core) decodeReply(ctx context.Context, reply []byte) (any, error) {
	if len(reply) == 0 {
		return nil, nil
	}
	var v wire.Value
	if err := json.Unmarshal(reply, &v); err != nil {
		return nil, fmt.Errorf("dispatch: malformed reply: %w", err)
	}
	return c.marshaller.Incoming(ctx, v)
}

func (c *Core) marshalArgs(ctx context.Context, args []any) ([]wire.Value, error) {
	out := make([]wire.Value, len(args))
	for i, a := range args {
		v, err := c.marshaller.Outgoing(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// --- classmirror.Caller ---

type callPayload struct {
	Obj  string      `json:"obj"`
	Args []wire.Value `json:"args"`
}

type funcPayload struct {
	Obj  string       `json:"obj"`
	Name string       `json:"name"`
	Args []wire.Value `json:"args"`
}

type getPayload struct {
	Obj  string `json:"obj"`
	Name string `json:"name"`
}

type setPayload struct {
	Obj   string    `json:"obj"`
	Name  string    `json:"name"`
	Value wire.Value `json:"value"`
}

type iterPayload struct {
	Obj    string `json:"obj"`
	Symbol string `json:"symbol"`
}

type newPayload struct {
	ClassName string       `json:"className"`
	Args      []wire.Value `json:"args"`
}

type delPayload struct {
	IDRemote string `json:"idRemote"`
}

func (c *Core) CallFunc(ctx context.Context, id, name string, args []any) (any, error) {
	wireArgs, err := c.marshalArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(funcPayload{Obj: id, Name: name, Args: wireArgs})
	if err != nil {
		return nil, err
	}
	reply, err := c.t.CallRemote(ctx, verbFunc, raw)
	if err != nil {
		return nil, err
	}
	return c.decodeReply(ctx, reply)
}

func (c *Core) CallCallable(ctx context.Context, id string, args []any) (any, error) {
	wireArgs, err := c.marshalArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(callPayload{Obj: id, Args: wireArgs})
	if err != nil {
		return nil, err
	}
	reply, err := c.t.CallRemote(ctx, verbCall, raw)
	if err != nil {
		return nil, err
	}
	return c.decodeReply(ctx, reply)
}

func (c *Core) CallGet(ctx context.Context, id, name string) (any, error) {
	raw, err := json.Marshal(getPayload{Obj: id, Name: name})
	if err != nil {
		return nil, err
	}
	reply, err := c.t.CallRemote(ctx, verbGet, raw)
	if err != nil {
		return nil, err
	}
	return c.decodeReply(ctx, reply)
}

func (c *Core) CallSet(ctx context.Context, id, name string, value any) error {
	wv, err := c.marshaller.Outgoing(ctx, value)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(setPayload{Obj: id, Name: name, Value: wv})
	if err != nil {
		return err
	}
	_, err = c.t.CallRemote(ctx, verbSet, raw)
	return err
}

func (c *Core) CallIter(ctx context.Context, id, symbol string) (*classmirror.Stub, error) {
	raw, err := json.Marshal(iterPayload{Obj: id, Symbol: symbol})
	if err != nil {
		return nil, err
	}
	reply, err := c.t.CallRemote(ctx, verbIter, raw)
	if err != nil {
		return nil, err
	}
	result, err := c.decodeReply(ctx, reply)
	if err != nil {
		return nil, err
	}
	stub, ok := result.(*classmirror.Stub)
	if !ok {
		return nil, fmt.Errorf("dispatch: iter reply was not a stub (%T)", result)
	}
	return stub, nil
}

func (c *Core) CallNew(ctx context.Context, className string, args []any) (any, error) {
	wireArgs, err := c.marshalArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(newPayload{ClassName: className, Args: wireArgs})
	if err != nil {
		return nil, err
	}
	reply, err := c.t.CallRemote(ctx, verbNew, raw)
	if err != nil {
		return nil, err
	}
	return c.decodeReply(ctx, reply)
}

// NewRemote constructs a remote instance of className. Go has no per-type
// static dispatch to hang a constructor off of, so it lives here instead.
func (c *Core) NewRemote(ctx context.Context, className string, args ...any) (any, error) {
	return c.CallNew(ctx, className, args)
}

// --- classmirror.ClassSender ---

func (c *Core) SendClass(ctx context.Context, descs []*classmirror.ClassDescription) error {
	raw, err := json.Marshal(descs)
	if err != nil {
		return err
	}
	_, err = c.t.CallRemote(ctx, verbClass, raw)
	return err
}

// --- gc.DelSender ---

func (c *Core) SendDel(ctx context.Context, id string) error {
	raw, err := json.Marshal(delPayload{IDRemote: id})
	if err != nil {
		return err
	}
	_, err = c.t.CallRemote(ctx, verbDel, raw)
	return err
}

func (c *Core) logInbound(verb string, err error) {
	if err != nil {
		logger.Printf(logger.WARN, "[dispatch] inbound %s failed: %s", verb, err)
		return
	}
	logger.Printf(logger.DBG, "[dispatch] inbound %s ok", verb)
}
