package dispatch

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/benbucksch/jpc/classmirror"
	"github.com/benbucksch/jpc/wire"
	"github.com/benbucksch/jpc/wireerr"
)

func (c *Core) registerHandlers() {
	c.t.RegisterIncoming(verbStart, c.handleStart)
	c.t.RegisterIncoming(verbClass, c.handleClass)
	c.t.RegisterIncoming(verbNew, c.handleNew)
	c.t.RegisterIncoming(verbCall, c.handleCall)
	c.t.RegisterIncoming(verbFunc, c.handleFunc)
	c.t.RegisterIncoming(verbGet, c.handleGet)
	c.t.RegisterIncoming(verbSet, c.handleSet)
	c.t.RegisterIncoming(verbIter, c.handleIter)
	c.t.RegisterIncoming(verbDel, c.handleDel)
}

func (c *Core) handleStart(ctx context.Context, _ []byte) ([]byte, error) {
	v, err := c.marshaller.Outgoing(ctx, c.seed)
	c.logInbound(verbStart, err)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *Core) handleClass(ctx context.Context, payload []byte) ([]byte, error) {
	var descs []*classmirror.ClassDescription
	if err := json.Unmarshal(payload, &descs); err != nil {
		return nil, err
	}
	err := c.mirror.Install(descs)
	c.logInbound(verbClass, err)
	return nil, err
}

func (c *Core) handleNew(ctx context.Context, payload []byte) ([]byte, error) {
	var req newPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	ctor, ok := c.constructors[req.ClassName]
	if !ok {
		err := wireerr.New(wireerr.UnknownRemote, "no constructor registered for class %q", req.ClassName)
		c.logInbound(verbNew, err)
		return nil, err
	}
	args, err := c.decodeArgs(ctx, req.Args)
	if err != nil {
		return nil, err
	}
	result, err := ctor(args)
	if err != nil {
		c.logInbound(verbNew, err)
		return nil, wireerr.New(wireerr.UserException, "%s", err.Error())
	}
	v, err := c.marshaller.Outgoing(ctx, result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *Core) handleCall(ctx context.Context, payload []byte) ([]byte, error) {
	var req callPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	fn, err := c.objects.LocalFor(req.Obj)
	if err != nil {
		c.logInbound(verbCall, err)
		return nil, err
	}
	result, err := invokeCallable(ctx, c.marshaller, reflect.ValueOf(fn), req.Args)
	c.logInbound(verbCall, err)
	if err != nil {
		return nil, err
	}
	v, err := c.marshaller.Outgoing(ctx, result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *Core) handleFunc(ctx context.Context, payload []byte) ([]byte, error) {
	var req funcPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	obj, err := c.objects.LocalFor(req.Obj)
	if err != nil {
		c.logInbound(verbFunc, err)
		return nil, err
	}
	result, err := invokeMethod(ctx, c.marshaller, obj, req.Name, req.Args)
	c.logInbound(verbFunc, err)
	if err != nil {
		return nil, err
	}
	v, err := c.marshaller.Outgoing(ctx, result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *Core) handleGet(ctx context.Context, payload []byte) ([]byte, error) {
	var req getPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	obj, err := c.objects.LocalFor(req.Obj)
	if err != nil {
		c.logInbound(verbGet, err)
		return nil, err
	}
	result, err := invokeMethod(ctx, c.marshaller, obj, "Get"+req.Name, nil)
	c.logInbound(verbGet, err)
	if err != nil {
		return nil, err
	}
	v, err := c.marshaller.Outgoing(ctx, result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *Core) handleSet(ctx context.Context, payload []byte) ([]byte, error) {
	var req setPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	obj, err := c.objects.LocalFor(req.Obj)
	if err != nil {
		c.logInbound(verbSet, err)
		return nil, err
	}
	_, err = invokeMethod(ctx, c.marshaller, obj, "Set"+req.Name, []wire.Value{req.Value})
	c.logInbound(verbSet, err)
	return nil, err
}

func (c *Core) handleIter(ctx context.Context, payload []byte) ([]byte, error) {
	var req iterPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	obj, err := c.objects.LocalFor(req.Obj)
	if err != nil {
		c.logInbound(verbIter, err)
		return nil, err
	}
	var it classmirror.Iterator
	switch req.Symbol {
	case "asyncIterator":
		ai, ok := obj.(classmirror.AsyncIterable)
		if !ok {
			err = wireerr.New(wireerr.Unsupported, "%T is not asyncIterable", obj)
		} else {
			it = ai.NewAsyncIterator()
		}
	default:
		si, ok := obj.(classmirror.Iterable)
		if !ok {
			err = wireerr.New(wireerr.Unsupported, "%T is not iterable", obj)
		} else {
			it = si.NewIterator()
		}
	}
	if err != nil {
		c.logInbound(verbIter, err)
		return nil, err
	}
	wrapped := classmirror.WrapIterator(it)
	v, err := c.marshaller.Outgoing(ctx, wrapped)
	c.logInbound(verbIter, err)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *Core) handleDel(ctx context.Context, payload []byte) ([]byte, error) {
	var req delPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	c.objects.ReleaseLocal(req.IDRemote)
	c.logInbound(verbDel, nil)
	return nil, nil
}

func (c *Core) decodeArgs(ctx context.Context, wireArgs []wire.Value) ([]any, error) {
	out := make([]any, len(wireArgs))
	for i, wa := range wireArgs {
		v, err := c.marshaller.Incoming(ctx, wa)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
