package classmirror

import (
	"context"
	"fmt"
	"reflect"

	"github.com/benbucksch/jpc/wireerr"
)

func errNotIterable(className string) error {
	return wireerr.New(wireerr.Unsupported, "class %q does not expose an iterator", className)
}

// IteratorHandle is the consumer-side counterpart of the iterator adapter
// below: a thin wrapper over the stub the peer handed back from `iter`,
// offering a single blocking Next instead of making callers speak the
// adapter's {"value","done"} wire shape directly.
type IteratorHandle struct {
	inner *Stub
}

// Next pulls the next value, returning done=true once the sequence is
// exhausted (mirrors Iterator.Next's local shape).
func (h *IteratorHandle) Next(ctx context.Context) (value any, done bool, err error) {
	result, err := h.inner.Call(ctx, "Next")
	if err != nil {
		return nil, false, err
	}
	m, ok := result.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("classmirror: malformed iterator result %#v", result)
	}
	doneVal, _ := m["done"].(bool)
	return m["value"], doneVal, nil
}

// ForEach drains an iterator stub, calling fn for each value until done or
// fn returns an error. It is the idiomatic-Go analog of the source
// runtime's for-await-of loop over a remote asyncIterator.
func ForEach(ctx context.Context, h *IteratorHandle, fn func(value any) error) error {
	for {
		v, done, err := h.Next(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// iteratorAdapter is the single shared local class behind every outbound
// `iter` response: it wraps whatever Iterator a domain object returned
// from NewIterator/NewAsyncIterator, advertised under one fixed class name
// so individual domain classes never need their own iterator class
// description: the iterator tag only needs one shape on the wire,
// regardless of how many iterable classes a program exposes.
type iteratorAdapter struct {
	it Iterator
}

// Next is the adapter's only exported method; RegisterIteratorClass
// advertises it as the Iterator class's single function member "Next"
// (not a getter).
func (a *iteratorAdapter) Next() (map[string]any, error) {
	value, done, err := a.it.Next()
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value, "done": done}, nil
}

// IteratorClassName is the fixed, reserved class name the adapter
// self-registers under.
const IteratorClassName = "Iterator"

// RegisterIteratorClass installs the shared iterator adapter's class
// description into reg. dispatch.NewCore calls this once per Registry; it
// is idempotent (Put no-ops on a duplicate name) so sharing a Registry
// across multiple Cores is safe.
func RegisterIteratorClass(reg *Registry) {
	if _, ok := reg.ByName(IteratorClassName); ok {
		return
	}
	desc := &ClassDescription{
		ClassName: IteratorClassName,
		Functions: []string{"Next"},
	}
	reg.Put(desc)
	reg.byType[reflect.TypeOf(iteratorAdapter{})] = desc
}

// wrapIterator boxes it behind the shared adapter type so gc.Bridge can
// expose it through the registry exactly like any other classed object.
func wrapIterator(it Iterator) *iteratorAdapter {
	return &iteratorAdapter{it: it}
}

// WrapIterator is the exported entry point dispatch uses when handling an
// inbound `iter` verb against a local Iterable/AsyncIterable object.
func WrapIterator(it Iterator) any {
	return wrapIterator(it)
}
