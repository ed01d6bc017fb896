package wire

import (
	"context"
	"fmt"
	"reflect"

	"github.com/benbucksch/jpc/classmirror"
	"github.com/benbucksch/jpc/gc"
	"github.com/benbucksch/jpc/registry"
	"github.com/benbucksch/jpc/wireerr"
)

// Marshaller implements the recursive Outgoing/Incoming conversion between
// live Go values and the wire Value grammar, using the registry for
// identity and classmirror for class shape and stub materialization.
type Marshaller struct {
	objects *registry.Registry
	classes *classmirror.Registry
	mirror  *classmirror.Mirror
	bridge  *gc.Bridge
	caller  classmirror.Caller
}

// New creates a Marshaller. caller is the dispatch.Core the resulting
// Stubs/FunctionStubs will route member access through.
func New(objects *registry.Registry, classes *classmirror.Registry, mirror *classmirror.Mirror, bridge *gc.Bridge, caller classmirror.Caller) *Marshaller {
	return &Marshaller{objects: objects, classes: classes, mirror: mirror, bridge: bridge, caller: caller}
}

// Outgoing converts a live Go value into its wire representation,
// describing any not-yet-seen class first, and promoting repeated
// plain-object/array identity within one call to a classed reference
// rather than recursing forever on a cyclic graph.
func (m *Marshaller) Outgoing(ctx context.Context, v any) (Value, error) {
	return m.outgoing(ctx, v, make(map[uintptr]string))
}

// visited maps a plain map/slice pointer already being walked in this call
// to the registry id minted for it, or "" if it's an ancestor still being
// walked (no repeat seen yet, so no id needed). Classed instances don't use
// this map; they always carry stable identity through the registry.
func (m *Marshaller) outgoing(ctx context.Context, v any, visited map[uintptr]string) (Value, error) {
	if v == nil {
		return Null(), nil
	}

	rv := reflect.ValueOf(v)

	// 1. Function values: always by reference, under the reserved
	// Function "class".
	if rv.Kind() == reflect.Func {
		id := m.bridge.ExposeLocal(v, FunctionClassName)
		return LocalRef(id, FunctionClassName), nil
	}

	// 2. A *classmirror.Stub or *classmirror.FunctionStub in hand is an
	// object the peer owns; handing it back is a remote reference.
	switch s := v.(type) {
	case *classmirror.Stub:
		return RemoteRef(s.ID), nil
	case *classmirror.FunctionStub:
		return RemoteRef(s.ID), nil
	}

	// 3. Plain data: map[string]any by value.
	if fields, ok := v.(map[string]any); ok {
		return m.outgoingPlainObject(ctx, rv, fields, visited)
	}

	// 4. Arrays/slices (other than []byte, which is a primitive on the
	// wire): recurse element-wise.
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		return m.outgoingArray(ctx, rv, visited)
	}

	// 5. A registered classed object: marshal by reference, including the
	// full instance body the first time this exact pointer is exposed.
	if desc, ok := m.classes.DescriptionFor(v); ok {
		return m.outgoingInstance(ctx, v, desc, visited)
	}

	// 6. Everything else (string, float64/int, bool) is a primitive.
	return Prim(v), nil
}

func (m *Marshaller) outgoingPlainObject(ctx context.Context, rv reflect.Value, fields map[string]any, visited map[uintptr]string) (Value, error) {
	ptr := rv.Pointer()
	if ptr != 0 {
		if ref, done := m.refForRepeat(rv, ptr, PlainObjectClassName, visited); done {
			return ref, nil
		}
		visited[ptr] = ""
		defer delete(visited, ptr)
	}
	out := make(map[string]Value, len(fields))
	for k, fv := range fields {
		ev, err := m.outgoing(ctx, fv, visited)
		if err != nil {
			return Value{}, err
		}
		out[k] = ev
	}
	return PlainObject(out), nil
}

func (m *Marshaller) outgoingArray(ctx context.Context, rv reflect.Value, visited map[uintptr]string) (Value, error) {
	if rv.Kind() == reflect.Slice {
		ptr := rv.Pointer()
		if ptr != 0 {
			if ref, done := m.refForRepeat(rv, ptr, ArrayClassName, visited); done {
				return ref, nil
			}
			visited[ptr] = ""
			defer delete(visited, ptr)
		}
	}
	out := make([]Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, err := m.outgoing(ctx, rv.Index(i).Interface(), visited)
		if err != nil {
			return Value{}, err
		}
		out[i] = ev
	}
	return Arr(out), nil
}

// refForRepeat checks whether ptr is already being walked higher up the same
// Outgoing call. The first time through, it is not (done == false) and the
// caller proceeds to recurse normally. On a repeat encounter — a cyclic
// back-edge — it promotes this plain map/slice to classed identity on the
// fly: mints a registry id for it (idempotent per pointer, same as a classed
// instance) and returns a LocalRef instead of recursing forever. The
// resulting ref is only meaningful within this one marshal call; nothing
// ever sent a matching instance/class description for className, so a peer
// that tried to dereference it standalone would fail with UnknownRemote.
func (m *Marshaller) refForRepeat(rv reflect.Value, ptr uintptr, className string, visited map[uintptr]string) (Value, bool) {
	id, seen := visited[ptr]
	if !seen {
		return Value{}, false
	}
	if id == "" {
		var firstExposure bool
		id, firstExposure = m.objects.IDFor(rv.Interface(), className)
		if firstExposure {
			m.bridge.AttachLocalFinalizer(rv.Interface(), id, className)
		}
		visited[ptr] = id
	}
	return LocalRef(id, className), true
}

func (m *Marshaller) outgoingInstance(ctx context.Context, v any, desc *classmirror.ClassDescription, visited map[uintptr]string) (Value, error) {
	id, firstExposure := m.objects.IDFor(v, desc.ClassName)
	if !firstExposure {
		return LocalRef(id, desc.ClassName), nil
	}
	m.bridge.AttachLocalFinalizer(v, id, desc.ClassName)

	if err := m.mirror.EnsureDescribed(ctx, desc.ClassName); err != nil {
		return Value{}, err
	}

	props := make(map[string]Value, len(desc.Properties))
	rv := reflect.ValueOf(v).Elem()
	for _, name := range desc.Properties {
		fv := rv.FieldByName(name)
		if !fv.IsValid() {
			continue
		}
		ev, err := m.outgoing(ctx, fv.Interface(), visited)
		if err != nil {
			return Value{}, err
		}
		props[name] = ev
	}
	return Instance(id, desc.ClassName, props), nil
}

// Incoming converts a received Value back into a live Go value: plain data
// decodes structurally, a remote reference/instance materializes (or
// reuses) a Stub, and an idRemote reference resolves to the local object
// the receiver previously exposed under that id.
func (m *Marshaller) Incoming(ctx context.Context, v Value) (any, error) {
	switch v.Kind {
	case KindPrimitive:
		return v.Prim, nil
	case KindArray:
		out := make([]any, len(v.Array))
		for i, ev := range v.Array {
			dv, err := m.Incoming(ctx, ev)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case KindPlainObject:
		out := make(map[string]any, len(v.PlainObj))
		for k, ev := range v.PlainObj {
			dv, err := m.Incoming(ctx, ev)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case KindRemoteRef:
		// The sender is handing back an object we exposed earlier.
		return m.objects.LocalFor(v.IDRemote)
	case KindLocalRef:
		return m.incomingRef(v.IDLocal, v.ClassName)
	case KindInstance:
		return m.incomingInstance(ctx, v)
	default:
		return nil, fmt.Errorf("wire: unhandled Value kind %d", v.Kind)
	}
}

func (m *Marshaller) incomingRef(id, className string) (any, error) {
	if className == FunctionClassName {
		if existing, ok := m.objects.RemoteFor(id); ok {
			return existing, nil
		}
		fs := classmirror.NewFunctionStub(id, m.caller)
		if err := m.bridge.TrackRemote(id, fs); err != nil {
			return nil, err
		}
		return fs, nil
	}
	existing, ok := m.objects.RemoteFor(id)
	if !ok {
		return nil, wireerr.New(wireerr.UnknownRemote, "reference to unknown id %q with no accompanying description", id)
	}
	return existing, nil
}

func (m *Marshaller) incomingInstance(ctx context.Context, v Value) (any, error) {
	if existing, ok := m.objects.RemoteFor(v.IDLocal); ok {
		return existing, nil
	}
	stub, err := m.mirror.NewIncomingStub(v.IDLocal, v.ClassName, m.caller)
	if err != nil {
		return nil, err
	}
	if err := m.bridge.TrackRemote(v.IDLocal, stub); err != nil {
		return nil, err
	}
	return stub, nil
}
