package wire

import (
	"context"
	"testing"

	"github.com/benbucksch/jpc/classmirror"
	"github.com/benbucksch/jpc/gc"
	"github.com/benbucksch/jpc/registry"
)

type Car struct {
	Owner string
}

func (c *Car) GetOwner() string { return c.Owner }

type fakeClassSender struct {
	sent []*classmirror.ClassDescription
}

func (f *fakeClassSender) SendClass(ctx context.Context, descs []*classmirror.ClassDescription) error {
	f.sent = append(f.sent, descs...)
	return nil
}

type fakeDelSender struct{}

func (fakeDelSender) SendDel(ctx context.Context, id string) error { return nil }

type fakeCaller struct{}

func (fakeCaller) CallFunc(ctx context.Context, id, name string, args []any) (any, error) {
	return nil, nil
}
func (fakeCaller) CallCallable(ctx context.Context, id string, args []any) (any, error) {
	return nil, nil
}
func (fakeCaller) CallGet(ctx context.Context, id, name string) (any, error) { return nil, nil }
func (fakeCaller) CallSet(ctx context.Context, id, name string, value any) error {
	return nil
}
func (fakeCaller) CallIter(ctx context.Context, id, symbol string) (*classmirror.Stub, error) {
	return nil, nil
}
func (fakeCaller) CallNew(ctx context.Context, className string, args []any) (any, error) {
	return nil, nil
}

func newTestMarshaller(t *testing.T) (*Marshaller, *registry.Registry, *classmirror.Registry) {
	t.Helper()
	objects := registry.New(registry.NewCounterAllocator("t"))
	classes := classmirror.NewRegistry()
	if _, err := classes.Register("Car", (*Car)(nil)); err != nil {
		t.Fatalf("Register Car: %s", err)
	}
	mirror := classmirror.NewMirror(classes, &fakeClassSender{})
	bridge := gc.New(objects, fakeDelSender{}, gc.WithFinalization(false))
	m := New(objects, classes, mirror, bridge, fakeCaller{})
	return m, objects, classes
}

func TestOutgoingPrimitive(t *testing.T) {
	m, _, _ := newTestMarshaller(t)
	v, err := m.Outgoing(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Outgoing: %s", err)
	}
	if v.Kind != KindPrimitive || v.Prim != "hello" {
		t.Fatalf("got %#v", v)
	}
}

func TestOutgoingNil(t *testing.T) {
	m, _, _ := newTestMarshaller(t)
	v, err := m.Outgoing(context.Background(), nil)
	if err != nil {
		t.Fatalf("Outgoing: %s", err)
	}
	if v.Kind != KindPrimitive || v.Prim != nil {
		t.Fatalf("got %#v", v)
	}
}

func TestOutgoingClassedInstanceFirstAndSecondExposure(t *testing.T) {
	m, objects, _ := newTestMarshaller(t)
	car := &Car{Owner: "Fred"}

	v1, err := m.Outgoing(context.Background(), car)
	if err != nil {
		t.Fatalf("first Outgoing: %s", err)
	}
	if v1.Kind != KindInstance || v1.ClassName != "Car" || v1.Properties["Owner"].Prim != "Fred" {
		t.Fatalf("got %#v", v1)
	}
	if _, err := objects.LocalFor(v1.IDLocal); err != nil {
		t.Fatalf("expected the id to be registered: %s", err)
	}

	v2, err := m.Outgoing(context.Background(), car)
	if err != nil {
		t.Fatalf("second Outgoing: %s", err)
	}
	if v2.Kind != KindLocalRef || v2.IDLocal != v1.IDLocal {
		t.Fatalf("second exposure should be a bare LocalRef to the same id, got %#v", v2)
	}
}

func TestOutgoingArray(t *testing.T) {
	m, _, _ := newTestMarshaller(t)
	v, err := m.Outgoing(context.Background(), []any{"a", 1.0, true})
	if err != nil {
		t.Fatalf("Outgoing: %s", err)
	}
	if v.Kind != KindArray || len(v.Array) != 3 {
		t.Fatalf("got %#v", v)
	}
}

func TestOutgoingPlainObjectCyclePromotesToReference(t *testing.T) {
	m, objects, _ := newTestMarshaller(t)
	cyclic := make(map[string]any)
	cyclic["self"] = cyclic

	v, err := m.Outgoing(context.Background(), cyclic)
	if err != nil {
		t.Fatalf("Outgoing: %s", err)
	}
	if v.Kind != KindPlainObject {
		t.Fatalf("outer occurrence should stay a bare plain object, got %#v", v)
	}
	back := v.PlainObj["self"]
	if back.Kind != KindLocalRef || back.ClassName != PlainObjectClassName || back.IDLocal == "" {
		t.Fatalf("back-edge should be promoted to a classed LocalRef, got %#v", back)
	}
	if _, err := objects.LocalFor(back.IDLocal); err != nil {
		t.Fatalf("promoted back-edge should be registered: %s", err)
	}
}

func TestOutgoingArrayCyclePromotesToReference(t *testing.T) {
	m, objects, _ := newTestMarshaller(t)
	cyclic := make([]any, 1)
	cyclic[0] = cyclic

	v, err := m.Outgoing(context.Background(), cyclic)
	if err != nil {
		t.Fatalf("Outgoing: %s", err)
	}
	if v.Kind != KindArray {
		t.Fatalf("outer occurrence should stay a bare array, got %#v", v)
	}
	back := v.Array[0]
	if back.Kind != KindLocalRef || back.ClassName != ArrayClassName || back.IDLocal == "" {
		t.Fatalf("back-edge should be promoted to a classed LocalRef, got %#v", back)
	}
	if _, err := objects.LocalFor(back.IDLocal); err != nil {
		t.Fatalf("promoted back-edge should be registered: %s", err)
	}
}

func TestOutgoingFunctionValue(t *testing.T) {
	m, objects, _ := newTestMarshaller(t)
	fn := func() {}
	v, err := m.Outgoing(context.Background(), fn)
	if err != nil {
		t.Fatalf("Outgoing: %s", err)
	}
	if v.Kind != KindLocalRef || v.ClassName != FunctionClassName {
		t.Fatalf("got %#v", v)
	}
	if _, err := objects.LocalFor(v.IDLocal); err != nil {
		t.Fatalf("function value should be registered: %s", err)
	}
}

func TestIncomingPrimitiveAndArray(t *testing.T) {
	m, _, _ := newTestMarshaller(t)
	got, err := m.Incoming(context.Background(), Arr([]Value{Prim("x"), Prim(2.0)}))
	if err != nil {
		t.Fatalf("Incoming: %s", err)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 2 || arr[0] != "x" {
		t.Fatalf("got %#v", got)
	}
}

func TestIncomingRemoteRefResolvesLocal(t *testing.T) {
	m, objects, _ := newTestMarshaller(t)
	car := &Car{Owner: "Wilma"}
	id, _ := objects.IDFor(car, "Car")

	got, err := m.Incoming(context.Background(), RemoteRef(id))
	if err != nil {
		t.Fatalf("Incoming: %s", err)
	}
	if got != any(car) {
		t.Fatalf("expected to resolve back to the exact local object, got %#v", got)
	}
}

func TestIncomingRemoteRefUnknown(t *testing.T) {
	m, _, _ := newTestMarshaller(t)
	if _, err := m.Incoming(context.Background(), RemoteRef("nope")); err == nil {
		t.Fatal("expected an error for an unknown remote ref")
	}
}

func TestIncomingInstanceMaterializesStubOnce(t *testing.T) {
	m, _, classes := newTestMarshaller(t)
	classes.Put(&classmirror.ClassDescription{ClassName: "Car"})

	v := Instance("car-9", "Car", map[string]Value{"Owner": Prim("Barney")})
	got1, err := m.Incoming(context.Background(), v)
	if err != nil {
		t.Fatalf("first Incoming: %s", err)
	}
	stub1, ok := got1.(*classmirror.Stub)
	if !ok {
		t.Fatalf("expected a *classmirror.Stub, got %T", got1)
	}

	// A second instance introduction for the same id should reuse the
	// already-materialized stub rather than building a second one.
	got2, err := m.Incoming(context.Background(), v)
	if err != nil {
		t.Fatalf("second Incoming: %s", err)
	}
	if got2.(*classmirror.Stub) != stub1 {
		t.Fatal("expected the same stub instance to be reused")
	}
}

func TestIncomingFunctionRefMaterializesFunctionStub(t *testing.T) {
	m, _, _ := newTestMarshaller(t)
	v := LocalRef("fn-1", FunctionClassName)
	got, err := m.Incoming(context.Background(), v)
	if err != nil {
		t.Fatalf("Incoming: %s", err)
	}
	if _, ok := got.(*classmirror.FunctionStub); !ok {
		t.Fatalf("expected a *classmirror.FunctionStub, got %T", got)
	}
}
