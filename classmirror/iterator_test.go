package classmirror

import (
	"context"
	"errors"
	"testing"
)

type sliceIterator struct {
	values []any
	pos    int
}

func (s *sliceIterator) Next() (any, bool, error) {
	if s.pos >= len(s.values) {
		return nil, true, nil
	}
	v := s.values[s.pos]
	s.pos++
	return v, false, nil
}

func TestRegisterIteratorClassIsIdempotentAndWiresByType(t *testing.T) {
	reg := NewRegistry()
	RegisterIteratorClass(reg)
	RegisterIteratorClass(reg) // must not panic or duplicate

	desc, ok := reg.ByName(IteratorClassName)
	if !ok || len(desc.Functions) != 1 || desc.Functions[0] != "Next" {
		t.Fatalf("got desc %#v", desc)
	}

	adapter := WrapIterator(&sliceIterator{values: []any{1, 2}})
	if _, ok := reg.DescriptionFor(adapter); !ok {
		t.Fatal("wrapped iterator should resolve to the Iterator class via DescriptionFor")
	}
}

func TestIteratorAdapterNext(t *testing.T) {
	adapter := wrapIterator(&sliceIterator{values: []any{"a", "b"}})

	m1, err := adapter.Next()
	if err != nil || m1["done"] != false || m1["value"] != "a" {
		t.Fatalf("first Next: %#v, %v", m1, err)
	}
	m2, _ := adapter.Next()
	if m2["value"] != "b" || m2["done"] != false {
		t.Fatalf("second Next: %#v", m2)
	}
	m3, _ := adapter.Next()
	if m3["done"] != true {
		t.Fatalf("third Next should be done: %#v", m3)
	}
}

// fakeIterCaller drives a Stub's Call("Next") against an in-process
// iteratorAdapter, standing in for a real remote round trip.
type fakeIterCaller struct {
	adapter *iteratorAdapter
}

func (f *fakeIterCaller) CallFunc(ctx context.Context, id, name string, args []any) (any, error) {
	m, err := f.adapter.Next()
	if err != nil {
		return nil, err
	}
	return m, nil
}
func (f *fakeIterCaller) CallCallable(ctx context.Context, id string, args []any) (any, error) {
	return nil, nil
}
func (f *fakeIterCaller) CallGet(ctx context.Context, id, name string) (any, error) { return nil, nil }
func (f *fakeIterCaller) CallSet(ctx context.Context, id, name string, value any) error {
	return nil
}
func (f *fakeIterCaller) CallIter(ctx context.Context, id, symbol string) (*Stub, error) {
	return nil, nil
}
func (f *fakeIterCaller) CallNew(ctx context.Context, className string, args []any) (any, error) {
	return nil, nil
}

func TestForEachDrainsUntilDone(t *testing.T) {
	c := &fakeIterCaller{adapter: wrapIterator(&sliceIterator{values: []any{1, 2, 3}})}
	handle := &IteratorHandle{inner: NewStub("iter-1", IteratorClassName, "", c)}

	var seen []any
	err := ForEach(context.Background(), handle, func(v any) error {
		seen = append(seen, v)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %s", err)
	}
	if len(seen) != 3 {
		t.Fatalf("got %d values, want 3", len(seen))
	}
}

func TestForEachPropagatesCallbackError(t *testing.T) {
	c := &fakeIterCaller{adapter: wrapIterator(&sliceIterator{values: []any{1}})}
	handle := &IteratorHandle{inner: NewStub("iter-1", IteratorClassName, "", c)}

	boom := errors.New("boom")
	err := ForEach(context.Background(), handle, func(v any) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
}
