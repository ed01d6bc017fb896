package classmirror

import "context"

// Caller is the subset of dispatch.Core a Stub needs to turn member access
// into outbound wire verbs. Kept as an interface here (rather than
// importing dispatch directly) to avoid a classmirror<->dispatch import
// cycle: dispatch needs classmirror's types to build Stubs, so the
// dependency must run the other way.
type Caller interface {
	CallFunc(ctx context.Context, id, name string, args []any) (any, error)
	CallCallable(ctx context.Context, id string, args []any) (any, error)
	CallGet(ctx context.Context, id, name string) (any, error)
	CallSet(ctx context.Context, id, name string, value any) error
	CallIter(ctx context.Context, id, symbol string) (*Stub, error)
	CallNew(ctx context.Context, className string, args []any) (any, error)
}

// Stub stands in for a remote classed object. Every member access is a
// name lookup against the class description followed by one round trip
// through caller; there is no local prototype object to walk.
type Stub struct {
	ID          string
	ClassName   string
	iteratorTag string // "iterator", "asyncIterator", or "" if not iterable
	caller      Caller
}

// NewStub wraps an already-known remote id/className pair. Used when the
// caller already knows the class's iterator tag; Mirror.NewIncomingStub
// builds the same record after looking up the class description.
func NewStub(id, className, iteratorTag string, caller Caller) *Stub {
	return &Stub{ID: id, ClassName: className, iteratorTag: iteratorTag, caller: caller}
}

// Call invokes a remote function member by name (the `func` verb).
func (s *Stub) Call(ctx context.Context, name string, args ...any) (any, error) {
	return s.caller.CallFunc(ctx, s.ID, name, args)
}

// Get fetches a remote getter property (the `get` verb).
func (s *Stub) Get(ctx context.Context, name string) (any, error) {
	return s.caller.CallGet(ctx, s.ID, name)
}

// Set assigns a remote settable property (the `set` verb).
func (s *Stub) Set(ctx context.Context, name string, value any) error {
	return s.caller.CallSet(ctx, s.ID, name, value)
}

// Iterate requests an iterator stub over the object (the `iter` verb),
// using whichever symbol ("iterator"/"asyncIterator") this class
// advertised. Returns an error if the class isn't iterable.
func (s *Stub) Iterate(ctx context.Context) (*IteratorHandle, error) {
	if s.iteratorTag == "" {
		return nil, errNotIterable(s.ClassName)
	}
	remote, err := s.caller.CallIter(ctx, s.ID, s.iteratorTag)
	if err != nil {
		return nil, err
	}
	return &IteratorHandle{inner: remote}, nil
}

// FunctionStub stands in for a remote bare callable (a Go func value
// exposed by the peer), distinct from a classed object's member function.
type FunctionStub struct {
	ID     string
	caller Caller
}

// NewFunctionStub wraps an already-known remote callable id.
func NewFunctionStub(id string, caller Caller) *FunctionStub {
	return &FunctionStub{ID: id, caller: caller}
}

// Call invokes the remote callable (the `call` verb).
func (f *FunctionStub) Call(ctx context.Context, args ...any) (any, error) {
	return f.caller.CallCallable(ctx, f.ID, args)
}
