package dispatch

import (
	"context"
	"testing"

	"github.com/benbucksch/jpc/classmirror"
	"github.com/benbucksch/jpc/gc"
	"github.com/benbucksch/jpc/registry"
	"github.com/benbucksch/jpc/transport/pipe"
)

// Counter is a minimal domain object exercising get/set/func/iter/new
// end to end over an in-process pipe pair.
type Counter struct {
	value float64
}

func (c *Counter) GetValue() float64  { return c.value }
func (c *Counter) SetValue(v float64) { c.value = v }
func (c *Counter) Increment()         { c.value++ }

type countIterator struct {
	n, max int
}

func (it *countIterator) Next() (any, bool, error) {
	if it.n >= it.max {
		return nil, true, nil
	}
	v := it.n
	it.n++
	return float64(v), false, nil
}

func (c *Counter) NewIterator() classmirror.Iterator {
	return &countIterator{max: 3}
}

func newPairedCores(t *testing.T, seed any) (client, server *Core) {
	t.Helper()
	a, b := pipe.NewPair("client", "server")

	serverObjects := registry.New(registry.NewCounterAllocator("s"))
	serverClasses := classmirror.NewRegistry()
	if _, err := serverClasses.Register("Counter", (*Counter)(nil)); err != nil {
		t.Fatalf("Register Counter: %s", err)
	}
	server = NewCore(b, serverObjects, serverClasses, seed, gc.WithFinalization(false))

	clientObjects := registry.New(registry.NewCounterAllocator("c"))
	clientClasses := classmirror.NewRegistry()
	client = NewCore(a, clientObjects, clientClasses, nil, gc.WithFinalization(false))
	return client, server
}

func TestStartHandshakeReturnsStub(t *testing.T) {
	client, _ := newPairedCores(t, &Counter{value: 1})
	remote, err := client.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %s", err)
	}
	stub, ok := remote.(*classmirror.Stub)
	if !ok {
		t.Fatalf("expected a *classmirror.Stub seed, got %T", remote)
	}
	if stub.ClassName != "Counter" {
		t.Fatalf("got className %q", stub.ClassName)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, server := newPairedCores(t, &Counter{value: 5})
	remote, err := client.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %s", err)
	}
	stub := remote.(*classmirror.Stub)

	got, err := stub.Get(ctx, "Value")
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if got != float64(5) {
		t.Fatalf("got %v, want 5", got)
	}

	if err := stub.Set(ctx, "Value", float64(42)); err != nil {
		t.Fatalf("Set: %s", err)
	}
	got2, err := stub.Get(ctx, "Value")
	if err != nil {
		t.Fatalf("Get after Set: %s", err)
	}
	if got2 != float64(42) {
		t.Fatalf("got %v after set, want 42", got2)
	}
	_ = server
}

func TestCallInvokesMethodAndMutatesState(t *testing.T) {
	ctx := context.Background()
	counter := &Counter{value: 0}
	client, _ := newPairedCores(t, counter)
	remote, err := client.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %s", err)
	}
	stub := remote.(*classmirror.Stub)

	if _, err := stub.Call(ctx, "Increment"); err != nil {
		t.Fatalf("Call Increment: %s", err)
	}
	if counter.value != 1 {
		t.Fatalf("server-side state = %v, want 1", counter.value)
	}
}

func TestIterateDrainsRemoteIterator(t *testing.T) {
	ctx := context.Background()
	client, _ := newPairedCores(t, &Counter{})
	remote, err := client.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %s", err)
	}
	stub := remote.(*classmirror.Stub)

	handle, err := stub.Iterate(ctx)
	if err != nil {
		t.Fatalf("Iterate: %s", err)
	}
	var values []any
	for {
		v, done, err := handle.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %s", err)
		}
		if done {
			break
		}
		values = append(values, v)
	}
	if len(values) != 3 {
		t.Fatalf("got %d values, want 3: %#v", len(values), values)
	}
}

func TestNewVerbConstructsRemoteInstance(t *testing.T) {
	ctx := context.Background()
	client, server := newPairedCores(t, &Counter{})
	server.RegisterConstructor("Counter", func(args []any) (any, error) {
		return &Counter{value: 100}, nil
	})
	if _, err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %s", err)
	}

	result, err := client.NewRemote(ctx, "Counter")
	if err != nil {
		t.Fatalf("NewRemote: %s", err)
	}
	stub, ok := result.(*classmirror.Stub)
	if !ok {
		t.Fatalf("expected a *classmirror.Stub, got %T", result)
	}
	got, err := stub.Get(ctx, "Value")
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if got != float64(100) {
		t.Fatalf("got %v, want 100", got)
	}
}

func TestDelReleasesLocalEntry(t *testing.T) {
	ctx := context.Background()
	counter := &Counter{value: 1}
	client, server := newPairedCores(t, counter)
	remote, err := client.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %s", err)
	}
	stub := remote.(*classmirror.Stub)

	// Simulate the client dropping its stub: its gc.Bridge would normally
	// send del on host-GC collection, but here we drive it directly via
	// the client Core's own del sender, exercising the same `del` verb the
	// server's handleDel installs.
	if err := client.SendDel(ctx, stub.ID); err != nil {
		t.Fatalf("SendDel: %s", err)
	}
	if _, err := server.objects.LocalFor(stub.ID); err == nil {
		t.Fatal("expected the server's local entry to be released after del")
	}
}
