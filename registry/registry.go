// Package registry implements the bidirectional map between object IDs and
// the local/remote objects they name.
//
// Go has no WeakRef-with-deref primitive that can be applied to a value of
// a type only known at runtime (weak.Pointer[T] requires T to be fixed at
// compile time, and every exposed object's type is erased to `any` by the
// time it reaches this package). A demoted ("weak") entry is only ever
// re-promoted by a fresh call to IDFor with the very same object in hand
// (the local process re-exposing something it still holds) — never by
// dereferencing an ID alone once the entry has been demoted. So a demoted
// entry needs no way to resurrect a value it doesn't have a handle to; it
// only needs to (a) remember the ID so a future IDFor(sameObject) reuses
// it, and (b) let the host's real GC reclaim the entry once nothing,
// anywhere, still points at the object. Package gc supplies (b) with
// runtime.SetFinalizer. Dropping weak.Pointer here is a deliberate
// simplification, recorded in DESIGN.md.
package registry

import (
	"reflect"
	"sync"

	"github.com/benbucksch/jpc/wireerr"
)

// IDAllocator mints process-unique, printable object IDs.
type IDAllocator interface {
	NextID() string
}

type localEntry struct {
	id    string
	class string
	// strong holds the exposed value until the peer releases it; nil once
	// demoted to weak.
	strong any
}

type remoteEntry struct {
	id   string
	stub any // always a *classmirror.Stub; kept as `any` to avoid an import cycle
}

// Registry is the bidirectional identity map for one peer connection.
type Registry struct {
	mu sync.Mutex

	localByID  map[string]*localEntry
	localByPtr map[uintptr]*localEntry // non-owning: keyed by pointer value, not a reference

	remoteByID map[string]*remoteEntry

	alloc IDAllocator
}

// New creates an empty Registry using alloc to mint new local IDs.
func New(alloc IDAllocator) *Registry {
	return &Registry{
		localByID:  make(map[string]*localEntry),
		localByPtr: make(map[uintptr]*localEntry),
		remoteByID: make(map[string]*remoteEntry),
		alloc:      alloc,
	}
}

// IDFor returns the ID for obj, allocating one and registering it strongly
// under class if this is the first time obj has been exposed. Re-exposing
// a previously demoted entry re-promotes it to strong under its old ID and
// also reports firstExposure, since the peer released its stub and needs
// the full instance body again.
// obj must have stable pointer identity (classed objects, functions, plain
// maps and slices are all marshaled by reference once registered here).
func (r *Registry) IDFor(obj any, class string) (id string, firstExposure bool) {
	ptr, ok := ptrKey(obj)
	if !ok {
		panic("registry: IDFor requires a pointer, func, map, slice or chan")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.localByPtr[ptr]; ok {
		wasDemoted := e.strong == nil
		e.strong = obj // re-promote
		return e.id, wasDemoted
	}
	id = r.alloc.NextID()
	for _, exists := r.localByID[id]; exists; _, exists = r.localByID[id] {
		id = r.alloc.NextID() // re-roll on collision; uniqueness checked against localByID
	}
	e := &localEntry{id: id, class: class, strong: obj}
	r.localByID[id] = e
	r.localByPtr[ptr] = e
	return id, true
}

// LocalFor dereferences a local ID. Fails with UnknownLocal if the entry
// was never registered, was demoted (and thus has nothing to hand back —
// see package doc), or was erased.
func (r *Registry) LocalFor(id string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.localByID[id]
	if !ok || e.strong == nil {
		return nil, wireerr.New(wireerr.UnknownLocal, "no live local object for id %q", id)
	}
	return e.strong, nil
}

// ClassOf returns the class name an ID was exposed under.
func (r *Registry) ClassOf(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.localByID[id]
	if !ok {
		return "", false
	}
	return e.class, true
}

// ReleaseLocal handles an inbound del: demotes the entry to weak (strong =
// nil) if currently strong. A no-op if already weak or unknown (a
// duplicate/late del is harmless).
func (r *Registry) ReleaseLocal(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.localByID[id]; ok {
		e.strong = nil
	}
}

// EraseLocal fully erases a local entry (called once the host GC proves
// nothing references the object anymore).
func (r *Registry) EraseLocal(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.localByID[id]; ok {
		delete(r.localByID, id)
		for ptr, pe := range r.localByPtr {
			if pe == e {
				delete(r.localByPtr, ptr)
				break
			}
		}
	}
}

// RemoteFor dereferences a remote (stub) ID without error, returning
// (nil, false) if no live stub exists for it.
func (r *Registry) RemoteFor(id string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.remoteByID[id]
	if !ok {
		return nil, false
	}
	return e.stub, true
}

// RegisterRemote inserts a freshly materialized stub. Fails with
// DuplicateRemote if a live stub already exists for id.
func (r *Registry) RegisterRemote(id string, stub any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remoteByID[id]; ok {
		return wireerr.New(wireerr.DuplicateRemote, "stub already live for id %q", id)
	}
	r.remoteByID[id] = &remoteEntry{id: id, stub: stub}
	return nil
}

// EraseRemote removes a stub entry (called once the host GC collects the
// stub, just before gc.Bridge sends del).
func (r *Registry) EraseRemote(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remoteByID, id)
}

// Snapshot is a read-only, JSON-friendly dump of live registry entries,
// for the httprpc transport's operator debug endpoint.
type Snapshot struct {
	Local  map[string]string `json:"local"`  // id -> class, strong entries only
	Remote []string          `json:"remote"` // live stub ids
}

// Snapshot captures the current registry contents.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{Local: make(map[string]string)}
	for id, e := range r.localByID {
		if e.strong != nil {
			s.Local[id] = e.class
		}
	}
	for id := range r.remoteByID {
		s.Remote = append(s.Remote, id)
	}
	return s
}

// ptrKey extracts a stable pointer-identity key from obj. Any Go kind whose
// reflect.Value exposes Pointer() — not just struct pointers — can anchor
// an identity: functions (for callback values) and plain maps/slices (for
// promoting a repeated plain-data reference to a classed one, see
// wire/marshal.go) share this registry the same way classed instances do.
func ptrKey(obj any) (uintptr, bool) {
	v := reflect.ValueOf(obj)
	if !v.IsValid() {
		return 0, false
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	default:
		return 0, false
	}
}
