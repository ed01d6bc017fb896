package classmirror

import (
	"context"

	"github.com/benbucksch/jpc/internal/container"
	"github.com/benbucksch/jpc/wireerr"
)

// ClassSender delivers class descriptions to the peer via the `class`
// verb. dispatch.Core implements this.
type ClassSender interface {
	SendClass(ctx context.Context, descs []*ClassDescription) error
}

// Mirror is the per-peer-connection state of component C: which classes
// have already been described outbound, and the table of classes
// mirrored from the peer's descriptions.
type Mirror struct {
	reg    *Registry
	sender ClassSender

	// sent tracks, per class name, whether its description has already
	// gone out. EnsureDescribed uses only top-level Get/Put calls (pid 0),
	// each taking and releasing the map lock on its own; no lock is held
	// across SendClass, so a nested EnsureDescribed made while a class
	// description is in flight does not block.
	sent *container.Map[string, bool]
}

// NewMirror creates a Mirror backed by reg (the shared class schema) that
// delivers outgoing descriptions through sender.
func NewMirror(reg *Registry, sender ClassSender) *Mirror {
	return &Mirror{reg: reg, sender: sender, sent: container.New[string, bool]()}
}

// Registry returns the underlying class schema.
func (m *Mirror) Registry() *Registry { return m.reg }

// EnsureDescribed sends the class description for className, and every
// not-yet-sent ancestor, before returning — parent before child, and
// always ahead of the verb that carries an instance of that class.
func (m *Mirror) EnsureDescribed(ctx context.Context, className string) error {
	chain := m.reg.Ancestors(className) // parent-first
	var pending []*ClassDescription
	for _, d := range chain {
		if sent, _ := m.sent.Get(d.ClassName, 0); !sent {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if err := m.sender.SendClass(ctx, pending); err != nil {
		return err
	}
	for _, d := range pending {
		m.sent.Put(d.ClassName, true, 0)
	}
	return nil
}

// Install records class descriptions received from the peer via the
// `class` verb. Rejects a description whose Extends parent hasn't been
// installed yet (UnknownParentClass) — parents must always arrive first.
func (m *Mirror) Install(descs []*ClassDescription) error {
	for _, d := range descs {
		if d.Extends != "" {
			if _, ok := m.reg.ByName(d.Extends); !ok {
				return wireerr.New(wireerr.UnknownParentClass,
					"class %q extends unknown parent %q", d.ClassName, d.Extends)
			}
		}
		m.reg.Put(d)
	}
	return nil
}

// NewIncomingStub materializes a Stub for a freshly received instance
// introduction. className must already have been installed.
func (m *Mirror) NewIncomingStub(id, className string, caller Caller) (*Stub, error) {
	desc, ok := m.reg.ByName(className)
	if !ok {
		return nil, wireerr.New(wireerr.UnknownRemote, "no class description for %q", className)
	}
	return &Stub{ID: id, ClassName: className, iteratorTag: desc.Iterator, caller: caller}, nil
}
