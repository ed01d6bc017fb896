// Package gc watches local-held stubs and local-exposed objects for
// collection by the host's garbage collector, erasing registry slots and
// notifying the peer when a stub dies.
//
// Go's runtime.SetFinalizer is exactly the host facility needed to schedule
// a callback after a target is collected, and it's always present — this
// package never needs a no-finalizer degrade path. Within this package the
// Unsupported kind in wireerr is only produced (as a one-time warning) if a
// caller explicitly disables finalization (WithFinalization(false)), e.g.
// for deterministic tests that drive collection by hand.
package gc

import (
	"context"
	"runtime"

	"github.com/bfix/gospel/logger"

	"github.com/benbucksch/jpc/registry"
	"github.com/benbucksch/jpc/wireerr"
)

// DelSender sends the del verb for a released remote ID. dispatch.Core
// implements this.
type DelSender interface {
	SendDel(ctx context.Context, id string) error
}

// Bridge wires registry entries to the host's finalization facility.
type Bridge struct {
	reg         *registry.Registry
	sender      DelSender
	finalizable bool
	warnedOnce  bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithFinalization enables or disables host finalizer registration. It
// defaults to true; tests that want deterministic, hand-driven collection
// pass false and call Bridge.ForceReleaseLocal/ForceReleaseRemote instead.
func WithFinalization(enabled bool) Option {
	return func(b *Bridge) { b.finalizable = enabled }
}

// New creates a Bridge over reg, sending del verbs for collected stubs via
// sender.
func New(reg *registry.Registry, sender DelSender, opts ...Option) *Bridge {
	b := &Bridge{reg: reg, sender: sender, finalizable: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ExposeLocal registers obj under class (if not already registered) and
// arranges for the registry entry to be erased once obj is collected with
// no remaining strong holder. Returns the assigned ID.
func (b *Bridge) ExposeLocal(obj any, class string) string {
	id, first := b.reg.IDFor(obj, class)
	if first {
		b.AttachLocalFinalizer(obj, id, class)
	}
	return id
}

// AttachLocalFinalizer installs the collection hook for a local entry the
// caller already registered via Registry.IDFor directly (used by the
// marshaller, which needs the firstExposure flag from IDFor itself to
// decide whether to emit a full instance body).
func (b *Bridge) AttachLocalFinalizer(obj any, id, class string) {
	if !b.finalizable {
		b.warnUnsupportedOnce()
		return
	}
	runtime.SetFinalizer(obj, func(any) {
		logger.Printf(logger.DBG, "[gc] local object %s (%s) collected, erasing registry slot", id, class)
		b.reg.EraseLocal(id)
	})
}

// TrackRemote registers a freshly materialized stub under id and arranges
// to send del once the stub is collected by the holder.
func (b *Bridge) TrackRemote(id string, stub any) error {
	if err := b.reg.RegisterRemote(id, stub); err != nil {
		return err
	}
	if !b.finalizable {
		b.warnUnsupportedOnce()
		return nil
	}
	runtime.SetFinalizer(stub, func(any) {
		logger.Printf(logger.DBG, "[gc] stub %s collected, sending del", id)
		b.reg.EraseRemote(id)
		// send failures are logged, not panicked: the stub is already
		// gone locally; the peer will reconcile or time out.
		if err := b.sender.SendDel(context.Background(), id); err != nil {
			logger.Printf(logger.WARN, "[gc] del for %s failed: %s", id, err)
		}
	})
	return nil
}

// ForceReleaseLocal erases a local entry immediately, bypassing the host
// GC. Used by tests run with WithFinalization(false) to stand in for a
// collection deterministically. It sends nothing to the peer.
func (b *Bridge) ForceReleaseLocal(id string) {
	b.reg.EraseLocal(id)
}

// ForceReleaseRemote erases a remote entry and sends del immediately,
// bypassing the host GC, for the same reason as ForceReleaseLocal.
func (b *Bridge) ForceReleaseRemote(ctx context.Context, id string) error {
	b.reg.EraseRemote(id)
	return b.sender.SendDel(ctx, id)
}

func (b *Bridge) warnUnsupportedOnce() {
	if b.warnedOnce {
		return
	}
	b.warnedOnce = true
	logger.Printf(logger.WARN, "[gc] %s", wireerr.New(wireerr.Unsupported, "finalization disabled; registry entries will not be reclaimed automatically"))
}
