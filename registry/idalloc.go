package registry

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Object IDs are opaque strings; three allocators are offered here.
// Registry only requires uniqueness within the session, which IDFor
// itself double-checks against localById.

// CounterAllocator mints "<prefix>-<n>" tokens from a monotonic counter. It
// is the allocator this module's tests use, where deterministic, readable
// IDs make assertions easier to write.
type CounterAllocator struct {
	prefix string
	next   uint64
}

// NewCounterAllocator creates a counter-based allocator whose tokens are
// prefixed with prefix (e.g. the local peer's name).
func NewCounterAllocator(prefix string) *CounterAllocator {
	return &CounterAllocator{prefix: prefix}
}

// NextID returns the next monotonic token.
func (c *CounterAllocator) NextID() string {
	n := atomic.AddUint64(&c.next, 1)
	return fmt.Sprintf("%s-%d", c.prefix, n)
}

// UUIDAllocator mints RFC 4122 UUIDs via google/uuid and is the default
// allocator for jpc-peer.
type UUIDAllocator struct{}

// NextID returns a fresh random UUID.
func (UUIDAllocator) NextID() string {
	return uuid.New().String()
}

// HashIDAllocator derives printable tokens by hashing a monotonic counter
// together with a per-session random salt through BLAKE2b.
type HashIDAllocator struct {
	salt []byte
	next uint64
}

// NewHashIDAllocator creates a salted BLAKE2b-based allocator. The salt is
// drawn from math/rand; uniqueness comes from the counter, not the salt.
func NewHashIDAllocator() *HashIDAllocator {
	salt := make([]byte, 16)
	//nolint:gosec // identifier derivation, not a security boundary
	rand.Read(salt)
	return &HashIDAllocator{salt: salt}
}

// NextID returns the next salted-hash token.
func (h *HashIDAllocator) NextID() string {
	n := atomic.AddUint64(&h.next, 1)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	sum := blake2b.Sum256(append(append([]byte{}, h.salt...), buf[:]...))
	return hex.EncodeToString(sum[:10])
}
