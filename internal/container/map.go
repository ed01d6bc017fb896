// Package container provides small thread-safe collection types for state
// that inbound call handling may need to re-enter: a handler can
// synchronously trigger an outbound call that walks back into the same map
// before the original lock is released. Plain sync.RWMutex can't express
// that without self-deadlocking, so Process/ProcessRange hand the caller a
// "pid" token; as long as nested map access threads that same token through,
// it skips re-locking instead of blocking on itself.
package container

import (
	"math/rand"
	"sync"
)

// pidSet is a thread-safe set of in-flight process tokens.
type pidSet struct {
	mu   sync.Mutex
	seen map[int]struct{}
}

func newPidSet() *pidSet {
	return &pidSet{seen: make(map[int]struct{})}
}

func (s *pidSet) add(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[pid] = struct{}{}
}

func (s *pidSet) remove(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, pid)
}

func (s *pidSet) contains(pid int) bool {
	if pid == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[pid]
	return ok
}

func nextPid() int {
	// any process-unique non-zero value works; a single rand draw is
	// enough since collisions only matter within one lock's lifetime.
	for {
		if pid := rand.Int(); pid != 0 {
			return pid
		}
	}
}

// Map is a thread-safe mapping of comparable keys to values of any type.
type Map[K comparable, V any] struct {
	mu        sync.RWMutex
	m         map[K]V
	inProcess *pidSet
}

// New allocates an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m:         make(map[K]V),
		inProcess: newPidSet(),
	}
}

// Process runs f under the map lock and hands it a pid; f (and anything it
// calls) can pass that pid to Get/Put/Delete to reuse the held lock instead
// of deadlocking on it.
func (m *Map[K, V]) Process(f func(pid int) error, readonly bool) error {
	m.lock(readonly, 0)
	pid := nextPid()
	m.inProcess.add(pid)
	defer func() {
		m.inProcess.remove(pid)
		m.unlock(readonly, 0)
	}()
	return f(pid)
}

// ProcessRange ranges over the map itself (not a copy) under lock, same
// reentrancy guarantee as Process.
func (m *Map[K, V]) ProcessRange(f func(key K, value V, pid int) error, readonly bool) error {
	m.lock(readonly, 0)
	pid := nextPid()
	m.inProcess.add(pid)
	defer func() {
		m.inProcess.remove(pid)
		m.unlock(readonly, 0)
	}()
	for k, v := range m.m {
		if err := f(k, v, pid); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of entries in the map.
func (m *Map[K, V]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Put stores value under key. pid is 0 for a top-level call, or the token
// handed out by an enclosing Process/ProcessRange call.
func (m *Map[K, V]) Put(key K, value V, pid int) {
	m.lock(false, pid)
	defer m.unlock(false, pid)
	m.m[key] = value
}

// Get returns the value stored under key, if any.
func (m *Map[K, V]) Get(key K, pid int) (value V, ok bool) {
	m.lock(true, pid)
	defer m.unlock(true, pid)
	value, ok = m.m[key]
	return
}

// Delete removes key from the map.
func (m *Map[K, V]) Delete(key K, pid int) {
	m.lock(false, pid)
	defer m.unlock(false, pid)
	delete(m.m, key)
}

func (m *Map[K, V]) lock(readonly bool, pid int) {
	if m.inProcess.contains(pid) {
		return
	}
	if readonly {
		m.mu.RLock()
	} else {
		m.mu.Lock()
	}
}

func (m *Map[K, V]) unlock(readonly bool, pid int) {
	if m.inProcess.contains(pid) {
		return
	}
	if readonly {
		m.mu.RUnlock()
	} else {
		m.mu.Unlock()
	}
}
