// Package idmap implements the bijection between stable external node ids
// (opaque strings from the graph provider) and the dense u32 indices the
// Integrator and wire protocol operate on.
package idmap

import (
	"errors"
	"sync"
)

// ErrCapacity is returned by Intern once the id space is exhausted.
var ErrCapacity = errors.New("idmap: capacity exceeded")

// maxIndex is the largest assignable index; interning an id once maxIndex
// has been assigned fails.
const maxIndex = ^uint32(0) - 1

// IdMap is a read-mostly bijection, safe for concurrent use. Writes only
// occur on first appearance of a new external id or on a full Reset (graph
// provider reload); both are guarded by a single mutex.
type IdMap struct {
	mu       sync.RWMutex
	toIndex  map[string]uint32
	toExtern []string
}

// New returns an empty IdMap.
func New() *IdMap {
	return &IdMap{
		toIndex: make(map[string]uint32),
	}
}

// Intern returns the dense index for externalID, assigning the next free,
// stable index on first appearance. Returns ErrCapacity once the u32 space
// is exhausted.
func (m *IdMap) Intern(externalID string) (uint32, error) {
	m.mu.RLock()
	if idx, ok := m.toIndex[externalID]; ok {
		m.mu.RUnlock()
		return idx, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check: another writer may have interned this id while we waited for the lock.
	if idx, ok := m.toIndex[externalID]; ok {
		return idx, nil
	}

	if uint32(len(m.toExtern)) > maxIndex {
		return 0, ErrCapacity
	}

	idx := uint32(len(m.toExtern))
	m.toIndex[externalID] = idx
	m.toExtern = append(m.toExtern, externalID)
	return idx, nil
}

// Resolve returns the external id for a dense index, and whether it exists.
func (m *IdMap) Resolve(index uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(index) >= len(m.toExtern) {
		return "", false
	}
	return m.toExtern[index], true
}

// Len returns the number of interned ids (the dense size N).
func (m *IdMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toExtern)
}

// Reset clears both directions, for a graph-data-reset event signaled by
// the provider. Indices re-assigned after a Reset start again from 0.
func (m *IdMap) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toIndex = make(map[string]uint32)
	m.toExtern = nil
}
