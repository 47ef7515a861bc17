// Package statestore provides the in-process view of the external entity
// store: every named entity's current state string, attribute map, and
// last-update marker.
//
// # Purpose
//
// The resolver and the refresh policy both read entity state many times per
// resolution pass, so the package keeps a complete mirror in memory and
// applies hub notifications to it as they arrive. Lookups never touch the
// network.
//
// # Concurrency Model
//
// Memory uses a single RWMutex over a plain map rather than sync.Map:
//   - Reads dominate: one resolution pass performs many lookups, while
//     writes arrive one entity at a time from the feed.
//   - Replace swaps the whole map wholesale on a full dump, which sync.Map
//     cannot express atomically.
//
// Entities are returned by value so callers can never mutate the mirror
// through a lookup.
package statestore

import "sync"

// Entity is one named piece of external state.
type Entity struct {
	ID          string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

// Attribute returns a named attribute value, or nil when absent.
func (e Entity) Attribute(name string) any {
	if e.Attributes == nil {
		return nil
	}
	return e.Attributes[name]
}

// Store is the read-only view consumed by the resolver and the refresh
// policy.
type Store interface {
	// Lookup returns the entity for id, reporting presence.
	Lookup(id string) (Entity, bool)
}

// Memory is the canonical Store implementation, fed by a hub subscription
// or seeded directly in tests.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]Entity
}

// NewMemory creates an empty in-memory entity store.
func NewMemory() *Memory {
	return &Memory{entities: make(map[string]Entity)}
}

// Lookup returns the entity for id, reporting presence.
func (m *Memory) Lookup(id string) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e, ok
}

// Put inserts or updates a single entity.
func (m *Memory) Put(e Entity) {
	if e.ID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = e
}

// Remove drops an entity, typically after the hub reports it gone.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, id)
}

// Replace swaps the entire entity set for the given one. Used when the hub
// delivers a full state dump.
func (m *Memory) Replace(entities []Entity) {
	next := make(map[string]Entity, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		next[e.ID] = e
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = next
}

// Len returns the number of known entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}
