// Package cache provides the default in-memory entity cache.
//
// Anything that implements luster.Cache can replace it; the event pipeline
// never looks past the luster.Store methods.
package cache

import (
	"sync"

	"github.com/luciancaetano/luster"
)

// Map is a concurrency-safe luster.Store backed by a Go map.
type Map[E luster.Entity] struct {
	mu      sync.RWMutex
	entries map[string]E
}

// NewMap returns an empty store.
func NewMap[E luster.Entity]() *Map[E] {
	return &Map[E]{entries: make(map[string]E)}
}

func (m *Map[E]) Put(entity E) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entity.EntityID()] = entity
}

func (m *Map[E]) Get(id string) (E, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *Map[E]) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

func (m *Map[E]) All() []E {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]E, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Clear removes every entity.
func (m *Map[E]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}

// Len returns the number of cached entities.
func (m *Map[E]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Memory is the default luster.Cache: one Map per entity kind.
type Memory struct {
	users    *Map[*luster.User]
	servers  *Map[*luster.Server]
	channels *Map[*luster.Channel]
}

// New returns an empty in-memory cache.
func New() *Memory {
	return &Memory{
		users:    NewMap[*luster.User](),
		servers:  NewMap[*luster.Server](),
		channels: NewMap[*luster.Channel](),
	}
}

func (c *Memory) Users() luster.Store[*luster.User]       { return c.users }
func (c *Memory) Servers() luster.Store[*luster.Server]   { return c.servers }
func (c *Memory) Channels() luster.Store[*luster.Channel] { return c.channels }

// Clear drops every cached entity.
func (c *Memory) Clear() {
	c.users.Clear()
	c.servers.Clear()
	c.channels.Clear()
}
