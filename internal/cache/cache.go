// Package cache holds the last seen snapshot of every tracked entity.
package cache

import (
	"sync"

	"toonbot/internal/model"
)

// Cache maps entity IDs to their most recent snapshot.
type Cache struct {
	mu    sync.RWMutex
	items map[string]model.Snapshot
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{items: make(map[string]model.Snapshot)}
}

// Get returns the cached snapshot for id.
func (c *Cache) Get(id string) (model.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.items[id]
	return s, ok
}

// Put replaces the snapshot for the snapshot's entity.
func (c *Cache) Put(s model.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[s.EntityID] = s
}

// Load replaces the whole content of the cache.
func (c *Cache) Load(snaps []model.Snapshot) {
	items := make(map[string]model.Snapshot, len(snaps))
	for _, s := range snaps {
		items[s.EntityID] = s
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
}

// Retain drops every entity not in keep and returns the dropped IDs.
func (c *Cache) Retain(keep []string) []string {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped []string
	for id := range c.items {
		if _, ok := set[id]; !ok {
			delete(c.items, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
