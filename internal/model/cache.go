package model

import "sync"

// Cache serves the last listing of a store so request paths do not rescan
// the models directory. Feed it from Watch with Set; Invalidate forces the
// next List to rescan.
type Cache struct {
	store *Store

	mu     sync.RWMutex
	list   []Installed
	loaded bool
}

func NewCache(s *Store) *Cache {
	return &Cache{store: s}
}

// List returns the cached listing, scanning the store on first use or after
// Invalidate.
func (c *Cache) List() ([]Installed, error) {
	c.mu.RLock()
	if c.loaded {
		out := append([]Installed(nil), c.list...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	list, err := c.store.List()
	if err != nil {
		return nil, err
	}
	c.Set(list)
	return append([]Installed(nil), list...), nil
}

func (c *Cache) Set(list []Installed) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append([]Installed(nil), list...)
	c.loaded = true
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = nil
	c.loaded = false
}
