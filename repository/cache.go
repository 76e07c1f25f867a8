package repository

import "sync"

// Cache holds the latest complete Repository.
//
// Readers take the read lock for a single map lookup. Writers build the new
// Repository off to the side and take the write lock only to swap it in, so a
// reader sees exactly one sync response, never a mix of two.
type Cache struct {
	mu   sync.RWMutex
	repo Repository
}

// NewCache creates a Cache seeded with initial (nil = empty).
func NewCache(initial Repository) *Cache {
	if initial == nil {
		initial = Repository{}
	}
	return &Cache{repo: initial}
}

// Get returns the detail stored for key.
func (c *Cache) Get(key string) (Detail[Value], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.repo[key]
	return d, ok
}

// Replace discards the old snapshot and installs repo.
func (c *Cache) Replace(repo Repository) {
	if repo == nil {
		repo = Repository{}
	}
	c.mu.Lock()
	c.repo = repo
	c.mu.Unlock()
}

// Len returns the number of toggles in the current snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.repo)
}

// Snapshot returns the current Repository. Callers must not modify it.
func (c *Cache) Snapshot() Repository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repo
}
