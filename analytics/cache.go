package analytics

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds the staleness of the filter tree.
const DefaultCacheTTL = 300 * time.Second

// Cache holds at most one built filter tree, valid for a fixed TTL. It is
// the only in-process shared state besides the session registry; every
// access is mutex-guarded and never spans a store call.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration

	tree    FilterTree
	builtAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{ttl: ttl}
}

// Get returns the cached tree if it is still fresh.
func (c *Cache) Get() (FilterTree, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree == nil || time.Since(c.builtAt) > c.ttl {
		return nil, false
	}
	return c.tree, true
}

func (c *Cache) Set(tree FilterTree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = tree
	c.builtAt = time.Now()
}

// Clear drops the cached tree. Mutations call this; correctness does not
// depend on it, the TTL alone bounds staleness.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = nil
}
