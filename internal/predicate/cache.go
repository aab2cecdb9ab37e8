package predicate

import (
	"sync"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// Cache memoizes query results per snapshot. Entries are keyed by the
// normalized expression, so equal expressions share one entry, and are
// dropped as soon as a newer snapshot is queried.
//
// Only *store.Snapshot readers are cached: a write transaction sees
// uncommitted changes under its base ICN.
type Cache struct {
	mu      sync.Mutex
	icn     int64
	entries map[string][]item.ID
	hits    int
	misses  int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]item.ID)}
}

// Evaluate returns the items matching e on r, from the cache when possible.
// The returned slice is shared; callers must not modify it.
func (c *Cache) Evaluate(e Expr, r store.Reader) ([]item.ID, error) {
	snap, ok := r.(*store.Snapshot)
	if !ok {
		return Evaluate(e, r)
	}
	key := Key(Normalize(e))

	c.mu.Lock()
	if snap.ICN() == c.icn {
		if ids, ok := c.entries[key]; ok {
			c.hits++
			c.mu.Unlock()
			return ids, nil
		}
	}
	c.mu.Unlock()

	ids, err := Evaluate(e, snap)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	switch {
	case snap.ICN() > c.icn:
		c.icn = snap.ICN()
		c.entries = map[string][]item.ID{key: ids}
	case snap.ICN() == c.icn:
		c.entries[key] = ids
	}
	return ids, nil
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
