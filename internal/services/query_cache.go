package services

import (
	"sync"

	"github.com/ecoshop/storefront/internal/domain"
)

const defaultQueryCacheEntries = 256

type catalogSnapshotter interface {
	Version() uint64
	Snapshot() ([]domain.Product, uint64)
}

// QueryCache memoizes listing results per catalog version. Entries from an older version
// are dropped as soon as a newer version is seen.
type QueryCache struct {
	mu         sync.Mutex
	version    uint64
	entries    map[string][]domain.Product
	maxEntries int
}

// NewQueryCache bounds the cache to maxEntries distinct queries per catalog version.
func NewQueryCache(maxEntries int) *QueryCache {
	if maxEntries <= 0 {
		maxEntries = defaultQueryCacheEntries
	}
	return &QueryCache{
		entries:    make(map[string][]domain.Product),
		maxEntries: maxEntries,
	}
}

// Query returns ApplyQuery over the catalog's current products.
func (c *QueryCache) Query(catalog catalogSnapshotter, q Query) []domain.Product {
	key := q.Key()
	version := catalog.Version()

	c.mu.Lock()
	if c.version == version {
		if cached, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return domain.CloneProducts(cached)
		}
	}
	c.mu.Unlock()

	products, version := catalog.Snapshot()
	result := ApplyQuery(products, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case version > c.version:
		c.version = version
		c.entries = make(map[string][]domain.Product)
	case version < c.version:
		return result
	}
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string][]domain.Product)
	}
	c.entries[key] = domain.CloneProducts(result)
	return result
}

// Len is the number of cached queries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
