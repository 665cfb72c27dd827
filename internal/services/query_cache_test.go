package services

import (
	"testing"

	"github.com/ecoshop/storefront/internal/domain"
)

type fakeCatalog struct {
	products  []domain.Product
	version   uint64
	snapshots int
}

func (f *fakeCatalog) Version() uint64 { return f.version }

func (f *fakeCatalog) Snapshot() ([]domain.Product, uint64) {
	f.snapshots++
	return domain.CloneProducts(f.products), f.version
}

func TestQueryCacheMemoizesPerVersion(t *testing.T) {
	catalog := &fakeCatalog{products: queryFixture(), version: 1}
	cache := NewQueryCache(0)

	first := cache.Query(catalog, Query{Category: "tees"})
	second := cache.Query(catalog, Query{Category: "tees", Sort: "unknown"})
	if catalog.snapshots != 1 {
		t.Fatalf("expected one snapshot for equivalent queries, got %d", catalog.snapshots)
	}
	equalIDs(t, second, ids(first)...)

	second[0].Name = "mutated"
	third := cache.Query(catalog, Query{Category: "tees"})
	if third[0].Name == "mutated" {
		t.Fatalf("cached results must not be shared with callers")
	}

	catalog.version = 2
	catalog.products = catalog.products[:1]
	equalIDs(t, cache.Query(catalog, Query{Category: "tees"}), "tee")
	if catalog.snapshots != 2 {
		t.Fatalf("expected version change to miss, got %d snapshots", catalog.snapshots)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected stale entries dropped, got %d", cache.Len())
	}
}

func TestQueryCacheBounded(t *testing.T) {
	catalog := &fakeCatalog{products: queryFixture(), version: 1}
	cache := NewQueryCache(2)
	cache.Query(catalog, Query{Search: "a"})
	cache.Query(catalog, Query{Search: "b"})
	cache.Query(catalog, Query{Search: "c"})
	if cache.Len() > 2 {
		t.Fatalf("expected at most 2 entries, got %d", cache.Len())
	}
}
