package catalog

import (
	"context"
	"testing"
	"time"
)

func TestProductCacheLocalTier(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewProductCache(16, 24*time.Hour, nil, quietLogger())
	c.now = clock.now

	if _, ok := c.GetProduct(ctx, "296-1234-1-ND"); ok {
		t.Fatalf("empty cache reported a hit")
	}
	c.SetProduct(ctx, &Product{CatalogNumber: "296-1234-1-ND", ManufacturerNumber: "LM358", Description: "Op amp"})

	p, ok := c.GetProduct(ctx, "296-1234-1-ND")
	if !ok || p.ManufacturerNumber != "LM358" {
		t.Fatalf("expected local hit, got %v / %v", p, ok)
	}

	c.SetSearch(ctx, "LM358", 10, []SearchResult{{CatalogNumber: "296-1234-1-ND"}})
	clock.advance(SearchTTL + time.Second)
	if _, ok := c.GetSearch(ctx, "LM358", 10); ok {
		t.Fatalf("search entry should expire after %s", SearchTTL)
	}
	if _, ok := c.GetProduct(ctx, "296-1234-1-ND"); !ok {
		t.Fatalf("product entry expired too early")
	}
}

func TestProductCacheKeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	c := NewProductCache(16, time.Hour, nil, quietLogger())

	c.SetSearch(ctx, "LM358", 10, []SearchResult{{CatalogNumber: "A"}})
	if _, ok := c.GetSearch(ctx, "LM358", 5); ok {
		t.Fatalf("different limit must not share an entry")
	}
	if _, ok := c.GetProduct(ctx, "LM358"); ok {
		t.Fatalf("search entry leaked into product namespace")
	}
}

func TestProductCacheSkipsEmptySearch(t *testing.T) {
	ctx := context.Background()
	shared := newMemoryStore()
	c := NewProductCache(16, time.Hour, shared, quietLogger())

	c.SetSearch(ctx, "nothing", 10, nil)
	if len(shared.data) != 0 {
		t.Fatalf("empty result set was cached: %v", shared.data)
	}
}

func TestProductCacheSharedTierFirst(t *testing.T) {
	ctx := context.Background()
	shared := newMemoryStore()
	c := NewProductCache(16, time.Hour, shared, quietLogger())

	shared.data["product:X-ND"] = `{"digikey_number":"X-ND","manufacturer_part_number":"FROM-REDIS","description":"d"}`
	c.local.Add("product:X-ND", cacheEntry{value: []byte(`{"manufacturer_part_number":"FROM-LOCAL"}`), expiresAt: time.Now().Add(time.Hour)})

	p, ok := c.GetProduct(ctx, "X-ND")
	if !ok || p.ManufacturerNumber != "FROM-REDIS" {
		t.Fatalf("expected shared hit, got %v / %v", p, ok)
	}

	c.SetProduct(ctx, &Product{CatalogNumber: "Y-ND", ManufacturerNumber: "Y"})
	if shared.ttls["product:Y-ND"] != ProductTTL {
		t.Fatalf("product ttl in shared tier = %s", shared.ttls["product:Y-ND"])
	}
}

func TestProductCacheSharedErrorFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	shared := newMemoryStore()
	c := NewProductCache(16, time.Hour, shared, quietLogger())
	c.SetProduct(ctx, &Product{CatalogNumber: "Z-ND", ManufacturerNumber: "Z"})

	shared.failGet = true
	p, ok := c.GetProduct(ctx, "Z-ND")
	if !ok || p.ManufacturerNumber != "Z" {
		t.Fatalf("expected local hit when shared tier is down, got %v / %v", p, ok)
	}
}

func TestProductCacheIsBounded(t *testing.T) {
	ctx := context.Background()
	c := NewProductCache(2, time.Hour, nil, quietLogger())
	for _, id := range []string{"A", "B", "C"} {
		c.SetProduct(ctx, &Product{CatalogNumber: id})
	}
	if _, ok := c.GetProduct(ctx, "A"); ok {
		t.Fatalf("least recently used entry should have been evicted")
	}
	if c.local.Len() != 2 {
		t.Fatalf("local tier holds %d entries", c.local.Len())
	}
}
