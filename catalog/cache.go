package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

const (
	ProductTTL = 24 * time.Hour
	SearchTTL  = time.Hour
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// ProductCache looks in the shared tier first and then in a bounded local LRU.
// Anything absent, expired or undecodable is a miss.
type ProductCache struct {
	shared SharedStore
	local  *expirable.LRU[string, cacheEntry]
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewProductCache(size int, maxTTL time.Duration, shared SharedStore, logger logrus.FieldLogger) *ProductCache {
	if size <= 0 {
		size = defaultLocalCacheSize
	}
	if maxTTL <= 0 {
		maxTTL = defaultLocalCacheTTL
	}
	return &ProductCache{
		shared: shared,
		local:  expirable.NewLRU[string, cacheEntry](size, nil, maxTTL),
		logger: logger,
		now:    time.Now,
	}
}

func productKey(id string) string {
	return "product:" + id
}

func searchKey(keyword string, limit int) string {
	return fmt.Sprintf("search:%s:%d", keyword, limit)
}

func (c *ProductCache) GetProduct(ctx context.Context, id string) (*Product, bool) {
	var p Product
	if !c.get(ctx, productKey(id), &p) {
		return nil, false
	}
	return &p, true
}

func (c *ProductCache) SetProduct(ctx context.Context, p *Product) {
	if p == nil || p.CatalogNumber == "" {
		return
	}
	c.set(ctx, productKey(p.CatalogNumber), p, ProductTTL)
}

func (c *ProductCache) GetSearch(ctx context.Context, keyword string, limit int) ([]SearchResult, bool) {
	var results []SearchResult
	if !c.get(ctx, searchKey(keyword, limit), &results) {
		return nil, false
	}
	return results, true
}

// SetSearch stores non-empty result sets only.
func (c *ProductCache) SetSearch(ctx context.Context, keyword string, limit int, results []SearchResult) {
	if len(results) == 0 {
		return
	}
	c.set(ctx, searchKey(keyword, limit), results, SearchTTL)
}

func (c *ProductCache) get(ctx context.Context, key string, dest any) bool {
	if c.shared != nil {
		raw, ok, err := c.shared.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.WithFields(logrus.Fields{"module": "catalog", "key": key}).Warn("shared cache read failed: " + err.Error())
		case ok:
			if json.Unmarshal([]byte(raw), dest) == nil {
				CacheRequestsTotal.WithLabelValues("shared", "hit").Inc()
				return true
			}
		}
		CacheRequestsTotal.WithLabelValues("shared", "miss").Inc()
	}

	entry, ok := c.local.Get(key)
	if !ok || !c.now().Before(entry.expiresAt) {
		if ok {
			c.local.Remove(key)
		}
		CacheRequestsTotal.WithLabelValues("local", "miss").Inc()
		return false
	}
	if json.Unmarshal(entry.value, dest) != nil {
		CacheRequestsTotal.WithLabelValues("local", "miss").Inc()
		return false
	}
	CacheRequestsTotal.WithLabelValues("local", "hit").Inc()
	return true
}

func (c *ProductCache) set(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, string(raw), ttl); err != nil {
			c.logger.WithFields(logrus.Fields{"module": "catalog", "key": key}).Warn("shared cache write failed: " + err.Error())
		}
	}
	c.local.Add(key, cacheEntry{value: raw, expiresAt: c.now().Add(ttl)})
}
