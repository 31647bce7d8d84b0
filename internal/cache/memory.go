package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/gabigallardo/control-panel/internal/billing"
)

// MemoryBillingCache keeps billing snapshots in process. It backs the
// snapshot cache when no Redis is configured.
type MemoryBillingCache struct {
	store *gocache.Cache
}

// NewMemoryBillingCache returns nil when ttl disables caching.
func NewMemoryBillingCache(ttl time.Duration) *MemoryBillingCache {
	if ttl <= 0 {
		return nil
	}
	return &MemoryBillingCache{store: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryBillingCache) Get(_ context.Context, key billing.RangeKey) (billing.Data, bool) {
	if c == nil {
		return billing.Data{}, false
	}
	v, ok := c.store.Get(string(key))
	if !ok {
		return billing.Data{}, false
	}
	data, ok := v.(billing.Data)
	return data, ok
}

func (c *MemoryBillingCache) Set(_ context.Context, key billing.RangeKey, data billing.Data) {
	if c == nil {
		return
	}
	c.store.SetDefault(string(key), data)
}
