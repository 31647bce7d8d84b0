package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gabigallardo/control-panel/internal/billing"
)

// BillingCache stores serialized billing snapshots keyed by range.
type BillingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewBillingCache returns nil when caching is disabled, which billing.Service treats as no cache.
func NewBillingCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *BillingCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingCache{client: client, ttl: ttl, logger: logger}
}

func (c *BillingCache) Get(ctx context.Context, key billing.RangeKey) (billing.Data, bool) {
	if c == nil || c.client == nil {
		return billing.Data{}, false
	}
	raw, err := c.client.Get(ctx, c.prefixed(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("billing cache get failed", slog.String("range", string(key)), slog.Any("error", err))
		}
		return billing.Data{}, false
	}
	var data billing.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		c.logger.Warn("billing cache entry unreadable", slog.String("range", string(key)), slog.Any("error", err))
		return billing.Data{}, false
	}
	return data, true
}

func (c *BillingCache) Set(ctx context.Context, key billing.RangeKey, data billing.Data) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("billing cache encode failed", slog.String("range", string(key)), slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, c.prefixed(key), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("billing cache set failed", slog.String("range", string(key)), slog.Any("error", err))
	}
}

func (c *BillingCache) prefixed(key billing.RangeKey) string {
	return "billing:snapshot:" + string(key)
}
