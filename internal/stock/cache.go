package stock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache for ledger rows. Every applied delta
// invalidates the touched key, so a hit is never staler than the last write
// observed by this process.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) cacheKey(key VariantKey) string {
	return "stock:row:" + key.String()
}

// Get returns the cached row if present.
func (c *Cache) Get(ctx context.Context, key VariantKey) (Row, bool) {
	if c == nil || c.client == nil {
		return Row{}, false
	}
	data, err := c.client.Get(ctx, c.cacheKey(key)).Bytes()
	if err != nil {
		return Row{}, false
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return Row{}, false
	}
	return row, true
}

// Set stores the row with the configured TTL. Failures are ignored: the cache
// is an optimisation, not a source of truth.
func (c *Cache) Set(ctx context.Context, key VariantKey, row Row) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(row)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.cacheKey(key), data, c.ttl).Err()
}

// Invalidate drops the cached row for the key.
func (c *Cache) Invalidate(ctx context.Context, key VariantKey) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.cacheKey(key)).Err()
}
