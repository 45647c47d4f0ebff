package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through JSON cache for catalog lookups. A nil client
// disables caching entirely, which keeps test wiring trivial.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) disabled(key string) bool {
	return c == nil || c.client == nil || key == ""
}

// GetJSON loads key into dst, reporting whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c.disabled(key) {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c.disabled(key) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate removes a key so the next read goes to storage.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c.disabled(key) {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
