package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON documents in Redis under a key prefix. A nil Cache or a
// Cache without a client behaves as an always-empty cache.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Key joins parts under the cache prefix.
func (c *Cache) Key(parts ...string) string {
	if c == nil || c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

// GetJSON loads key into dest. It reports false when the key is absent.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("platform/cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("platform/cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key for ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("platform/cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("platform/cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// FetchWithFallback calls loader and stores its result for ttl. When loader
// fails, the last stored value is decoded into dest instead and stale is
// true. The loader error is returned only when nothing was stored.
func (c *Cache) FetchWithFallback(ctx context.Context, key string, dest any, ttl time.Duration, loader func(context.Context) (any, error)) (stale bool, err error) {
	if loader == nil {
		return false, errors.New("platform/cache: loader required")
	}
	value, loadErr := loader(ctx)
	if loadErr == nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return false, fmt.Errorf("platform/cache: encode %s: %w", key, err)
		}
		if c != nil && c.client != nil {
			// A failed write only costs the next fallback.
			_ = c.client.Set(ctx, key, raw, ttl).Err()
		}
		return false, json.Unmarshal(raw, dest)
	}
	found, err := c.GetJSON(ctx, key, dest)
	if err != nil || !found {
		return false, loadErr
	}
	return true, nil
}
