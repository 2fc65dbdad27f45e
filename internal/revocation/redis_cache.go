package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "rrl:jti:"

// RedisCache fronts a Registry with a revoked-set cache in Redis.
// Only positive entries are cached. A miss falls through to the
// canonical registry, so cache loss degrades to extra reads, never to
// serving a revoked credential as valid.
type RedisCache struct {
	next   Registry
	client *redis.Client
	ttl    time.Duration
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithCacheTTL overrides how long cached revocation markers live.
func WithCacheTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// NewRedisCache wraps the canonical registry with a Redis cache.
func NewRedisCache(next Registry, client *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		next:   next,
		client: client,
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Revoke writes through: the canonical registry first, then the cache
// marker. A failed marker write is swallowed since reads fall through
// to the canonical registry on a miss.
func (c *RedisCache) Revoke(ctx context.Context, jti string) error {
	if err := c.next.Revoke(ctx, jti); err != nil {
		return err
	}
	_ = c.client.Set(ctx, revokedKeyPrefix+jti, "1", c.ttl).Err()
	return nil
}

func (c *RedisCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := c.client.Get(ctx, revokedKeyPrefix+jti).Result()
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, redis.Nil) {
		// Degrade to the canonical registry when the cache is down.
		revoked, nextErr := c.next.IsRevoked(ctx, jti)
		if nextErr != nil {
			return false, fmt.Errorf("reading revocation cache: %w", err)
		}
		return revoked, nil
	}

	revoked, err := c.next.IsRevoked(ctx, jti)
	if err != nil {
		return false, err
	}
	if revoked {
		// Backfill so the next check is a cache hit.
		_ = c.client.Set(ctx, revokedKeyPrefix+jti, "1", c.ttl).Err()
	}
	return revoked, nil
}
