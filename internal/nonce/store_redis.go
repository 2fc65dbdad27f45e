package nonce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"racepass/pkg/platform/sentinel"
)

const redisKeyPrefix = "nonce:"

// RedisStore keeps nonces in Redis with a TTL matching their expiry.
// Expiry is delegated to Redis, so an expired nonce is
// indistinguishable from an unknown one. Both outcomes map to the same
// verification verdict, which keeps that acceptable.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a connected Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, n Nonce) error {
	ttl := time.Until(n.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}

	ok, err := s.client.SetNX(ctx, redisKeyPrefix+n.Value, n.IssuedAt.UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return fmt.Errorf("saving nonce: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

// Consume removes the key with GETDEL, which is atomic server-side:
// concurrent consumers see the value at most once.
func (s *RedisStore) Consume(ctx context.Context, value string, _ time.Time) error {
	_, err := s.client.GetDel(ctx, redisKeyPrefix+value).Result()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("consuming nonce: %w", err)
	}
	return nil
}

// List scans the live keys. Consumed and expired nonces are gone from
// Redis, so only outstanding challenges appear, with expiry
// reconstructed from the remaining TTL.
func (s *RedisStore) List(ctx context.Context) ([]Nonce, error) {
	var out []Nonce
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value := key[len(redisKeyPrefix):]

		raw, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing nonces: %w", err)
		}
		issuedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}

		n := Nonce{Value: value, IssuedAt: issuedAt}
		if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			n.ExpiresAt = time.Now().Add(ttl)
		}
		out = append(out, n)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing nonces: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// DeleteExpired is a no-op under Redis, where key TTLs handle cleanup.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
