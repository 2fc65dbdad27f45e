//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/internal/vc/models"
	"racepass/internal/vc/store"
	"racepass/pkg/testutil/containers"
)

func TestRedisCacheReadYourWrites(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	s := store.NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.Save(ctx, models.CredentialRecord{
		JTI:       "urn:uuid:cache-one",
		Token:     "h.p.s",
		Status:    models.StatusValid,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}))

	cache := NewRedisCache(NewStoreRegistry(s), rc.Client, WithCacheTTL(time.Minute))

	revoked, err := cache.IsRevoked(ctx, "urn:uuid:cache-one")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, cache.Revoke(ctx, "urn:uuid:cache-one"))

	// The marker must be visible immediately after the write-through.
	revoked, err = cache.IsRevoked(ctx, "urn:uuid:cache-one")
	require.NoError(t, err)
	assert.True(t, revoked)

	// A cold cache still answers from the canonical registry.
	require.NoError(t, rc.FlushAll(ctx))
	revoked, err = cache.IsRevoked(ctx, "urn:uuid:cache-one")
	require.NoError(t, err)
	assert.True(t, revoked)
}
