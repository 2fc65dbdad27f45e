//go:build integration

package nonce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/pkg/platform/sentinel"
	"racepass/pkg/testutil"
	"racepass/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.DB)
	ctx := context.Background()

	t.Run("consume once", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		now := time.Now().UTC()

		n, err := Issue(ctx, store, now, time.Minute)
		require.NoError(t, err)

		require.NoError(t, store.Consume(ctx, n.Value, now))
		assert.ErrorIs(t, store.Consume(ctx, n.Value, now), sentinel.ErrAlreadyUsed)
	})

	t.Run("consume unknown", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		assert.ErrorIs(t, store.Consume(ctx, "no-such-nonce", time.Now().UTC()), sentinel.ErrNotFound)
	})

	t.Run("consume expired", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		now := time.Now().UTC()

		n, err := Issue(ctx, store, now, time.Second)
		require.NoError(t, err)

		assert.ErrorIs(t, store.Consume(ctx, n.Value, now.Add(2*time.Second)), sentinel.ErrExpired)
	})

	t.Run("concurrent consume admits one winner", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		now := time.Now().UTC()

		n, err := Issue(ctx, store, now, time.Minute)
		require.NoError(t, err)

		result := testutil.RunConcurrent(20, func(int) error {
			return store.Consume(ctx, n.Value, now)
		})

		assert.Equal(t, int32(1), result.Successes)
		assert.Equal(t, int32(19), result.Failures())
		assert.Equal(t, int32(0), result.Errors)
	})

	t.Run("delete expired", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		now := time.Now().UTC()

		_, err := Issue(ctx, store, now, time.Second)
		require.NoError(t, err)
		live, err := Issue(ctx, store, now, time.Hour)
		require.NoError(t, err)

		removed, err := store.DeleteExpired(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		require.NoError(t, store.Consume(ctx, live.Value, now))
	})
}
