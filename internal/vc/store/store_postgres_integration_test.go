//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/internal/vc/models"
	"racepass/pkg/platform/sentinel"
	"racepass/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := NewPostgresStore(pg.DB)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("save and find", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))

		rec := record("urn:uuid:pg-one", now)
		require.NoError(t, s.Save(ctx, rec))

		found, err := s.FindByJTI(ctx, "urn:uuid:pg-one")
		require.NoError(t, err)
		assert.Equal(t, rec.Token, found.Token)
		assert.Equal(t, models.StatusValid, found.Status)
		assert.True(t, found.ExpiresAt.Equal(rec.ExpiresAt))

		_, err = s.FindByJTI(ctx, "urn:uuid:missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate jti conflicts", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))

		require.NoError(t, s.Save(ctx, record("urn:uuid:pg-dup", now)))
		assert.ErrorIs(t, s.Save(ctx, record("urn:uuid:pg-dup", now)), sentinel.ErrConflict)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))

		require.NoError(t, s.Save(ctx, record("urn:uuid:pg-rev", now)))
		require.NoError(t, s.Revoke(ctx, "urn:uuid:pg-rev"))
		require.NoError(t, s.Revoke(ctx, "urn:uuid:pg-rev"))

		revoked, err := s.IsRevoked(ctx, "urn:uuid:pg-rev")
		require.NoError(t, err)
		assert.True(t, revoked)

		assert.ErrorIs(t, s.Revoke(ctx, "urn:uuid:missing"), sentinel.ErrNotFound)
	})

	t.Run("list orders by creation", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))

		require.NoError(t, s.Save(ctx, record("urn:uuid:pg-b", now.Add(time.Second))))
		require.NoError(t, s.Save(ctx, record("urn:uuid:pg-a", now)))

		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "urn:uuid:pg-a", all[0].JTI)
		assert.Equal(t, "urn:uuid:pg-b", all[1].JTI)
	})
}
