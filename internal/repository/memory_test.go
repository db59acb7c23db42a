package repository

import (
	"context"
	"testing"
	"time"

	"parish/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRepository(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryCacheRepository()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, &models.Statistics{TotalProgrammes: 4}, time.Minute))
		got, err := repo.Get(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 4, got.TotalProgrammes)
	})

	t.Run("Expiry", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, &models.Statistics{}, 0))
		require.NoError(t, repo.Invalidate(ctx))
		got, _ := repo.Get(ctx)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		allowed, _ := repo.CheckRateLimit(ctx, "member:1", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "member:1", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "member:1", 2, time.Second)
		assert.False(t, allowed)

		allowed, _ = repo.CheckRateLimit(ctx, "member:2", 2, time.Second)
		assert.True(t, allowed)

		now = now.Add(2 * time.Second)
		allowed, _ = repo.CheckRateLimit(ctx, "member:1", 2, time.Second)
		assert.True(t, allowed)
	})
}
