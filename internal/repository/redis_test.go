package repository

import (
	"context"
	"testing"
	"time"

	"parish/internal/config"
	"parish/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheRepository(t *testing.T) {
	s := miniredis.RunT(t)

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisCacheRepository(client)
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		stats := &models.Statistics{
			TotalProgrammes:  3,
			AttendanceRate:   66.7,
			ProgrammesByType: map[string]int{"worship": 2, "Undefined": 1},
			ParticipantsTrend: []models.TrendPoint{
				{Label: "Jun 2025", Count: 5},
			},
		}
		require.NoError(t, repo.Set(ctx, stats, 10*time.Minute))

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 3, got.TotalProgrammes)
		assert.Equal(t, 2, got.ProgrammesByType["worship"])
		assert.Equal(t, "Jun 2025", got.ParticipantsTrend[0].Label)
	})

	t.Run("TTL", func(t *testing.T) {
		s.FastForward(11 * time.Minute)
		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, &models.Statistics{}, time.Minute))
		require.NoError(t, repo.Invalidate(ctx))
		assert.False(t, s.Exists(statsKey))
	})

	t.Run("CorruptValue", func(t *testing.T) {
		require.NoError(t, s.Set(statsKey, "not json"))
		_, err := repo.Get(ctx)
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		window := time.Second
		for i := 0; i < 2; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "member:7", 2, window)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "member:7", 2, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)
		allowed, err = repo.CheckRateLimit(ctx, "member:7", 2, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("RateLimitWindowAlwaysExpires", func(t *testing.T) {
		window := time.Minute
		_, err := repo.CheckRateLimit(ctx, "member:8", 5, window)
		require.NoError(t, err)
		assert.Equal(t, window, s.TTL(rateLimitPrefix+"member:8"))

		// a counter left behind without a TTL
		require.NoError(t, s.Set(rateLimitPrefix+"member:9", "5"))
		allowed, err := repo.CheckRateLimit(ctx, "member:9", 5, window)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, window, s.TTL(rateLimitPrefix+"member:9"))

		s.FastForward(window)
		allowed, err = repo.CheckRateLimit(ctx, "member:9", 5, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisCacheRepository(nil)
		_, err := repo.Get(ctx)
		assert.ErrorContains(t, err, "redis client is nil")
	})

	t.Run("PingAndClose", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
		assert.NoError(t, Close(client))
		assert.Error(t, Ping(ctx, client))
	})
}
