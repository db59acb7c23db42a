package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"parish/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailability(t *testing.T) {
	start := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/resources/3/availability", r.URL.Path)
		assert.Equal(t, start.Format(time.RFC3339), r.URL.Query().Get("start"))
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "extra", r.Header.Get("x-api-extra"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resource_id": 3,
			"available":   false,
			"conflicts":   []models.Booking{{ID: 9, ResourceID: 3}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "key", "extra")
	got, err := c.CheckAvailability(context.Background(), 3, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, got.Available)
	require.Len(t, got.Conflicts, 1)
	assert.Equal(t, int64(9), got.Conflicts[0].ID)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"resource is not available"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", "").CreateBooking(context.Background(), BookingRequest{ResourceID: 1})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "resource is not available", apiErr.Message)
}

func TestStatisticsCachedInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(models.Statistics{TotalProgrammes: int(hits.Load())})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "")
	c.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	first, err := c.Statistics(ctx, false)
	require.NoError(t, err)
	second, err := c.Statistics(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first.TotalProgrammes, second.TotalProgrammes)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, mr.Exists(cachePrefix+"statistics"))

	refreshed, err := c.Statistics(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.TotalProgrammes)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(cachePrefix+"statistics"))
}

func TestFreeSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-05-04", r.URL.Query().Get("date"))
		assert.Equal(t, "90", r.URL.Query().Get("duration"))
		start := time.Date(2025, 5, 4, 9, 0, 0, 0, time.UTC)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"slots": []Slot{{Start: start, End: start.Add(90 * time.Minute)}},
		})
	}))
	defer srv.Close()

	slots, err := New(srv.URL, "", "").FreeSlots(context.Background(), 1, time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC), 90*time.Minute)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 9, slots[0].Start.Hour())
}
