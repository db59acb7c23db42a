package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parish/internal/config"
	"parish/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	statsKey        = "parish:statistics"
	rateLimitPrefix = "parish:rate_limit:"
)

// RedisCacheRepository keeps the statistics snapshot and rate limit counters in Redis.
type RedisCacheRepository struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisCacheRepository(client *redis.Client) *RedisCacheRepository {
	return &RedisCacheRepository{client: client}
}

func (r *RedisCacheRepository) Get(ctx context.Context) (*models.Statistics, error) {
	if r.client == nil {
		return nil, errors.New("redis client is nil")
	}
	val, err := r.client.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics from redis: %w", err)
	}

	var stats models.Statistics
	if err := json.Unmarshal(val, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statistics: %w", err)
	}
	return &stats, nil
}

func (r *RedisCacheRepository) Set(ctx context.Context, stats *models.Statistics, ttl time.Duration) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}
	if err := r.client.Set(ctx, statsKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set statistics in redis: %w", err)
	}
	return nil
}

func (r *RedisCacheRepository) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if err := r.client.Del(ctx, statsKey).Err(); err != nil {
		return fmt.Errorf("failed to delete statistics from redis: %w", err)
	}
	return nil
}

// CheckRateLimit counts calls per key inside a fixed window. The counter
// is created together with its TTL in one transaction, and a counter found
// without a TTL gets one.
func (r *RedisCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	k := rateLimitPrefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, window)
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if ttl.Val() < 0 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return incr.Val() <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
