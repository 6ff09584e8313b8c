// Package cache keeps derived manufacturer figures close to the API
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaidashi/fulfillment-tracker/internal/config"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

const keyPrefix = "fulfillment:performance:"

// PerformanceCache stores manufacturer scorecards
type PerformanceCache interface {
	// Get returns the cached scorecard and whether it was present
	Get(ctx context.Context, manufacturerID string) (*models.ManufacturerPerformance, bool, error)
	Set(ctx context.Context, perf *models.ManufacturerPerformance) error
	Delete(ctx context.Context, manufacturerID string) error
}

// RedisPerformanceCache stores scorecards as JSON strings with a TTL
type RedisPerformanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient opens a client for cfg
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisPerformanceCache creates a new Redis backed cache
func NewRedisPerformanceCache(rdb *redis.Client, ttl time.Duration) *RedisPerformanceCache {
	return &RedisPerformanceCache{rdb: rdb, ttl: ttl}
}

// Key returns the Redis key of a manufacturer's scorecard
func Key(manufacturerID string) string {
	return keyPrefix + manufacturerID
}

func (c *RedisPerformanceCache) Get(ctx context.Context, manufacturerID string) (*models.ManufacturerPerformance, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(manufacturerID)).Bytes()

	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read performance cache: %w", err)
	}

	var perf models.ManufacturerPerformance
	if err := json.Unmarshal(raw, &perf); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached performance: %w", err)
	}

	return &perf, true, nil
}

func (c *RedisPerformanceCache) Set(ctx context.Context, perf *models.ManufacturerPerformance) error {
	raw, err := json.Marshal(perf)

	if err != nil {
		return fmt.Errorf("failed to encode performance: %w", err)
	}

	if err := c.rdb.Set(ctx, Key(perf.ManufacturerID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write performance cache: %w", err)
	}

	return nil
}

func (c *RedisPerformanceCache) Delete(ctx context.Context, manufacturerID string) error {
	if err := c.rdb.Del(ctx, Key(manufacturerID)).Err(); err != nil {
		return fmt.Errorf("failed to evict performance cache: %w", err)
	}
	return nil
}

// Ping checks the connection
func (c *RedisPerformanceCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// NopPerformanceCache never holds anything. Used when Redis is disabled.
type NopPerformanceCache struct{}

func (NopPerformanceCache) Get(context.Context, string) (*models.ManufacturerPerformance, bool, error) {
	return nil, false, nil
}

func (NopPerformanceCache) Set(context.Context, *models.ManufacturerPerformance) error { return nil }

func (NopPerformanceCache) Delete(context.Context, string) error { return nil }
