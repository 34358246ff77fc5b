// Package cache stores serialized dashboard payloads for a short TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/metrics"
)

const keyPrefix = "vector-insights:"

// Store is a byte-oriented key/value store with expiry.
type Store interface {
	// Get returns the stored value; ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// PayloadCache caches JSON-encoded payloads. Store failures are logged and
// treated as misses; a nil *PayloadCache is a valid disabled cache.
type PayloadCache struct {
	store   Store
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a payload cache. m may be nil.
func New(store Store, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *PayloadCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PayloadCache{store: store, ttl: ttl, logger: logger, metrics: m}
}

// Get decodes a cached payload into dest and reports whether it was found.
func (c *PayloadCache) Get(ctx context.Context, payload, key string, dest any) bool {
	if c == nil {
		return false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Payload cache read failed", zap.String("key", key), zap.Error(err))
		c.record(payload, "error")
		return false
	}
	if !ok {
		c.record(payload, "miss")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Discarding undecodable cached payload", zap.String("key", key), zap.Error(err))
		c.record(payload, "error")
		return false
	}
	c.record(payload, "hit")
	return true
}

// Set encodes and stores a payload.
func (c *PayloadCache) Set(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Failed to encode payload for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Payload cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *PayloadCache) record(payload, result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(payload, result)
	}
}
