package common

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/metrics"
)

const redisCacheOpTimeout = 2 * time.Second

// RedisCacheService implements CacheInterface using Redis, shared across
// the CLI, the ops server and workers.
type RedisCacheService struct {
	client  *redis.Client
	prefix  string
	metrics *metrics.MetricsRegistry
}

// Ensure RedisCacheService implements CacheInterface
var _ CacheInterface = (*RedisCacheService)(nil)

// NewRedisCacheService wraps client; every key is stored under prefix.
func NewRedisCacheService(client *redis.Client, prefix string, m *metrics.MetricsRegistry) *RedisCacheService {
	return &RedisCacheService{client: client, prefix: prefix, metrics: m}
}

func (r *RedisCacheService) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisCacheOpTimeout)
}

func (r *RedisCacheService) Set(key string, value string, ttl time.Duration) {
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		logging.Warn("Redis cache set failed", "key", key, "error", err)
	}
}

// Get treats Redis errors as a miss so callers fall through to the database.
func (r *RedisCacheService) Get(key string) (string, bool) {
	ctx, cancel := r.ctx()
	defer cancel()

	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		r.metrics.CacheHit(keyPattern(key), false)
		return "", false
	}
	if err != nil {
		logging.Warn("Redis cache get failed", "key", key, "error", err)
		r.metrics.CacheHit(keyPattern(key), false)
		return "", false
	}
	r.metrics.CacheHit(keyPattern(key), true)
	return val, true
}

func (r *RedisCacheService) Delete(key string) {
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		logging.Warn("Redis cache delete failed", "key", key, "error", err)
	}
}

func (r *RedisCacheService) GetOrSet(key string, ttl time.Duration, loader func() (string, error)) (string, error) {
	return getOrSet(r, key, ttl, loader)
}

// Close closes the Redis connection
func (r *RedisCacheService) Close() error {
	return r.client.Close()
}
