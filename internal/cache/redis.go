package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CzarCx/qr-brain/config"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// ErrDisabled is returned by every operation when the cache is turned off
var ErrDisabled = errors.New("cache is disabled")

// Cache is the key/value surface the decorators depend on
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{client: client, enabled: true}, nil
}

// Enabled reports whether values are actually stored
func (c *RedisCache) Enabled() bool {
	return c.enabled
}

// Get retrieves a value from cache. A miss returns an error wrapping redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return ErrDisabled
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.Wrap(err, "key not found in cache")
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return ErrDisabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Delete removes keys from the cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled {
		return ErrDisabled
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "failed to delete keys from Redis")
}

// Ping checks connectivity for the health endpoint
func (c *RedisCache) Ping(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// IsMiss reports whether err is a cache miss rather than a failure
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// LabelKey generates a cache key for an etiquetas_i row
func LabelKey(code string) string {
	return fmt.Sprintf("label:%s", code)
}

// CutKey generates a cache key for a v_code row
func CutKey(codeI string) string {
	return fmt.Sprintf("cut:%s", codeI)
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.enabled || c.client == nil {
		return nil
	}
	return c.client.Close()
}
