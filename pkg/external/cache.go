package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/pharmguard-mcp-server/internal/domain"
)

const cacheKeyPrefix = "pharmguard:explanation:"

// ExplanationKey derives a stable cache key from a provider name and prompt.
func ExplanationKey(provider, prompt string) string {
	hash := sha256.Sum256([]byte(provider + "\x00" + prompt))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}

// RedisCache stores collaborator completions in Redis
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// cachedExplanation represents a cached completion with metadata
type cachedExplanation struct {
	Text      string    `json:"text"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisCache connects to the Redis server named by config.RedisURL
func NewRedisCache(ctx context.Context, config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config.DefaultTTL), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &RedisCache{redis: client, defaultTTL: defaultTTL}
}

// Get retrieves a cached completion
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get explanation cache: %w", err)
	}

	var cached cachedExplanation
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// corrupted entry
		c.redis.Del(ctx, key)
		return "", false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return "", false, nil
	}

	return cached.Text, true, nil
}

// Set caches a completion. A zero ttl uses the default.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	data, err := json.Marshal(cachedExplanation{
		Text:      value,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal explanation cache data: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Ping checks if Redis connection is alive
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

// MemoryCache is an in-process LRU used when no Redis server is configured.
type MemoryCache struct {
	lru        *expirable.LRU[string, cachedExplanation]
	defaultTTL time.Duration
}

// NewMemoryCache creates a bounded in-memory cache. Entries never outlive defaultTTL.
func NewMemoryCache(maxItems int, defaultTTL time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &MemoryCache{
		lru:        expirable.NewLRU[string, cachedExplanation](maxItems, nil, defaultTTL),
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a cached completion
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	cached, ok := c.lru.Get(key)
	if !ok {
		return "", false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.lru.Remove(key)
		return "", false, nil
	}
	return cached.Text, true, nil
}

// Set caches a completion. ttl may shorten but never extend the default.
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.defaultTTL {
		ttl = c.defaultTTL
	}
	now := time.Now()
	c.lru.Add(key, cachedExplanation{Text: value, CachedAt: now, ExpiresAt: now.Add(ttl)})
	return nil
}

// Len reports the number of live entries
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}
