package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	Prefix  string

	// CleanupInterval is the memory cache sweep period. Entry TTLs are
	// owned by ReplyCache.
	CleanupInterval time.Duration
}

// NewExactCache builds the configured store. It returns a nil cache for
// BackendNone, which callers treat as caching disabled.
func NewExactCache(cfg Config, redisClient *redis.Client) (ExactCache, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryExactCache(cfg.CleanupInterval), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("cache: redis backend requires a client")
		}
		return NewRedisExactCache(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		}), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
