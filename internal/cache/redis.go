package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ollama-openai-gateway/internal/backend"
)

// RedisExactCache stores replies as JSON so several gateway instances can
// share them.
type RedisExactCache struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

func NewRedisExactCache(client *redis.Client, config RedisConfig) *RedisExactCache {
	return &RedisExactCache{
		client: client,
		prefix: config.Prefix,
	}
}

func (c *RedisExactCache) redisKey(key ExactCacheKey) string {
	if c.prefix == "" {
		return key.String()
	}
	return c.prefix + ":" + key.String()
}

// Get returns (nil, false, nil) on a clean miss. A stored value that does not
// decode as a reply is reported as an error so the caller treats it as a miss.
func (c *RedisExactCache) Get(ctx context.Context, key ExactCacheKey) (*backend.GenerationReply, bool, error) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var reply backend.GenerationReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, false, fmt.Errorf("decode cached reply: %w", err)
	}
	return &reply, true, nil
}

// Set is a no-op when ttl <= 0.
func (c *RedisExactCache) Set(ctx context.Context, key ExactCacheKey, reply backend.GenerationReply, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := c.client.Set(ctx, c.redisKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
