package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ollama-openai-gateway/internal/backend"
	"ollama-openai-gateway/internal/metrics"
	"ollama-openai-gateway/pkg/logging/logging"
)

// LoggingExactCache wraps an ExactCache with logging + metrics.
type LoggingExactCache struct {
	inner ExactCache
}

// NewLoggingExactCache returns a cache that logs and records metrics.
func NewLoggingExactCache(inner ExactCache) ExactCache {
	return &LoggingExactCache{inner: inner}
}

func (c *LoggingExactCache) Get(ctx context.Context, key ExactCacheKey) (*backend.GenerationReply, bool, error) {
	start := time.Now()
	reply, ok, err := c.inner.Get(ctx, key)
	elapsed := time.Since(start)
	metrics.CacheLatencySeconds.WithLabelValues("get").Observe(elapsed.Seconds())

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(result).Inc()

	fields := append(keyFields(key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Duration("latency", elapsed),
	)

	logger := loggerFromContext(ctx)
	if err != nil {
		logger.Error("exact_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("exact_cache_get", fields...)
	}

	return reply, ok, err
}

func (c *LoggingExactCache) Set(ctx context.Context, key ExactCacheKey, reply backend.GenerationReply, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, reply, ttl)
	elapsed := time.Since(start)
	metrics.CacheLatencySeconds.WithLabelValues("set").Observe(elapsed.Seconds())

	fields := append(keyFields(key),
		zap.Int("reply_bytes", len(reply.Text)),
		zap.Duration("ttl", ttl),
		zap.Duration("latency", elapsed),
	)

	logger := loggerFromContext(ctx)
	if err != nil {
		logger.Error("exact_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("exact_cache_set", fields...)
	}

	return err
}

func keyFields(key ExactCacheKey) []zap.Field {
	return []zap.Field{
		zap.String("cache_tier", "exact"),
		zap.String("kind", key.Kind),
		zap.String("model_id", key.ModelID),
		zap.String("version_id", key.VersionID),
		zap.String("hash", key.Hash),
	}
}

func loggerFromContext(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx).Named("cache")
}
