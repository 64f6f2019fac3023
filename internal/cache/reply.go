package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ollama-openai-gateway/internal/backend"
	"ollama-openai-gateway/internal/metrics"
)

// Deterministic reports whether req always yields the same reply. Only
// temperature 0 qualifies; any sampled request must reach the backend.
func Deterministic(req *backend.GenerationRequest) bool {
	return req.Options.Temperature == 0
}

// ReplyCache serves repeated deterministic backend calls from an
// ExactCache. A nil *ReplyCache is valid and never hits.
type ReplyCache struct {
	store     ExactCache
	ttl       time.Duration
	versionID string
}

func NewReplyCache(store ExactCache, ttl time.Duration, versionID string) *ReplyCache {
	return &ReplyCache{store: store, ttl: ttl, versionID: versionID}
}

// Lookup returns the stored reply for req. Store failures count as misses.
func (c *ReplyCache) Lookup(ctx context.Context, kind string, req *backend.GenerationRequest) (*backend.GenerationReply, bool) {
	key, ok := c.key(ctx, kind, req)
	if !ok {
		return nil, false
	}

	reply, hit, err := c.store.Get(ctx, key)
	if err != nil || !hit {
		return nil, false
	}
	return reply, true
}

// Store records reply for req. Errors are logged and dropped.
func (c *ReplyCache) Store(ctx context.Context, kind string, req *backend.GenerationRequest, reply backend.GenerationReply) {
	key, ok := c.key(ctx, kind, req)
	if !ok {
		return
	}
	if err := c.store.Set(ctx, key, reply, c.ttl); err != nil {
		loggerFromContext(ctx).Warn("exact_cache_set_error", zap.Error(err))
	}
}

func (c *ReplyCache) key(ctx context.Context, kind string, req *backend.GenerationRequest) (ExactCacheKey, bool) {
	if c == nil {
		return ExactCacheKey{}, false
	}
	if !Deterministic(req) {
		metrics.CacheLookupsTotal.WithLabelValues("bypass").Inc()
		loggerFromContext(ctx).Debug("exact_cache_bypass",
			zap.String("kind", kind),
			zap.Float64("temperature", req.Options.Temperature),
		)
		return ExactCacheKey{}, false
	}

	key, err := BuildKey(kind, *req, c.versionID)
	if err != nil {
		loggerFromContext(ctx).Warn("key_builder_error", zap.Error(err))
		return ExactCacheKey{}, false
	}
	return key, true
}
