package cache

import (
	"context"
	"fmt"
	"time"

	"ollama-openai-gateway/internal/backend"
)

// Endpoint kinds used as the first key segment.
const (
	KindChat = "chat"
	KindText = "text"
)

// ExactCacheKey identifies one backend call. Hash is the sha256 of the
// normalized GenerationRequest.
type ExactCacheKey struct {
	Kind      string
	ModelID   string
	VersionID string
	Hash      string
}

// String renders exact:<KIND>:<MODEL_ID>:<VERSION_ID>:<HASH_HEX>.
func (k ExactCacheKey) String() string {
	return fmt.Sprintf("exact:%s:%s:%s:%s", k.Kind, k.ModelID, k.VersionID, k.Hash)
}

// ExactCache stores backend replies by key.
// Implemented by memory cache (dev) and Redis cache (prod).
type ExactCache interface {
	Get(ctx context.Context, key ExactCacheKey) (*backend.GenerationReply, bool, error)
	Set(ctx context.Context, key ExactCacheKey, reply backend.GenerationReply, ttl time.Duration) error
}
