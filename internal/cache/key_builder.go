package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"ollama-openai-gateway/internal/backend"
)

// BuildKey derives the cache key of a backend call. The stream flag is
// excluded so a reply is addressed by what was asked, not how.
func BuildKey(kind string, req backend.GenerationRequest, versionID string) (ExactCacheKey, error) {
	modelID := strings.TrimSpace(req.Model)

	normalized := struct {
		Model       string  `json:"model"`
		Prompt      string  `json:"prompt"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
	}{
		Model:       modelID,
		Prompt:      req.Prompt,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxOutputTokens,
	}

	body, err := json.Marshal(normalized)
	if err != nil {
		return ExactCacheKey{}, err
	}

	sum := sha256.Sum256(body)

	return ExactCacheKey{
		Kind:      kind,
		ModelID:   modelID,
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}
