package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ollama-openai-gateway/internal/apierror"
	"ollama-openai-gateway/internal/backend"
	"ollama-openai-gateway/internal/cache"
	"ollama-openai-gateway/internal/metrics"
	"ollama-openai-gateway/internal/translate"
	"ollama-openai-gateway/pkg/logging/logging"
)

// Deps are the collaborators shared by the completion endpoints.
type Deps struct {
	Backend      backend.Client
	Translator   *translate.Translator
	BackendModel string

	// Cache is optional; nil disables reply caching.
	Cache *cache.ReplyCache
}

// generate performs a non-streaming backend call. Deterministic requests are
// answered from the reply cache when one is configured.
func (d *Deps) generate(ctx context.Context, kind string, req *backend.GenerationRequest) (*backend.GenerationReply, error) {
	if reply, ok := d.Cache.Lookup(ctx, kind, req); ok {
		logging.L(ctx).Info("cache_decision",
			zap.String("cache_tier", "exact"),
			zap.String("kind", kind),
			zap.Bool("cache_hit", true),
		)
		return reply, nil
	}

	start := time.Now()
	reply, err := d.Backend.Generate(ctx, req)
	metrics.ObserveBackend("generate", backend.Outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	d.Cache.Store(ctx, kind, req, *reply)
	return reply, nil
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeJSON reads exactly one JSON value from the request body into v.
func decodeJSON(r *http.Request, v any) *apierror.Error {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(v)
	if err == nil {
		if _, tokErr := dec.Token(); !errors.Is(tokErr, io.EOF) {
			err = tokErr
			if err == nil {
				err = errTrailingData
			}
		}
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apierror.New(http.StatusRequestEntityTooLarge, "invalid_request_error", "request_too_large", "Request body too large")
		}
		return apierror.BadRequest("Invalid JSON body")
	}
	return nil
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
