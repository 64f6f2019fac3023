package handlers

import (
	"context"
	"errors"
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

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	Deps
}

func NewChatHandler(d Deps) *ChatHandler {
	return &ChatHandler{Deps: d}
}

// ChatCompletion composes the conversation into a backend prompt and replies
// with either a chat.completion object or an SSE stream of chunks.
func (h *ChatHandler) ChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req translate.ChatRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		logging.L(ctx).Warn("invalid request", zap.String("reason", apiErr.Message))
		apiErr.Write(w)
		return
	}
	if err := req.Validate(); err != nil {
		logging.L(ctx).Warn("invalid request", zap.Error(err))
		apierror.BadRequest(err.Error()).Write(w)
		return
	}

	genReq := translate.NewGenerationRequest(h.BackendModel, translate.Compose(req.Messages), req.Stream, req.Params())

	ctx = logging.WithFields(ctx,
		zap.Bool("stream", req.Stream),
		zap.Int("message_count", len(req.Messages)),
	)

	if req.Stream {
		h.stream(ctx, w, &genReq, start)
		return
	}

	reply, err := h.generate(ctx, cache.KindChat, &genReq)
	if err != nil {
		apiErr := apierror.FromError(err)
		logging.L(ctx).Error("chat completion failed",
			zap.String("code", apiErr.Code),
			zap.Error(err),
			zap.Duration("total_latency_ms", time.Since(start)),
		)
		apiErr.Write(w)
		return
	}

	logging.L(ctx).Info("chat completion served",
		zap.Int("response_bytes", len(reply.Text)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, h.Translator.Chat(*reply))
}

// stream commits an event stream and forwards backend chunks as they arrive.
// Failures after this point are reported in-band.
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, genReq *backend.GenerationRequest, start time.Time) {
	logger := logging.L(ctx)

	sse, ok := newSSEWriter(w)
	if !ok {
		logger.Error("response writer does not support flushing")
		apierror.Internal().Write(w)
		return
	}

	// Cancelling releases the backend connection once we stop reading,
	// whether the client left or the stream ended.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sse.start()

	results, err := h.Backend.GenerateStream(ctx, genReq)
	if err != nil {
		metrics.ObserveBackend("stream", backend.Outcome(err), time.Since(start))
		metrics.StreamFramesTotal.WithLabelValues("error").Inc()
		logger.Error("stream connect failed", zap.Error(err))
		_ = sse.WriteError(apierror.FromError(err).Envelope())
		return
	}

	stats, err := h.Translator.Stream(ctx, results, sse)

	metrics.ObserveBackend("stream", streamOutcome(err), time.Since(start))
	metrics.StreamFramesTotal.WithLabelValues("content").Add(float64(stats.ContentChunks))
	metrics.StreamSkippedLinesTotal.Add(float64(stats.SkippedLines))
	if stats.Terminated {
		metrics.StreamFramesTotal.WithLabelValues("terminal").Inc()
	}
	if stats.Failed {
		metrics.StreamFramesTotal.WithLabelValues("error").Inc()
	}

	fields := []zap.Field{
		zap.Int("content_chunks", stats.ContentChunks),
		zap.Int("skipped_lines", stats.SkippedLines),
		zap.Bool("terminated", stats.Terminated),
		zap.Duration("total_latency_ms", time.Since(start)),
	}
	switch {
	case err == nil:
		logger.Info("chat stream completed", fields...)
	case errors.Is(err, context.Canceled):
		logger.Info("chat stream cancelled by client", fields...)
	default:
		logger.Error("chat stream failed", append(fields, zap.Error(err))...)
	}
}

func streamOutcome(err error) string {
	if errors.Is(err, apierror.ErrStreamAborted) {
		return "aborted"
	}
	return backend.Outcome(err)
}
