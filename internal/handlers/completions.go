package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"ollama-openai-gateway/internal/apierror"
	"ollama-openai-gateway/internal/cache"
	"ollama-openai-gateway/internal/translate"
	"ollama-openai-gateway/pkg/logging/logging"
)

// CompletionHandler serves the legacy POST /v1/completions. The prompt is
// forwarded verbatim and the reply is always single-shot.
type CompletionHandler struct {
	Deps
}

func NewCompletionHandler(d Deps) *CompletionHandler {
	return &CompletionHandler{Deps: d}
}

func (h *CompletionHandler) Completion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req translate.CompletionRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		logger.Warn("invalid request", zap.String("reason", apiErr.Message))
		apiErr.Write(w)
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		apierror.BadRequest(err.Error()).Write(w)
		return
	}

	prompt, _ := req.PromptText()
	genReq := translate.NewGenerationRequest(h.BackendModel, prompt, false, req.Params())

	reply, err := h.generate(ctx, cache.KindText, &genReq)
	if err != nil {
		apiErr := apierror.FromError(err)
		logger.Error("completion failed",
			zap.String("code", apiErr.Code),
			zap.Error(err),
			zap.Duration("total_latency_ms", time.Since(start)),
		)
		apiErr.Write(w)
		return
	}

	logger.Info("completion served",
		zap.Int("response_bytes", len(reply.Text)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, h.Translator.Text(*reply))
}
