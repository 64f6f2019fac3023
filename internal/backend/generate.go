package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxRequestSize = 2 * 1024 * 1024 // 2MB total JSON payload

func (c *client) Generate(parentCtx context.Context, req *GenerationRequest) (*GenerationReply, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("backend: request is nil")
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.post(ctx, req, false)
	if err != nil {
		err = classify(parentCtx, err)
		c.logger.Error("backend generate failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("backend upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return nil, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	}

	var wResp wireGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&wResp); err != nil {
		err = classify(parentCtx, fmt.Errorf("decode generate response: %w", err))
		c.logger.Error("backend response decode failed", zap.Error(err))
		return nil, err
	}
	if wResp.Error != "" {
		c.logger.Error("backend reported error",
			zap.String("error_message", truncate(wResp.Error, 200)),
		)
		return nil, fmt.Errorf("%w: backend reported error", ErrUnavailable)
	}

	c.logger.Info("backend generate completed",
		zap.String("model", wResp.Model),
		zap.Int("response_bytes", len(wResp.Response)),
		zap.Duration("duration", time.Since(start)),
	)

	return &GenerationReply{Text: wResp.Response}, nil
}

// post sends req to the generate endpoint. The caller owns resp.Body.
func (c *client) post(ctx context.Context, req *GenerationRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(toWire(req, c.cfg.Model, stream))
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}
	if len(body) > maxRequestSize {
		return nil, fmt.Errorf("request too large (%d bytes, max %d)", len(body), maxRequestSize)
	}

	c.logger.Debug("backend request starting",
		zap.Bool("stream", stream),
		zap.Int("prompt_bytes", len(req.Prompt)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	}
	return c.httpClient.Do(httpReq)
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
