package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// GenerateStream opens a streaming generate call. Each NDJSON line becomes
// one StreamResult, delivered on an unbuffered channel so at most one chunk
// is pending at a time. The channel is closed when the backend finishes, the
// stream fails, or ctx is cancelled; in the latter case the connection is
// released without further reads.
func (c *client) GenerateStream(parentCtx context.Context, req *GenerationRequest) (<-chan StreamResult, error) {
	if req == nil {
		return nil, fmt.Errorf("backend: request is nil")
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.StreamTimeout)

	resp, err := c.post(ctx, req, true)
	if err != nil {
		cancel()
		err = classify(parentCtx, err)
		c.logger.Error("backend stream connect failed", zap.Error(err))
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		c.logger.Error("backend stream upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return nil, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	}

	results := make(chan StreamResult)

	go func() {
		defer close(results)
		defer cancel()
		defer resp.Body.Close()

		// Sends watch the caller's context only, so a timeout error produced
		// by our own deadline still reaches the consumer.
		send := func(r StreamResult) bool {
			select {
			case <-parentCtx.Done():
				return false
			case results <- r:
				return true
			}
		}

		reader := bufio.NewReader(resp.Body)
		lineNo := 0
		chunkCount := 0

		for {
			line, readErr := reader.ReadBytes('\n')
			line = bytes.TrimSpace(line)

			if len(line) > 0 {
				lineNo++
				chunk, err := decodeLine(line, lineNo)
				if err != nil && !IsDecodeError(err) {
					c.logger.Error("backend stream reported error",
						zap.Int("line", lineNo),
						zap.Error(err),
					)
					send(StreamResult{Err: err})
					return
				}
				if err != nil {
					c.logger.Warn("backend stream line undecodable", zap.Error(err))
					if !send(StreamResult{Err: err}) {
						return
					}
				} else {
					chunkCount++
					if !send(StreamResult{Chunk: chunk}) {
						c.logger.Info("backend stream cancelled",
							zap.Int("chunks", chunkCount),
							zap.Error(parentCtx.Err()),
						)
						return
					}
					if chunk.Done {
						c.logger.Debug("backend stream done", zap.Int("chunks", chunkCount))
						return
					}
				}
			}

			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					// Backend closed without a done line; the consumer decides
					// what a missing terminator means.
					c.logger.Warn("backend stream ended without done",
						zap.Int("chunks", chunkCount),
					)
					return
				}
				err := classify(parentCtx, fmt.Errorf("read stream line: %w", readErr))
				if errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Error("backend stream read failed", zap.Error(err))
				send(StreamResult{Err: err})
				return
			}
		}
	}()

	return results, nil
}

// decodeLine parses one NDJSON line. Malformed JSON yields *DecodeError; an
// {"error": "..."} line is a backend failure.
func decodeLine(line []byte, lineNo int) (*GenerationChunk, error) {
	if !gjson.ValidBytes(line) {
		return nil, &DecodeError{Line: lineNo, Err: errors.New("invalid JSON")}
	}
	res := gjson.ParseBytes(line)
	if !res.IsObject() {
		return nil, &DecodeError{Line: lineNo, Err: errors.New("line is not an object")}
	}
	if e := res.Get("error"); e.Exists() && e.String() != "" {
		return nil, fmt.Errorf("%w: backend reported error on line %d", ErrUnavailable, lineNo)
	}
	return &GenerationChunk{
		TextDelta: res.Get("response").String(),
		Done:      res.Get("done").Bool(),
	}, nil
}
