package translate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ollama-openai-gateway/internal/apierror"
	"ollama-openai-gateway/internal/backend"
	"ollama-openai-gateway/pkg/logging/logging"
)

// ChunkWriter receives the outbound stream frames in order.
type ChunkWriter interface {
	WriteChunk(chunk *ChatCompletionChunk) error
	WriteError(env apierror.Envelope) error
	WriteDone() error
}

type StreamOptions struct {
	// FailOnDecodeError ends the stream with an error event on the first
	// undecodable backend line. By default such lines are skipped.
	FailOnDecodeError bool
}

// StreamStats summarises what a stream emitted.
type StreamStats struct {
	ContentChunks int
	SkippedLines  int
	Terminated    bool // terminal chunk and end marker were written
	Failed        bool // an error event was written
}

type streamState int

const (
	stateStreaming streamState = iota
	stateTerminated
)

// emitter builds chunks for a single stream. id and model stay fixed and
// created never goes backwards.
type emitter struct {
	t           *Translator
	w           ChunkWriter
	id          string
	lastCreated int64
	roleSent    bool
	state       streamState
}

func (e *emitter) created() int64 {
	now := e.t.now().Unix()
	if now < e.lastCreated {
		now = e.lastCreated
	}
	e.lastCreated = now
	return now
}

func (e *emitter) chunk(delta Delta, finish *string) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      e.id,
		Object:  objectChatChunk,
		Created: e.created(),
		Model:   e.t.model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func (e *emitter) content(text string) error {
	delta := Delta{Content: text}
	if !e.roleSent {
		delta.Role = RoleAssistant
		e.roleSent = true
	}
	return e.w.WriteChunk(e.chunk(delta, nil))
}

func (e *emitter) terminate() error {
	e.state = stateTerminated
	reason := finishReasonStop
	if err := e.w.WriteChunk(e.chunk(Delta{}, &reason)); err != nil {
		return err
	}
	return e.w.WriteDone()
}

// fail writes one in-band error event. No terminal chunk and no end marker
// follow it.
func (e *emitter) fail(cause error) error {
	e.state = stateTerminated
	if err := e.w.WriteError(apierror.FromError(cause).Envelope()); err != nil {
		return err
	}
	return cause
}

// Stream pulls backend results one at a time and writes the matching
// chat.completion.chunk frames to w.
//
// A done chunk produces its content (if any), a terminal chunk with
// finish_reason "stop", and the end marker. A backend failure, or the
// results channel closing before done, produces a single error event and a
// non-nil error. If ctx ends or w fails, Stream returns without reading
// further; the caller must cancel the backend stream's context.
func (t *Translator) Stream(ctx context.Context, results <-chan backend.StreamResult, w ChunkWriter) (StreamStats, error) {
	logger := logging.L(ctx)
	stats := StreamStats{}
	e := &emitter{t: t, w: w, id: t.newID(chatIDPrefix), state: stateStreaming}

	for e.state == stateStreaming {
		var (
			res backend.StreamResult
			ok  bool
		)
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case res, ok = <-results:
		}

		if !ok {
			stats.Failed = true
			return stats, e.fail(apierror.ErrStreamAborted)
		}

		if res.Err != nil {
			if backend.IsDecodeError(res.Err) && !t.streamOpts.FailOnDecodeError {
				stats.SkippedLines++
				logger.Warn("skipping undecodable stream line", zap.Error(res.Err))
				continue
			}
			stats.Failed = true
			return stats, e.fail(fmt.Errorf("stream: %w", res.Err))
		}

		if res.Chunk == nil {
			continue
		}

		if res.Chunk.TextDelta != "" {
			if err := e.content(res.Chunk.TextDelta); err != nil {
				return stats, err
			}
			stats.ContentChunks++
		}

		if res.Chunk.Done {
			if err := e.terminate(); err != nil {
				return stats, err
			}
			stats.Terminated = true
		}
	}

	return stats, nil
}
