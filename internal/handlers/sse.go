package handlers

import (
	"encoding/json"
	"net/http"

	"ollama-openai-gateway/internal/apierror"
	"ollama-openai-gateway/internal/translate"
)

var doneFrame = []byte("data: [DONE]\n\n")

// sseWriter frames translator output as text/event-stream "data:" events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: f}, true
}

// start commits the stream headers. No HTTP status can be sent after this.
func (s *sseWriter) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *sseWriter) data(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := make([]byte, 0, len(b)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, b...)
	frame = append(frame, '\n', '\n')
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) WriteChunk(chunk *translate.ChatCompletionChunk) error {
	return s.data(chunk)
}

func (s *sseWriter) WriteError(env apierror.Envelope) error {
	return s.data(env)
}

func (s *sseWriter) WriteDone() error {
	if _, err := s.w.Write(doneFrame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
