package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"ollama-openai-gateway/internal/apierror"
	"ollama-openai-gateway/internal/backend"
	"ollama-openai-gateway/internal/cache"
	"ollama-openai-gateway/internal/translate"
)

type mockBackend struct {
	reply       *backend.GenerationReply
	stream      chan backend.StreamResult
	err         error
	streamErr   error
	numbered    bool // reply "sample-N" on the Nth call
	calls       int
	streamCalls int
	lastRequest *backend.GenerationRequest
}

func (m *mockBackend) Generate(ctx context.Context, req *backend.GenerationRequest) (*backend.GenerationReply, error) {
	m.calls++
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	if m.numbered {
		return &backend.GenerationReply{Text: fmt.Sprintf("sample-%d", m.calls)}, nil
	}
	return m.reply, nil
}

func (m *mockBackend) GenerateStream(ctx context.Context, req *backend.GenerationRequest) (<-chan backend.StreamResult, error) {
	m.streamCalls++
	m.lastRequest = req
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	if m.stream == nil {
		m.stream = make(chan backend.StreamResult)
	}
	return m.stream, nil
}

func testDeps(b backend.Client) Deps {
	return Deps{
		Backend: b,
		Translator: translate.New("lux-assistant",
			translate.WithIDFunc(func(prefix string) string { return prefix + "-test" }),
			translate.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		),
		BackendModel: "llama3",
	}
}

func post(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) apierror.Envelope {
	t.Helper()
	var env apierror.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return env
}

// sseData returns the payload of every data: frame in order.
func sseData(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("unexpected frame %q", block)
		}
		frames = append(frames, strings.TrimPrefix(block, "data: "))
	}
	return frames
}

func TestChatHandlerNonStream(t *testing.T) {
	fake := &mockBackend{reply: &backend.GenerationReply{Text: "Hi there"}}
	h := NewChatHandler(testDeps(fake))

	rr := post(t, h.ChatCompletion, "/v1/chat/completions",
		`{"model":"whatever","messages":[{"role":"system","content":"Be nice"},{"role":"user","content":"Hello"}]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp translate.ChatCompletion
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "chatcmpl-test" || resp.Object != "chat.completion" || resp.Model != "lux-assistant" {
		t.Fatalf("unexpected envelope: %#v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Hi there" || resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("unexpected choices: %#v", resp.Choices)
	}
	if resp.Usage != (translate.Usage{}) {
		t.Fatalf("expected zero usage, got %#v", resp.Usage)
	}

	if fake.calls != 1 {
		t.Fatalf("expected one backend call, got %d", fake.calls)
	}
	got := fake.lastRequest
	if got.Model != "llama3" || got.Stream {
		t.Fatalf("unexpected backend request: %#v", got)
	}
	if got.Prompt != "System: Be nice\n\nUser: Hello\n\nAssistant: " {
		t.Fatalf("unexpected prompt %q", got.Prompt)
	}
	if got.Options.Temperature != 0.7 || got.Options.MaxOutputTokens != 2000 {
		t.Fatalf("expected default options, got %#v", got.Options)
	}
}

func TestChatHandlerForwardsParams(t *testing.T) {
	fake := &mockBackend{reply: &backend.GenerationReply{Text: "ok"}}
	h := NewChatHandler(testDeps(fake))

	rr := post(t, h.ChatCompletion, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"x"}],"temperature":0,"max_tokens":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if fake.lastRequest.Options.Temperature != 0 || fake.lastRequest.Options.MaxOutputTokens != 5 {
		t.Fatalf("explicit params not forwarded: %#v", fake.lastRequest.Options)
	}
}

func TestChatHandlerBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"messages":`},
		{"temperature out of range", `{"messages":[],"temperature":3}`},
		{"non-positive max_tokens", `{"messages":[],"max_tokens":0}`},
		{"trailing data", `{"messages":[]} trailing-garbage`},
		{"second value", `{"messages":[]}{"messages":[]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &mockBackend{}
			h := NewChatHandler(testDeps(fake))

			rr := post(t, h.ChatCompletion, "/v1/chat/completions", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			if env := decodeEnvelope(t, rr); env.Error.Type != "invalid_request_error" {
				t.Fatalf("unexpected error type %q", env.Error.Type)
			}
			if fake.calls+fake.streamCalls != 0 {
				t.Fatalf("backend must not be called on invalid input")
			}
		})
	}
}

func TestChatHandlerBackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unavailable", backend.ErrUnavailable, http.StatusInternalServerError, "backend_unavailable"},
		{"timeout", backend.ErrTimeout, http.StatusGatewayTimeout, "backend_timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &mockBackend{err: errors.Join(tc.err, errors.New("dial tcp: secret-host refused"))}
			h := NewChatHandler(testDeps(fake))

			rr := post(t, h.ChatCompletion, "/v1/chat/completions", `{"messages":[{"role":"user","content":"x"}]}`)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			env := decodeEnvelope(t, rr)
			if env.Error.Code != tc.code || env.Error.Type != "server_error" {
				t.Fatalf("unexpected error body: %#v", env.Error)
			}
			if strings.Contains(rr.Body.String(), "secret-host") {
				t.Fatalf("backend detail leaked to client: %s", rr.Body.String())
			}
		})
	}
}

func chatContent(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp translate.ChatCompletion
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Choices[0].Message.Content
}

func TestChatHandlerCachesGreedyReplies(t *testing.T) {
	store := cache.NewMemoryExactCache(time.Minute)
	t.Cleanup(func() { store.Close() })

	fake := &mockBackend{numbered: true}
	d := testDeps(fake)
	d.Cache = cache.NewReplyCache(store, time.Minute, "vtest")
	h := NewChatHandler(d)

	body := `{"messages":[{"role":"user","content":"same"}],"temperature":0}`
	for i := 0; i < 2; i++ {
		if got := chatContent(t, post(t, h.ChatCompletion, "/v1/chat/completions", body)); got != "sample-1" {
			t.Fatalf("request %d: unexpected content %q", i, got)
		}
	}

	if fake.calls != 1 {
		t.Fatalf("expected second request to be served from cache, backend calls = %d", fake.calls)
	}

	key, err := cache.BuildKey(cache.KindChat, *fake.lastRequest, "vtest")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	if _, hit, _ := store.Get(context.Background(), key); !hit {
		t.Fatalf("expected reply to be cached under %s", key)
	}
}

func TestChatHandlerSampledRequestsSkipCache(t *testing.T) {
	store := cache.NewMemoryExactCache(time.Minute)
	t.Cleanup(func() { store.Close() })

	fake := &mockBackend{numbered: true}
	d := testDeps(fake)
	d.Cache = cache.NewReplyCache(store, time.Minute, "vtest")
	h := NewChatHandler(d)

	bodies := []string{
		`{"messages":[{"role":"user","content":"same"}],"temperature":1.5}`,
		// default temperature is 0.7
		`{"messages":[{"role":"user","content":"same"}]}`,
	}
	for _, body := range bodies {
		fake.calls = 0
		for i := 1; i <= 3; i++ {
			want := fmt.Sprintf("sample-%d", i)
			if got := chatContent(t, post(t, h.ChatCompletion, "/v1/chat/completions", body)); got != want {
				t.Fatalf("request %d: expected fresh reply %q, got %q", i, want, got)
			}
		}
		if fake.calls != 3 {
			t.Fatalf("every sampled request must reach the backend, calls = %d", fake.calls)
		}
	}

	if store.Len() != 0 {
		t.Fatalf("sampled replies must not be stored, got %d entries", store.Len())
	}
}

func TestChatHandlerStream(t *testing.T) {
	streamChan := make(chan backend.StreamResult, 4)
	fake := &mockBackend{stream: streamChan}
	h := NewChatHandler(testDeps(fake))

	streamChan <- backend.StreamResult{Chunk: &backend.GenerationChunk{TextDelta: "Hel"}}
	streamChan <- backend.StreamResult{Err: &backend.DecodeError{Line: 2, Err: errors.New("bad json")}}
	streamChan <- backend.StreamResult{Chunk: &backend.GenerationChunk{TextDelta: "lo"}}
	streamChan <- backend.StreamResult{Chunk: &backend.GenerationChunk{Done: true}}
	close(streamChan)

	rr := post(t, h.ChatCompletion, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"stream please"}],"stream":true}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rr.Header().Get("Cache-Control") != "no-cache" {
		t.Fatalf("expected Cache-Control no-cache")
	}
	if !fake.lastRequest.Stream {
		t.Fatalf("expected streaming backend request")
	}

	frames := sseData(t, rr.Body.String())
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d: %q", len(frames), frames)
	}
	if frames[3] != "[DONE]" {
		t.Fatalf("expected end marker last, got %q", frames[3])
	}

	var chunks []translate.ChatCompletionChunk
	for _, f := range frames[:3] {
		var c translate.ChatCompletionChunk
		if err := json.Unmarshal([]byte(f), &c); err != nil {
			t.Fatalf("decode chunk %q: %v", f, err)
		}
		if c.ID != "chatcmpl-test" || c.Object != "chat.completion.chunk" || c.Model != "lux-assistant" {
			t.Fatalf("unexpected chunk envelope: %#v", c)
		}
		chunks = append(chunks, c)
	}

	if chunks[0].Choices[0].Delta.Role != "assistant" || chunks[0].Choices[0].Delta.Content != "Hel" {
		t.Fatalf("unexpected first delta: %#v", chunks[0].Choices[0].Delta)
	}
	if chunks[1].Choices[0].Delta.Role != "" || chunks[1].Choices[0].Delta.Content != "lo" {
		t.Fatalf("unexpected second delta: %#v", chunks[1].Choices[0].Delta)
	}
	last := chunks[2].Choices[0]
	if last.FinishReason == nil || *last.FinishReason != "stop" || last.Delta.Content != "" {
		t.Fatalf("unexpected terminal chunk: %#v", last)
	}
	if !strings.Contains(frames[2], `"delta":{}`) {
		t.Fatalf("terminal delta should be empty object: %s", frames[2])
	}
}

func TestChatHandlerStreamAborted(t *testing.T) {
	streamChan := make(chan backend.StreamResult, 1)
	fake := &mockBackend{stream: streamChan}
	h := NewChatHandler(testDeps(fake))

	streamChan <- backend.StreamResult{Chunk: &backend.GenerationChunk{TextDelta: "partial"}}
	close(streamChan)

	rr := post(t, h.ChatCompletion, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"x"}],"stream":true}`)

	frames := sseData(t, rr.Body.String())
	if len(frames) != 2 {
		t.Fatalf("expected content and error frames, got %q", frames)
	}

	var env apierror.Envelope
	if err := json.Unmarshal([]byte(frames[1]), &env); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if env.Error.Type != "server_error" || env.Error.Message == "" {
		t.Fatalf("unexpected error frame: %#v", env)
	}
	if strings.Contains(rr.Body.String(), "[DONE]") {
		t.Fatalf("end marker must not follow an error event")
	}
}

func TestChatHandlerStreamConnectFailure(t *testing.T) {
	fake := &mockBackend{streamErr: backend.ErrUnavailable}
	h := NewChatHandler(testDeps(fake))

	rr := post(t, h.ChatCompletion, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"x"}],"stream":true}`)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	frames := sseData(t, rr.Body.String())
	if len(frames) != 1 {
		t.Fatalf("expected a single error frame, got %q", frames)
	}
	var env apierror.Envelope
	if err := json.Unmarshal([]byte(frames[0]), &env); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if env.Error.Code != "backend_unavailable" {
		t.Fatalf("unexpected error frame: %#v", env)
	}
}

func TestCompletionHandler(t *testing.T) {
	fake := &mockBackend{reply: &backend.GenerationReply{Text: " world"}}
	h := NewCompletionHandler(testDeps(fake))

	rr := post(t, h.Completion, "/v1/completions", `{"prompt":"Hello","max_tokens":16,"stream":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp translate.TextCompletion
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Object != "text_completion" || resp.ID != "cmpl-test" {
		t.Fatalf("unexpected envelope: %#v", resp)
	}
	if resp.Choices[0].Text != " world" || resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("unexpected choice: %#v", resp.Choices[0])
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"logprobs":null`)) {
		t.Fatalf("expected logprobs null: %s", rr.Body.String())
	}

	if fake.lastRequest.Prompt != "Hello" || fake.lastRequest.Stream {
		t.Fatalf("prompt must be forwarded verbatim without streaming: %#v", fake.lastRequest)
	}
	if fake.lastRequest.Options.MaxOutputTokens != 16 {
		t.Fatalf("max_tokens not forwarded: %#v", fake.lastRequest.Options)
	}
}

func TestCompletionHandlerRejectsNonStringPrompt(t *testing.T) {
	fake := &mockBackend{}
	h := NewCompletionHandler(testDeps(fake))

	rr := post(t, h.Completion, "/v1/completions", `{"prompt":["a","b"]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if fake.calls != 0 {
		t.Fatalf("backend must not be called")
	}
}

func TestModelsHandler(t *testing.T) {
	created := time.Unix(1700000000, 0)
	h := NewModelsHandler("lux-assistant", "ollama", created)

	r := chi.NewRouter()
	r.Get("/v1/models", h.List)
	r.Get("/v1/models/{model}", h.Get)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var list ModelList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 1 {
		t.Fatalf("unexpected list: %#v", list)
	}
	m := list.Data[0]
	if m.ID != "lux-assistant" || m.Object != "model" || m.OwnedBy != "ollama" || m.Created != created.Unix() || m.Root != "lux-assistant" {
		t.Fatalf("unexpected model: %#v", m)
	}
	if !strings.Contains(rr.Body.String(), `"permission":[]`) || !strings.Contains(rr.Body.String(), `"parent":null`) {
		t.Fatalf("unexpected model encoding: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/models/lux-assistant", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for known model, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/models/gpt-4", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown model, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Error.Code != "model_not_found" {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"status":"healthy"}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}
