package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ollama-openai-gateway/internal/backend"
)

func TestFromError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unavailable", fmt.Errorf("%w: upstream status 500", backend.ErrUnavailable), http.StatusInternalServerError, "backend_unavailable"},
		{"timeout", fmt.Errorf("%w: %w", backend.ErrTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout, "backend_timeout"},
		{"aborted", ErrStreamAborted, http.StatusBadGateway, "stream_aborted"},
		{"decode", &backend.DecodeError{Line: 1, Err: errors.New("bad")}, http.StatusBadGateway, "decode_error"},
		{"passthrough", BadRequest("nope"), http.StatusBadRequest, "invalid_request_error"},
		{"unknown", errors.New("secret internal detail"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := FromError(tc.err)
			if got.Status != tc.status || got.Code != tc.code {
				t.Fatalf("got %d/%s, want %d/%s", got.Status, got.Code, tc.status, tc.code)
			}
		})
	}

	if FromError(nil) != nil {
		t.Fatalf("nil error should map to nil")
	}
}

func TestWriteDoesNotLeakCause(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	FromError(fmt.Errorf("%w: dial tcp 10.0.0.7:11434: connection refused", backend.ErrUnavailable)).Write(rr)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Error.Message != "Backend request failed" || env.Error.Type != "server_error" {
		t.Fatalf("unexpected envelope: %#v", env)
	}
}
