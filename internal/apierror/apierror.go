// Package apierror renders gateway failures as OpenAI-style error envelopes.
// Messages are fixed per kind; backend text never reaches the client.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ollama-openai-gateway/internal/backend"
)

// ErrStreamAborted marks a backend stream that ended before its done chunk.
var ErrStreamAborted = errors.New("stream aborted before completion")

type Error struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Envelope mirrors OpenAI's error body.
type Envelope struct {
	Error Body `json:"error"`
}

type Body struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func New(status int, typ, code, message string) *Error {
	return &Error{Status: status, Type: typ, Code: code, Message: message}
}

func Unauthorized() *Error {
	return New(http.StatusUnauthorized, "invalid_request_error", "invalid_api_key", "Unauthorized")
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, "invalid_request_error", "invalid_request_error", message)
}

func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, "invalid_request_error", code, message)
}

func Internal() *Error {
	return New(http.StatusInternalServerError, "server_error", "internal_error", "Internal server error")
}

// FromError maps the gateway error taxonomy to a client-facing error.
func FromError(err error) *Error {
	var apiErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, backend.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return New(http.StatusGatewayTimeout, "server_error", "backend_timeout", "Backend request timed out")
	case errors.Is(err, backend.ErrUnavailable):
		return New(http.StatusInternalServerError, "server_error", "backend_unavailable", "Backend request failed")
	case errors.Is(err, ErrStreamAborted):
		return New(http.StatusBadGateway, "server_error", "stream_aborted", "Backend stream ended before completion")
	case backend.IsDecodeError(err):
		return New(http.StatusBadGateway, "server_error", "decode_error", "Backend returned an undecodable chunk")
	default:
		return Internal()
	}
}

// Envelope returns the JSON body for e.
func (e *Error) Envelope() Envelope {
	return Envelope{Error: Body{Message: e.Message, Type: e.Type, Code: e.Code}}
}

// Write sends e as a JSON response with its status code.
func (e *Error) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.Envelope())
}
