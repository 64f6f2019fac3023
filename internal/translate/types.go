package translate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

const finishReasonStop = "stop"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnmarshalJSON accepts content as a string or as an array of content parts,
// of which only {"type":"text"} parts are kept. Any other JSON value is kept
// as its compact JSON text.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = ""

	content := bytes.TrimSpace(raw.Content)
	if len(content) == 0 || bytes.Equal(content, []byte("null")) {
		return nil
	}

	switch content[0] {
	case '"':
		return json.Unmarshal(content, &m.Content)
	case '[':
		var parts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(content, &parts); err != nil {
			return fmt.Errorf("content parts: %w", err)
		}
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Type == "text" {
				texts = append(texts, p.Text)
			}
		}
		m.Content = strings.Join(texts, "\n")
		return nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, content); err != nil {
			return err
		}
		m.Content = buf.String()
		return nil
	}
}

// Params are the resolved sampling parameters of a request.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// ChatRequest is the body of POST /v1/chat/completions. Model is accepted
// for compatibility and ignored; the gateway serves a single model.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

func (r *ChatRequest) Validate() error {
	return validateParams(r.Temperature, r.MaxTokens)
}

func (r *ChatRequest) Params() Params {
	return resolveParams(r.Temperature, r.MaxTokens)
}

// CompletionRequest is the body of the legacy POST /v1/completions.
type CompletionRequest struct {
	Model       string          `json:"model,omitempty"`
	Prompt      json.RawMessage `json:"prompt"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

func (r *CompletionRequest) Validate() error {
	if _, err := r.PromptText(); err != nil {
		return err
	}
	return validateParams(r.Temperature, r.MaxTokens)
}

// PromptText returns the prompt as a string. A missing prompt is empty.
func (r *CompletionRequest) PromptText() (string, error) {
	p := bytes.TrimSpace(r.Prompt)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(p, &s); err != nil {
		return "", errors.New("prompt must be a string")
	}
	return s, nil
}

func (r *CompletionRequest) Params() Params {
	return resolveParams(r.Temperature, r.MaxTokens)
}

func validateParams(temperature *float64, maxTokens *int) error {
	if temperature != nil && (*temperature < 0 || *temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if maxTokens != nil && *maxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}

func resolveParams(temperature *float64, maxTokens *int) Params {
	p := Params{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	if temperature != nil {
		p.Temperature = *temperature
	}
	if maxTokens != nil {
		p.MaxTokens = *maxTokens
	}
	return p
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type TextChoice struct {
	Text         string    `json:"text"`
	Index        int       `json:"index"`
	Logprobs     *struct{} `json:"logprobs"`
	FinishReason string    `json:"finish_reason"`
}

type TextCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []TextChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"` // null until the terminal chunk
}

type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}
