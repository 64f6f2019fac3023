package translate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"ollama-openai-gateway/internal/backend"
)

const (
	objectChatCompletion = "chat.completion"
	objectChatChunk      = "chat.completion.chunk"
	objectTextCompletion = "text_completion"

	chatIDPrefix = "chatcmpl"
	textIDPrefix = "cmpl"
)

// Translator turns backend replies into OpenAI-shaped payloads for one
// advertised model. It holds configuration only and is safe for concurrent use.
type Translator struct {
	model      string
	newID      func(prefix string) string
	now        func() time.Time
	streamOpts StreamOptions
}

type Option func(*Translator)

// WithIDFunc replaces the id generator.
func WithIDFunc(fn func(prefix string) string) Option {
	return func(t *Translator) { t.newID = fn }
}

// WithClock replaces the time source used for created timestamps.
func WithClock(fn func() time.Time) Option {
	return func(t *Translator) { t.now = fn }
}

func WithStreamOptions(o StreamOptions) Option {
	return func(t *Translator) { t.streamOpts = o }
}

func New(model string, opts ...Option) *Translator {
	t := &Translator{
		model: model,
		newID: RandomID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Translator) Model() string { return t.model }

// RandomID returns prefix-<32 hex chars>.
func RandomID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Chat converts a complete reply into a chat.completion object.
func (t *Translator) Chat(reply backend.GenerationReply) ChatCompletion {
	return ChatCompletion{
		ID:      t.newID(chatIDPrefix),
		Object:  objectChatCompletion,
		Created: t.now().Unix(),
		Model:   t.model,
		Choices: []ChatChoice{
			{
				Index:        0,
				Message:      ChatMessage{Role: RoleAssistant, Content: reply.Text},
				FinishReason: finishReasonStop,
			},
		},
		Usage: Usage{},
	}
}

// Text converts a complete reply into a legacy text_completion object.
func (t *Translator) Text(reply backend.GenerationReply) TextCompletion {
	return TextCompletion{
		ID:      t.newID(textIDPrefix),
		Object:  objectTextCompletion,
		Created: t.now().Unix(),
		Model:   t.model,
		Choices: []TextChoice{
			{
				Text:         reply.Text,
				Index:        0,
				FinishReason: finishReasonStop,
			},
		},
		Usage: Usage{},
	}
}
