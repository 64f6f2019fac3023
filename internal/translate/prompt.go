package translate

import (
	"strings"

	"ollama-openai-gateway/internal/backend"
)

// assistantCue ends every prompt so the backend continues as the assistant.
const assistantCue = "Assistant: "

var roleLabels = map[string]string{
	RoleSystem:    "System",
	RoleUser:      "User",
	RoleAssistant: "Assistant",
}

// Compose flattens a conversation into a single backend prompt:
//
//	"System: <content>\n\nUser: <content>\n\n...Assistant: "
//
// Messages with an unrecognised role are dropped.
func Compose(messages []ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		label, ok := roleLabels[m.Role]
		if !ok {
			continue
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString(assistantCue)
	return b.String()
}

// NewGenerationRequest builds the backend request for an already composed prompt.
func NewGenerationRequest(model, prompt string, stream bool, p Params) backend.GenerationRequest {
	return backend.GenerationRequest{
		Model:  model,
		Prompt: prompt,
		Stream: stream,
		Options: backend.Options{
			Temperature:     p.Temperature,
			MaxOutputTokens: p.MaxTokens,
		},
	}
}
