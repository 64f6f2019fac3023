package backend

import "context"

// Options are the sampling knobs forwarded to the backend.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
}

// GenerationRequest is a single prompt-completion call against the backend.
type GenerationRequest struct {
	Model   string
	Prompt  string
	Stream  bool
	Options Options
}

// GenerationReply is the complete text of a non-streaming call.
type GenerationReply struct {
	Text string `json:"text"`
}

// GenerationChunk is one line of a streamed reply. The last chunk has Done set.
type GenerationChunk struct {
	TextDelta string
	Done      bool
}

// StreamResult carries either a chunk or an error. A *DecodeError means only
// that line was bad and the stream continues; any other error is final.
type StreamResult struct {
	Chunk *GenerationChunk
	Err   error
}

type Client interface {
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationReply, error)
	GenerateStream(ctx context.Context, req *GenerationRequest) (<-chan StreamResult, error)
}
