package backend

// Request body for POST /api/generate.
type wireGenerateRequest struct {
	Model   string      `json:"model"`
	Prompt  string      `json:"prompt"`
	Stream  bool        `json:"stream"`
	Options wireOptions `json:"options"`
}

type wireOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// Non-streaming reply. Streamed lines share the shape and are read with gjson.
type wireGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func toWire(req *GenerationRequest, model string, stream bool) wireGenerateRequest {
	if req.Model != "" {
		model = req.Model
	}
	return wireGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		Stream: stream,
		Options: wireOptions{
			Temperature: req.Options.Temperature,
			NumPredict:  req.Options.MaxOutputTokens,
		},
	}
}
