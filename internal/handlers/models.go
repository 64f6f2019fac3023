package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ollama-openai-gateway/internal/apierror"
)

type Model struct {
	ID         string   `json:"id"`
	Object     string   `json:"object"`
	Created    int64    `json:"created"`
	OwnedBy    string   `json:"owned_by"`
	Permission []string `json:"permission"`
	Root       string   `json:"root"`
	Parent     *string  `json:"parent"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ModelsHandler serves the static single-model listing.
type ModelsHandler struct {
	model Model
}

func NewModelsHandler(id, ownedBy string, created time.Time) *ModelsHandler {
	return &ModelsHandler{model: Model{
		ID:         id,
		Object:     "model",
		Created:    created.Unix(),
		OwnedBy:    ownedBy,
		Permission: []string{},
		Root:       id,
	}}
}

// List handles GET /v1/models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelList{Object: "list", Data: []Model{h.model}})
}

// Get handles GET /v1/models/{model}.
func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "model") != h.model.ID {
		apierror.NotFound("model_not_found", "The model does not exist").Write(w)
		return
	}
	writeJSON(w, http.StatusOK, h.model)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
