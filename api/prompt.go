package api

import (
	"encoding/json"
	"net/http"

	"github.com/medsketch/medsketch/internal/log"
	"github.com/medsketch/medsketch/internal/prompt"
)

// defaultQuestion is used when a request omits user_question.
const defaultQuestion = "A serene landscape at sunset"

// maxRequestBody caps JSON request bodies at 1 MiB.
const maxRequestBody = 1 << 20

// PromptHandler serves prompt generation requests.
type PromptHandler struct {
	pipeline *prompt.Pipeline
	logger   log.Logger
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(pipeline *prompt.Pipeline, logger log.Logger) *PromptHandler {
	return &PromptHandler{pipeline: pipeline, logger: logger}
}

// RegisterRoutes registers prompt routes on the given mux.
func (h *PromptHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /generate-prompt", h.generate)
}

type generatePromptRequest struct {
	SystemInstruction string `json:"system_instruction"`
	UserQuestion      string `json:"user_question"`
}

type generatePromptResponse struct {
	Prompt  string `json:"prompt"`
	Path    string `json:"path"`
	Success bool   `json:"success"`
}

func (h *PromptHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req generatePromptRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", h.logger)
		return
	}

	if req.SystemInstruction == "" {
		writeError(w, http.StatusBadRequest, "system_instruction is required", h.logger)
		return
	}
	if req.UserQuestion == "" {
		req.UserQuestion = defaultQuestion
	}

	result, err := h.pipeline.Generate(r.Context(), req.SystemInstruction, req.UserQuestion)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away, nobody is reading the response.
			h.logger.Debug("prompt request canceled", "error", err)
			return
		}
		h.logger.Error("prompt generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "prompt generation failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, generatePromptResponse{
		Prompt:  result.Prompt,
		Path:    result.Path,
		Success: true,
	}, h.logger)
}
