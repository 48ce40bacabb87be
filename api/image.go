package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/medsketch/medsketch/internal/imagegen"
	"github.com/medsketch/medsketch/internal/log"
)

// ImageHandler serves image generation and retrieval requests.
type ImageHandler struct {
	generator *imagegen.Generator
	logger    log.Logger
}

// NewImageHandler creates a new image handler.
func NewImageHandler(generator *imagegen.Generator, logger log.Logger) *ImageHandler {
	return &ImageHandler{generator: generator, logger: logger}
}

// RegisterRoutes registers image routes on the given mux.
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /generate-image", h.generate)
	mux.HandleFunc("GET /images/{filename}", h.serve)
}

type generateImageRequest struct {
	Prompt string `json:"prompt"`
}

type generateImageResponse struct {
	ImageURL string `json:"image_url"`
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
}

func (h *ImageHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", h.logger)
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required", h.logger)
		return
	}

	img, err := h.generator.Generate(r.Context(), req.Prompt)
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Debug("image request canceled", "error", err)
			return
		}
		if errors.Is(err, imagegen.ErrNoImage) {
			writeError(w, http.StatusBadGateway, "model returned no image data", h.logger)
			return
		}
		h.logger.Error("image generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "image generation failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, generateImageResponse{
		ImageURL: "/images/" + img.Filename,
		Filename: img.Filename,
		Success:  true,
	}, h.logger)
}

// serve returns a previously generated PNG. Filenames are validated so
// requests cannot reach outside the images directory.
func (h *ImageHandler) serve(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	path, err := h.generator.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "image not found", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid image filename", h.logger)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
