package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/medsketch/medsketch/internal/log"
)

// writeJSON writes a JSON response with the given status code.
// Encodes into a buffer first so headers are only sent after successful
// encoding, which allows a proper 500 when encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("writing response body", "error", err)
	}
}

// errorResponse matches the error body shape clients already consume.
type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// writeError writes a JSON error response. The message must be safe to
// show to clients, never internal error chains.
func writeError(w http.ResponseWriter, status int, message string, logger log.Logger) {
	writeJSON(w, status, errorResponse{Error: message, Success: false}, logger)
}
