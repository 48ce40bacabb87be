package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsketch/medsketch/internal/log"
)

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewHealthHandler creates a new health handler. A nil pool means the
// service intentionally runs without the passage index and readiness
// reports retrieval as disabled instead of failing.
func NewHealthHandler(pool *pgxpool.Pool, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 OK whenever the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// readiness pings the database when retrieval is configured. A missing
// pool is not a failure since the service serves direct-mode prompts.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ready",
			"retrieval": "disabled",
		}, h.logger)
		return
	}

	pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pool.Ping(pingCtx); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":    "unavailable",
			"retrieval": "unreachable",
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"retrieval": "ok",
	}, h.logger)
}
