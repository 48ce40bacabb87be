// Package api provides the HTTP REST API for medsketch.
//
// Endpoints:
//
//	POST /generate-prompt    →  prompt pipeline (grounded or direct)
//	POST /generate-image     →  Gemini image generation, PNG saved to disk
//	GET  /images/{filename}  →  serve a previously generated PNG
//	GET  /health             →  liveness probe
//	GET  /ready              →  readiness probe (passage index ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, request ID, logging middleware
//   - ratelimit.go: per-IP token bucket rate limiting
//   - health.go: health check endpoints
//   - prompt.go: prompt generation endpoint
//   - image.go: image generation and retrieval endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsketch/medsketch/internal/imagegen"
	"github.com/medsketch/medsketch/internal/log"
	"github.com/medsketch/medsketch/internal/prompt"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Prompt and image generation both wait on model calls, so this is
	// deliberately generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// ServerConfig contains the dependencies for creating the API server.
type ServerConfig struct {
	Logger   log.Logger
	Pipeline *prompt.Pipeline    // Required
	Images   *imagegen.Generator // Required
	Pool     *pgxpool.Pool       // Optional: nil reports retrieval disabled in /ready

	// RateRPS and RateBurst configure the per-IP rate limiter.
	// Zero values fall back to 5 rps with a burst of 10.
	RateRPS   float64
	RateBurst int
}

// Server is the medsketch HTTP server.
type Server struct {
	handler http.Handler
	logger  log.Logger
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("prompt pipeline is required")
	}
	if cfg.Images == nil {
		return nil, errors.New("image generator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}

	mux := http.NewServeMux()
	NewHealthHandler(cfg.Pool, logger).RegisterRoutes(mux)
	NewPromptHandler(cfg.Pipeline, logger).RegisterRoutes(mux)
	NewImageHandler(cfg.Images, logger).RegisterRoutes(mux)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID runs before Logging so request_id shows in log attributes.
	rl := newRateLimiter(rps, burst)
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	return &Server{handler: final, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
