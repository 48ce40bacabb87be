package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/medsketch/medsketch/api"
	"github.com/medsketch/medsketch/internal/app"
	"github.com/medsketch/medsketch/internal/config"
	"github.com/medsketch/medsketch/internal/log"
)

// runServe initializes and starts the HTTP API server.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting medsketch API server", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv, err := api.NewServer(api.ServerConfig{
		Logger:    logger,
		Pipeline:  a.Pipeline,
		Images:    a.Images,
		Pool:      a.DBPool,
		RateRPS:   cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"endpoints", "/generate-prompt, /generate-image, /images/{filename}",
		"health", "/health, /ready",
		"retrieval_ready", a.RetrievalReady(),
	)

	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}
