package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medsketch/medsketch/internal/app"
	"github.com/medsketch/medsketch/internal/config"
	"github.com/medsketch/medsketch/internal/log"
)

// timeRound trims duration output to a readable precision.
const timeRound = 10 * time.Millisecond

// runIndex chunks and embeds a corpus file or directory.
func runIndex(logger log.Logger) error {
	if len(os.Args) < 3 {
		return errors.New("usage: medsketch index <path>")
	}
	path := os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.RetrievalEnabled {
		return errors.New("retrieval is disabled, nothing to index")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if a.Indexer == nil {
		return errors.New("passage index unavailable, cannot index")
	}

	result, err := a.Indexer.Run(ctx, path)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}

	fmt.Printf("Indexed %d file(s), %d chunk(s) in %s\n",
		result.FilesIndexed, result.ChunksAdded, result.Duration.Round(timeRound))
	if result.FilesSkipped > 0 {
		fmt.Printf("Skipped %d unsupported file(s)\n", result.FilesSkipped)
	}
	if result.FilesFailed > 0 {
		fmt.Printf("Failed %d file(s), see logs\n", result.FilesFailed)
	}
	return nil
}
