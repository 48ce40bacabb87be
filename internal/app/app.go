// Package app provides application initialization and dependency wiring.
//
// App is the container that builds the prompt pipeline from its parts:
// configuration, logging, the PostgreSQL passage index, Genkit model
// access and the image generator. Setup degrades gracefully when the
// passage index is unreachable, leaving a direct-mode pipeline rather
// than refusing to start; a missing API key stays fatal.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsketch/medsketch/internal/config"
	"github.com/medsketch/medsketch/internal/imagegen"
	"github.com/medsketch/medsketch/internal/indexer"
	"github.com/medsketch/medsketch/internal/log"
	"github.com/medsketch/medsketch/internal/passage"
	"github.com/medsketch/medsketch/internal/prompt"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	// DBPool and Passages are nil when the index is unreachable and the
	// service runs in direct mode.
	DBPool   *pgxpool.Pool
	Passages *passage.Store

	Pipeline *prompt.Pipeline
	Indexer  *indexer.Indexer
	Images   *imagegen.Generator

	otelCleanup func()
	cancel      context.CancelFunc
}

// Close releases application resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// RetrievalReady reports whether the passage index is connected.
func (a *App) RetrievalReady() bool {
	return a.Passages != nil
}
