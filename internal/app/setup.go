package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsketch/medsketch/db"
	"github.com/medsketch/medsketch/internal/config"
	"github.com/medsketch/medsketch/internal/imagegen"
	"github.com/medsketch/medsketch/internal/indexer"
	"github.com/medsketch/medsketch/internal/log"
	"github.com/medsketch/medsketch/internal/observability"
	"github.com/medsketch/medsketch/internal/passage"
	"github.com/medsketch/medsketch/internal/prompt"
)

// Setup initializes the application and wires all dependencies.
//
// A failing passage index is not fatal: the pipeline starts in direct
// mode and every request falls through to ungrounded synthesis. Model
// access failures remain fatal since nothing can be generated without
// them.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}

	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	application := &App{
		Config: cfg,
		Logger: logger,
		cancel: cancel,
	}

	otelCleanup, err := provideTracing(appCtx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	application.otelCleanup = otelCleanup

	g, err := provideGenkit(appCtx)
	if err != nil {
		application.Close()
		return nil, fmt.Errorf("initializing genkit: %w", err)
	}
	application.Genkit = g
	application.Embedder = provideEmbedder(g, cfg)

	// Retrieval is best effort at startup. When the index cannot be
	// reached the pipeline runs direct-only instead of failing.
	if cfg.RetrievalEnabled {
		pool, err := provideDBPool(appCtx, cfg, logger)
		if err != nil {
			logger.Warn("passage index unavailable, running in direct mode", "error", err)
		} else {
			application.DBPool = pool
			application.Passages = passage.New(pool, application.Embedder, logger)
		}
	} else {
		logger.Info("retrieval disabled by configuration, running in direct mode")
	}

	application.Pipeline = providePipeline(g, cfg, application.Passages, logger)
	application.Indexer = provideIndexer(application.Passages, logger)

	images, err := provideImageGenerator(appCtx, cfg, logger)
	if err != nil {
		application.Close()
		return nil, fmt.Errorf("initializing image generator: %w", err)
	}
	application.Images = images

	logger.Info("application initialized",
		"model", cfg.FullModelName(),
		"retrieval_ready", application.RetrievalReady(),
	)

	return application, nil
}

// provideTracing configures OTLP trace export when an endpoint is set.
// The returned cleanup flushes pending spans with a bounded timeout.
func provideTracing(ctx context.Context, cfg *config.Config, logger log.Logger) (func(), error) {
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return nil, err
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}, nil
}

// provideGenkit initializes the Genkit runtime with the Google AI plugin.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("genkit initialization returned nil")
	}
	return g, nil
}

// provideEmbedder returns the Gemini embedder used by the passage index.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}

// provideDBPool runs migrations and opens the pgx connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	connURL := cfg.PostgresURL()

	if err := db.Migrate(connURL, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Debug("database pool ready", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	return pool, nil
}

// providePipeline assembles the three prompt stages. A nil store yields
// a pipeline that only performs direct synthesis.
func providePipeline(g *genkit.Genkit, cfg *config.Config, store *passage.Store, logger log.Logger) *prompt.Pipeline {
	completer := prompt.NewGenkitCompleter(g, cfg.FullModelName(), cfg.Temperature, int32(cfg.MaxTokens))
	synthesizer := prompt.NewSynthesizer(completer)

	var (
		refiner   *prompt.Refiner
		assembler *prompt.Assembler
	)
	if store != nil {
		refiner = prompt.NewRefiner(completer)
		assembler = prompt.NewAssembler(store)
	}

	return prompt.NewPipeline(refiner, assembler, synthesizer, cfg.TopK, cfg.RetrievalTimeout, logger)
}

// provideIndexer builds the corpus indexer, nil without a passage store.
func provideIndexer(store *passage.Store, logger log.Logger) *indexer.Indexer {
	if store == nil {
		return nil
	}
	chunker := indexer.NewChunker(indexer.DefaultChunkSize, indexer.DefaultChunkOverlap)
	return indexer.New(store, chunker, logger)
}

// provideImageGenerator opens a genai client and prepares the output directory.
func provideImageGenerator(ctx context.Context, cfg *config.Config, logger log.Logger) (*imagegen.Generator, error) {
	client, err := imagegen.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return imagegen.New(client.Models, cfg.ImageModel, cfg.ImagesDir, logger)
}
