package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/blob"
	"github.com/skaldlabs/skald-sub002/internal/config"
	"github.com/skaldlabs/skald-sub002/internal/docconv"
	"github.com/skaldlabs/skald-sub002/internal/engine"
	"github.com/skaldlabs/skald-sub002/internal/llm"
	"github.com/skaldlabs/skald-sub002/internal/rerank"
	"github.com/skaldlabs/skald-sub002/internal/retrieval"
	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/internal/storage/postgres"
	"github.com/skaldlabs/skald-sub002/internal/storage/sqlite"
)

// app holds the process-wide clients shared by every subcommand.
type app struct {
	cfg    *config.Config
	store  storage.Store
	logger zerolog.Logger

	// db is the postgres pool, nil for sqlite. The pgmq backend shares it.
	db *sql.DB

	migrations func() (*storage.MigrationManager, error)
}

// openApp opens the configured store. Migrations are applied on open unless
// skipMigrations is set.
func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, skipMigrations bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Database.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create data directory %q: %w", dir, err)
			}
		}
		store, err := sqlite.NewStore(cfg.Database.SQLitePath, sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.store = store
		a.migrations = store.Migrations

	default:
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:            cfg.Database.URL,
			MaxOpenConns:   cfg.Database.MaxOpenConns,
			Dimension:      cfg.Embedding.Dimension,
			SkipMigrations: skipMigrations,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		a.store = store
		a.db = store.DB()
		a.migrations = store.Migrations
	}

	logger.Debug().Str("driver", cfg.Database.Driver).Msg("store opened")
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close store")
	}
}

// newProcessor wires the ingestion pipeline. The text generator, document
// converter and blob store are optional; their absence disables tags and
// summaries or document conversion respectively.
func (a *app) newProcessor(ctx context.Context) (*engine.Processor, error) {
	embedder, err := llm.NewEmbeddingGenerator(a.cfg.Embedding, a.cfg.LLM)
	if err != nil {
		return nil, err
	}

	deps := engine.Dependencies{Embedder: embedder, Logger: a.logger}

	if gen, err := llm.NewTextGenerator(a.cfg.LLM); err != nil {
		a.logger.Warn().Err(err).Msg("no text generator, tags and summaries are disabled")
	} else {
		deps.Generator = gen
	}

	if a.cfg.DocConv.URL != "" {
		conv, err := docconv.NewConverter(a.cfg.DocConv, a.logger)
		if err != nil {
			return nil, err
		}
		blobs, err := blob.NewStore(ctx, a.cfg.Blob)
		if err != nil {
			return nil, err
		}
		deps.Converter = conv
		deps.Blobs = blobs
	} else {
		a.logger.Info().Msg("DOCCONV_URL not set, document memos will fail conversion")
	}

	return engine.NewProcessor(deps, engine.ProcessorConfig{
		StaleProcessingAfter: a.cfg.Queue.StaleProcessingAfter,
	})
}

// newGraph wires the retrieval graph with the configured reranker.
func (a *app) newGraph() (*retrieval.Graph, llm.TextGenerator, error) {
	embedder, err := llm.NewEmbeddingGenerator(a.cfg.Embedding, a.cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	gen, err := llm.NewTextGenerator(a.cfg.LLM)
	if err != nil {
		a.logger.Warn().Err(err).Msg("no text generator, query rewrite and llm rerank are unavailable")
	}

	provider, err := rerank.NewProvider(a.cfg, gen)
	if err != nil {
		return nil, nil, err
	}
	batcher := rerank.NewBatcher(provider,
		rerank.WithBatchSize(a.cfg.Rerank.BatchSize),
		rerank.WithTopK(a.cfg.Rerank.TopK),
		rerank.WithLogger(a.logger),
	)

	graph := retrieval.NewGraph(a.store, embedder, batcher,
		retrieval.WithSimilarityThreshold(a.cfg.Retrieval.SimilarityThreshold),
		retrieval.WithLogger(a.logger),
	)
	return graph, gen, nil
}
