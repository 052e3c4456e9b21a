// Package engine runs the memo ingestion pipeline: it resolves a memo's
// content, chunks and embeds it, extracts tags and a summary, and records the
// outcome in the memo's processing status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skaldlabs/skald-sub002/internal/blob"
	"github.com/skaldlabs/skald-sub002/internal/docconv"
	"github.com/skaldlabs/skald-sub002/internal/llm"
	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

var (
	// ErrMemoNotFound is returned when the queued memo does not exist. The
	// message is permanent: retrying cannot succeed.
	ErrMemoNotFound = errors.New("Memo not found")

	// ErrMemoBusy is returned when another live run owns the memo. That run
	// produces the result, so the message can be acknowledged.
	ErrMemoBusy = errors.New("memo is already being processed")

	// ErrConversionUnavailable is returned for document memos when no
	// converter or blob store is configured.
	ErrConversionUnavailable = errors.New("document conversion is not configured")
)

// MemoSession is the per-message storage the processor works against.
type MemoSession interface {
	storage.MemoStore
	storage.UsageRecorder
}

// ProcessorConfig holds the processor's tunables.
type ProcessorConfig struct {
	// ChunkSize is the maximum chunk length in characters. Default: 1024
	ChunkSize int

	// MinChunkSize is the length below which fragments are merged. Default: 128
	MinChunkSize int

	// MaxContentChars caps the text handed to chunking and generation.
	// Default: llm.MaxContentChars
	MaxContentChars int

	// StaleProcessingAfter is how long a processing run may hold a memo
	// before another run may take it over. Default: 30m
	StaleProcessingAfter time.Duration

	// EmbedConcurrency bounds concurrent chunk embedding calls. Default: 4
	EmbedConcurrency int
}

// DefaultProcessorConfig returns the default processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		ChunkSize:            llm.DefaultChunkSize,
		MinChunkSize:         llm.DefaultMinChunkSize,
		MaxContentChars:      llm.MaxContentChars,
		StaleProcessingAfter: 30 * time.Minute,
		EmbedConcurrency:     4,
	}
}

// Dependencies are the external services the processor calls.
type Dependencies struct {
	Embedder llm.EmbeddingGenerator

	// Generator is optional. Tags and summaries are only produced when it
	// supports structured output.
	Generator llm.TextGenerator

	// Converter and Blobs are required for document memos only.
	Converter docconv.Converter
	Blobs     blob.Store

	Logger zerolog.Logger
}

// Processor executes the ingestion pipeline for one memo at a time. It holds
// no per-memo state and is safe for concurrent use.
type Processor struct {
	embedder  llm.EmbeddingGenerator
	extractor *llm.Extractor
	chunker   *llm.Chunker
	converter docconv.Converter
	blobs     blob.Store
	config    ProcessorConfig
	logger    zerolog.Logger
}

// NewProcessor creates a processor. Zero config values select defaults.
func NewProcessor(deps Dependencies, cfg ProcessorConfig) (*Processor, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("engine: embedder is required")
	}

	def := DefaultProcessorConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = def.MaxContentChars
	}
	if cfg.StaleProcessingAfter <= 0 {
		cfg.StaleProcessingAfter = def.StaleProcessingAfter
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = def.EmbedConcurrency
	}

	p := &Processor{
		embedder:  deps.Embedder,
		chunker:   llm.NewChunker(cfg.ChunkSize, cfg.MinChunkSize),
		converter: deps.Converter,
		blobs:     deps.Blobs,
		config:    cfg,
		logger:    deps.Logger,
	}
	if deps.Generator != nil {
		if ex, ok := llm.NewExtractor(deps.Generator); ok {
			p.extractor = ex
		} else {
			p.logger.Info().Str("model", deps.Generator.GetModel()).
				Msg("text generator has no structured output; tags and summaries are disabled")
		}
	}
	return p, nil
}

// Process runs the pipeline for memoUUID against the given session.
//
// The memo is claimed with a lease first. A memo that does not exist yields
// ErrMemoNotFound; one owned by another live run yields ErrMemoBusy. Any
// failure after the claim marks the memo as errored and is returned.
func (p *Processor) Process(ctx context.Context, store MemoSession, memoUUID string) error {
	logger := p.logger.With().Str("memo_uuid", memoUUID).Logger()

	lease, err := store.StartProcessing(ctx, memoUUID, p.config.StaleProcessingAfter)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrMemoNotFound, memoUUID)
	case errors.Is(err, storage.ErrInvalidTransition):
		return fmt.Errorf("%w: %s", ErrMemoBusy, memoUUID)
	case err != nil:
		return fmt.Errorf("failed to start processing memo %s: %w", memoUUID, err)
	}

	start := time.Now()
	runErr := p.run(logger.WithContext(ctx), store, lease)

	// The status update must land even when the run was cancelled.
	statusCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := store.FailProcessing(statusCtx, lease, runErr.Error()); err != nil {
			logger.Error().Err(err).Msg("failed to record processing error")
		}
		logger.Error().Err(runErr).Dur("elapsed", time.Since(start)).Msg("memo processing failed")
		return runErr
	}

	if err := store.CompleteProcessing(statusCtx, lease); err != nil {
		return fmt.Errorf("failed to complete processing memo %s: %w", memoUUID, err)
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("memo processed")
	return nil
}

func (p *Processor) run(ctx context.Context, store MemoSession, lease storage.Lease) error {
	logger := zerolog.Ctx(ctx)

	memo, content, err := store.GetMemoWithContent(ctx, lease.MemoUUID)
	if err != nil {
		return fmt.Errorf("failed to load memo: %w", err)
	}

	if content == nil && memo.Type == types.MemoTypeDocument {
		content, err = p.convertDocument(ctx, store, memo)
		if err != nil {
			return err
		}
	}

	if content == nil || strings.TrimSpace(content.Content) == "" {
		logger.Info().Msg("memo has no content, nothing to derive")
		return nil
	}

	text, truncated := llm.TruncateTo(content.Content, p.config.MaxContentChars)
	if truncated {
		logger.Warn().
			Int("limit_chars", p.config.MaxContentChars).
			Int("estimated_tokens", llm.EstimateTokens(content.Content)).
			Msg("memo content exceeds the generation budget, truncating")
	}

	rows, err := p.derive(ctx, memo, text)
	if err != nil {
		return err
	}

	if err := store.ReplaceDerived(ctx, lease, rows); err != nil {
		return fmt.Errorf("failed to store derived rows: %w", err)
	}

	logger.Debug().
		Int("chunks", len(rows.Chunks)).
		Int("tags", len(rows.Tags)).
		Bool("summary", rows.Summary != nil).
		Msg("derived rows stored")
	return nil
}

// convertDocument fetches the memo's file, converts it to markdown, persists
// the content and bills the organization.
func (p *Processor) convertDocument(ctx context.Context, store MemoSession, memo *types.Memo) (*types.MemoContent, error) {
	logger := zerolog.Ctx(ctx)

	if p.converter == nil || p.blobs == nil {
		return nil, ErrConversionUnavailable
	}
	if memo.FileKey == "" {
		return nil, fmt.Errorf("document memo %s has no file key", memo.UUID)
	}

	data, err := p.blobs.Get(ctx, memo.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}

	name := memo.FileName
	if name == "" {
		name = path.Base(memo.FileKey)
	}
	markdown, err := p.converter.Convert(ctx, docconv.DocumentInput{
		FileName:    name,
		ContentType: mime.TypeByExtension(path.Ext(name)),
		Data:        data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}

	content := &types.MemoContent{MemoUUID: memo.UUID, ProjectUUID: memo.ProjectUUID, Content: markdown}
	if err := store.SaveContent(ctx, content); err != nil {
		return nil, fmt.Errorf("failed to save converted content: %w", err)
	}

	units := storage.WriteUnits(markdown)
	if memo.OrganizationUUID == "" {
		logger.Warn().Int("write_units", units).Msg("memo has no organization, usage not recorded")
	} else if err := store.RecordWriteUnits(ctx, memo.OrganizationUUID, units); err != nil {
		return nil, fmt.Errorf("failed to record write units: %w", err)
	}

	logger.Info().Int("chars", len(markdown)).Int("write_units", units).Msg("document converted")
	return content, nil
}

// derive produces chunks, tags and summary concurrently. Any failure fails
// the whole run; nothing is persisted until every branch succeeded.
func (p *Processor) derive(ctx context.Context, memo *types.Memo, text string) (types.DerivedRows, error) {
	var rows types.DerivedRows

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		chunks, err := p.chunkAndEmbed(gctx, memo, text)
		if err != nil {
			return err
		}
		rows.Chunks = chunks
		return nil
	})

	if p.extractor != nil {
		g.Go(func() error {
			tags, err := p.extractor.ExtractTags(gctx, text)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				rows.Tags = append(rows.Tags, types.MemoTag{MemoUUID: memo.UUID, ProjectUUID: memo.ProjectUUID, Tag: tag})
			}
			return nil
		})

		g.Go(func() error {
			summary, err := p.extractor.Summarize(gctx, text)
			if err != nil {
				return err
			}
			vec, err := p.embedder.Embed(gctx, summary, llm.PurposeStorage)
			if err != nil {
				return fmt.Errorf("failed to embed summary: %w", err)
			}
			rows.Summary = &types.MemoSummary{
				MemoUUID:    memo.UUID,
				ProjectUUID: memo.ProjectUUID,
				Summary:     summary,
				Embedding:   vec,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return types.DerivedRows{}, err
	}
	return rows, nil
}

func (p *Processor) chunkAndEmbed(ctx context.Context, memo *types.Memo, text string) ([]types.MemoChunk, error) {
	pieces, err := p.chunker.Chunk(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk content: %w", err)
	}

	chunks := make([]types.MemoChunk, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.EmbedConcurrency)

	for i, piece := range pieces {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, piece, llm.PurposeStorage)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d: %w", i, err)
			}
			chunks[i] = types.MemoChunk{
				MemoUUID:    memo.UUID,
				ProjectUUID: memo.ProjectUUID,
				Content:     piece,
				ChunkIndex:  i,
				Embedding:   vec,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}
