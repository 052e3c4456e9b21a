// Package rag prepares retrieval context for chat generation from a
// project's RAG configuration.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/llm"
	"github.com/skaldlabs/skald-sub002/internal/retrieval"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// Searcher is the retrieval surface the retriever needs.
type Searcher interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]types.RetrievalResult, error)
	VectorSearch(ctx context.Context, req retrieval.Request) ([]types.RetrievalResult, error)
}

var _ Searcher = (*retrieval.Graph)(nil)

// Result is the context assembled for one chat turn.
type Result struct {
	// Query is the query actually searched, after any rewrite.
	Query string

	// Results are the passages in prompt order.
	Results []types.RetrievalResult

	// Block is the numbered context block handed to the generation agent.
	Block string
}

// Retriever builds chat context.
type Retriever struct {
	searcher Searcher
	rewriter llm.TextGenerator
	logger   zerolog.Logger
}

// NewRetriever creates a retriever. rewriter may be nil, in which case query
// rewriting is skipped even when enabled.
func NewRetriever(searcher Searcher, rewriter llm.TextGenerator, logger zerolog.Logger) *Retriever {
	return &Retriever{searcher: searcher, rewriter: rewriter, logger: logger}
}

// Context retrieves passages for query according to cfg. With reranking
// enabled the vector candidates are reranked down to cfg.Reranking.TopK;
// otherwise the vector search order is used as is.
func (r *Retriever) Context(ctx context.Context, projectUUID, query string, cfg types.RAGConfig, filters []types.MemoFilter) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rag config: %w", err)
	}

	searchQuery := query
	if cfg.QueryRewrite.Enabled {
		searchQuery = r.rewrite(ctx, query)
	}

	req := retrieval.Request{
		ProjectUUID:         projectUUID,
		Query:               searchQuery,
		Limit:               cfg.VectorSearch.TopK,
		Filters:             filters,
		SimilarityThreshold: cfg.VectorSearch.SimilarityThreshold,
	}

	var (
		results []types.RetrievalResult
		err     error
	)
	if cfg.Reranking.Enabled {
		req.RerankTopK = cfg.Reranking.TopK
		results, err = r.searcher.Retrieve(ctx, req)
	} else {
		results, err = r.searcher.VectorSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("project_uuid", projectUUID).
		Bool("rewritten", searchQuery != query).
		Bool("reranked", cfg.Reranking.Enabled).
		Int("results", len(results)).
		Msg("rag context prepared")

	return &Result{
		Query:   searchQuery,
		Results: results,
		Block:   FormatContext(results, cfg.References.Enabled),
	}, nil
}

// rewrite returns a standalone search query. Generation failures fall back
// to the original query.
func (r *Retriever) rewrite(ctx context.Context, query string) string {
	if r.rewriter == nil {
		return query
	}
	out, err := r.rewriter.Complete(ctx, llm.QueryRewritePrompt(query))
	if err != nil {
		r.logger.Warn().Err(err).Msg("query rewrite failed, using the original query")
		return query
	}
	out = strings.Trim(strings.TrimSpace(out), `"'`)
	if out == "" {
		return query
	}
	return out
}

// FormatContext renders results as a numbered block. With references the
// memo UUID is included so the answer can cite it.
func FormatContext(results []types.RetrievalResult, references bool) string {
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] ", i+1)
		if references {
			fmt.Fprintf(&b, "(memo %s) ", res.MemoUUID)
		}
		b.WriteString("Title: ")
		b.WriteString(res.MemoTitle)
		b.WriteString("\n")
		b.WriteString(res.ChunkContent)
	}
	return b.String()
}
