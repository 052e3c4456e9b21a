// Package retrieval turns a natural-language query into ranked memo passages:
// vector search, memo property join, rerank and assembly.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/llm"
	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

const (
	// DefaultSimilarityThreshold is the minimum cosine similarity of a
	// vector search candidate.
	DefaultSimilarityThreshold = 0.75

	// snippetRunes is the length of ContentSnippet.
	snippetRunes = 100
)

var (
	// ErrInvalidLimit is returned for a non-positive result limit.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrInconsistentRerank is returned when the reranker yields an index
	// outside the candidate list.
	ErrInconsistentRerank = errors.New("rerank result does not map to a candidate")
)

// Reranker scores documents against a query, returning at most topK results
// sorted by descending relevance.
type Reranker interface {
	RerankTopK(ctx context.Context, query string, documents []string, topK int) ([]types.RerankResult, error)
}

// Request is a retrieval request scoped to one project.
type Request struct {
	// ProjectUUID scopes the search.
	ProjectUUID string

	// Query is the natural-language query.
	Query string

	// Limit caps both the vector candidates and the reranked results.
	Limit int

	// RerankTopK caps the reranked results when smaller than Limit.
	RerankTopK int

	// Filters restrict candidates to matching memos (optional).
	Filters []types.MemoFilter

	// SimilarityThreshold is the minimum cosine similarity in [0,1].
	// Zero selects the graph default.
	SimilarityThreshold float64
}

// Graph runs the retrieval stages.
type Graph struct {
	searcher  storage.ChunkSearcher
	embedder  llm.EmbeddingGenerator
	reranker  Reranker
	threshold float64
	logger    zerolog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithSimilarityThreshold sets the default similarity threshold.
func WithSimilarityThreshold(t float64) Option {
	return func(g *Graph) {
		if t > 0 && t <= 1 {
			g.threshold = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// NewGraph creates a retrieval graph.
func NewGraph(searcher storage.ChunkSearcher, embedder llm.EmbeddingGenerator, reranker Reranker, opts ...Option) *Graph {
	g := &Graph{
		searcher:  searcher,
		embedder:  embedder,
		reranker:  reranker,
		threshold: DefaultSimilarityThreshold,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Retrieve runs vector search, property join, rerank and assembly in that
// order. Results are sorted by ascending distance, where distance is one
// minus the rerank relevance score.
func (g *Graph) Retrieve(ctx context.Context, req Request) ([]types.RetrievalResult, error) {
	start := time.Now()

	candidates, props, err := g.candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []types.RetrievalResult{}, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = RerankDocument(props[c.MemoUUID], c.Content)
	}

	topK := req.Limit
	if req.RerankTopK > 0 && req.RerankTopK < topK {
		topK = req.RerankTopK
	}
	ranked, err := g.reranker.RerankTopK(ctx, req.Query, docs, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank candidates: %w", err)
	}

	results := make([]types.RetrievalResult, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("%w: index %d of %d", ErrInconsistentRerank, r.Index, len(candidates))
		}
		c := candidates[r.Index]
		results = append(results, assemble(c, props[c.MemoUUID], 1-r.RelevanceScore))
	}

	g.logger.Debug().
		Str("project_uuid", req.ProjectUUID).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("retrieval complete")
	return results, nil
}

// VectorSearch runs vector search and property join only. Results keep the
// vector distance and its order.
func (g *Graph) VectorSearch(ctx context.Context, req Request) ([]types.RetrievalResult, error) {
	candidates, props, err := g.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]types.RetrievalResult, len(candidates))
	for i, c := range candidates {
		results[i] = assemble(c, props[c.MemoUUID], c.Distance)
	}
	return results, nil
}

// candidates embeds the query, searches chunks and joins memo properties.
// Memos without properties map to the zero value.
func (g *Graph) candidates(ctx context.Context, req Request) ([]types.ChunkCandidate, map[string]types.MemoProperties, error) {
	if req.Limit <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidLimit, req.Limit)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}

	threshold := req.SimilarityThreshold
	if threshold <= 0 {
		threshold = g.threshold
	}

	vec, err := g.embedder.Embed(ctx, req.Query, llm.PurposeSearch)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := g.searcher.SearchChunks(ctx, storage.ChunkQuery{
		ProjectUUID: req.ProjectUUID,
		Embedding:   vec,
		Limit:       req.Limit,
		MaxDistance: 1 - threshold,
		Filters:     req.Filters,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	seen := make(map[string]struct{}, len(candidates))
	memoUUIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.MemoUUID]; ok {
			continue
		}
		seen[c.MemoUUID] = struct{}{}
		memoUUIDs = append(memoUUIDs, c.MemoUUID)
	}

	props, err := g.searcher.GetMemoProperties(ctx, memoUUIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load memo properties: %w", err)
	}
	if props == nil {
		props = map[string]types.MemoProperties{}
	}
	return candidates, props, nil
}

// RerankDocument is the text a reranker scores for one chunk.
func RerankDocument(p types.MemoProperties, chunk string) string {
	return "Title: " + p.Title + "\n\nFull content summary: " + p.Summary + "\n\nChunk content: " + chunk
}

func assemble(c types.ChunkCandidate, p types.MemoProperties, distance float64) types.RetrievalResult {
	return types.RetrievalResult{
		ChunkUUID:      c.ChunkUUID,
		MemoUUID:       c.MemoUUID,
		MemoTitle:      p.Title,
		MemoSummary:    p.Summary,
		ContentSnippet: snippet(p.Content, snippetRunes),
		ChunkContent:   c.Content,
		Distance:       distance,
	}
}

// snippet returns the first n runes of s.
func snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
