// Package rerank scores retrieval candidates against a query. A Batcher
// splits large candidate sets into fixed-size batches, fans them out to a
// Provider concurrently and merges the results into one globally ranked list.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// DefaultBatchSize is the number of documents sent to a provider per call.
const DefaultBatchSize = 25

// ErrInvalidResultIndex is returned when a provider reports an index outside
// the batch it was given, or the same index twice.
var ErrInvalidResultIndex = errors.New("rerank provider returned an invalid result index")

// Provider scores documents against a query. Result indices refer to
// positions in documents.
type Provider interface {
	Rerank(ctx context.Context, query string, documents []string) ([]types.RerankResult, error)
}

// Batcher dispatches rerank requests to a Provider in concurrent batches.
type Batcher struct {
	provider  Provider
	batchSize int
	topK      int
	logger    zerolog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize sets the number of documents per provider call.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithTopK sets the default result cap. Zero disables truncation.
func WithTopK(k int) Option {
	return func(b *Batcher) {
		if k >= 0 {
			b.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Batcher) { b.logger = l }
}

// NewBatcher creates a Batcher around provider.
func NewBatcher(provider Provider, opts ...Option) *Batcher {
	b := &Batcher{
		provider:  provider,
		batchSize: DefaultBatchSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Rerank scores documents using the configured top-k.
func (b *Batcher) Rerank(ctx context.Context, query string, documents []string) ([]types.RerankResult, error) {
	return b.RerankTopK(ctx, query, documents, b.topK)
}

// RerankTopK scores documents and returns at most topK results sorted by
// descending relevance. topK of 0 returns every result. Indices are global
// positions in documents. Any batch failure fails the whole call.
func (b *Batcher) RerankTopK(ctx context.Context, query string, documents []string, topK int) ([]types.RerankResult, error) {
	if len(documents) == 0 {
		return []types.RerankResult{}, nil
	}

	numBatches := (len(documents) + b.batchSize - 1) / b.batchSize
	batches := make([][]types.RerankResult, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numBatches; i++ {
		start := i * b.batchSize
		end := min(start+b.batchSize, len(documents))
		g.Go(func() error {
			results, err := b.provider.Rerank(gctx, query, documents[start:end])
			if err != nil {
				return fmt.Errorf("rerank batch %d: %w", i, err)
			}
			if err := checkIndices(results, end-start); err != nil {
				return fmt.Errorf("rerank batch %d: %w", i, err)
			}
			for j := range results {
				results[j].Index += start
			}
			batches[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]types.RerankResult, 0, len(documents))
	for _, batch := range batches {
		for _, r := range batch {
			r.RelevanceScore = normalizeScore(r.RelevanceScore)
			merged = append(merged, r)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RelevanceScore > merged[j].RelevanceScore
	})

	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}

	b.logger.Debug().
		Int("documents", len(documents)).
		Int("batches", numBatches).
		Int("results", len(merged)).
		Msg("rerank complete")

	return merged, nil
}

// checkIndices verifies every result points at a distinct document of a batch
// of size n.
func checkIndices(results []types.RerankResult, n int) error {
	seen := make(map[int]struct{}, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= n {
			return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidResultIndex, r.Index, n)
		}
		if _, dup := seen[r.Index]; dup {
			return fmt.Errorf("%w: %d repeated", ErrInvalidResultIndex, r.Index)
		}
		seen[r.Index] = struct{}{}
	}
	return nil
}

// normalizeScore clamps to [0,1] and rounds to 6 decimal places.
func normalizeScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	return math.Round(s*1e6) / 1e6
}
