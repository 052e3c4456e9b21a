package rerank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// fakeProvider scores each document by the number embedded in it, so results
// can be checked against the original input.
type fakeProvider struct {
	mu        sync.Mutex
	calls     []int
	failBatch int
	scoreFn   func(doc string) float64
}

func (f *fakeProvider) Rerank(_ context.Context, _ string, documents []string) ([]types.RerankResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, len(documents))
	call := len(f.calls)
	f.mu.Unlock()

	if f.failBatch > 0 && call == f.failBatch {
		return nil, errors.New("provider unavailable")
	}

	results := make([]types.RerankResult, len(documents))
	for i, d := range documents {
		results[i] = types.RerankResult{Index: i, RelevanceScore: f.scoreFn(d)}
	}
	return results, nil
}

func docScore(doc string) float64 {
	var n int
	_, _ = fmt.Sscanf(doc, "doc-%d", &n)
	return float64(n) / 100
}

func makeDocs(n int) []string {
	docs := make([]string, n)
	for i := range docs {
		docs[i] = fmt.Sprintf("doc-%d", i)
	}
	return docs
}

func TestBatcher_ThirtyDocumentsTwoBatches(t *testing.T) {
	p := &fakeProvider{scoreFn: docScore}
	b := NewBatcher(p, WithBatchSize(25))
	docs := makeDocs(30)

	results, err := b.Rerank(context.Background(), "q", docs)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{25, 5}, p.calls)
	require.Len(t, results, 30)

	for i, r := range results {
		require.GreaterOrEqual(t, r.Index, 0)
		require.Less(t, r.Index, len(docs))
		assert.InDelta(t, docScore(docs[r.Index]), r.RelevanceScore, 1e-9,
			"index %d must point at the document that produced the score", r.Index)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].RelevanceScore, r.RelevanceScore)
		}
	}
	assert.Equal(t, 29, results[0].Index)
}

func TestBatcher_TopK(t *testing.T) {
	p := &fakeProvider{scoreFn: docScore}
	b := NewBatcher(p, WithBatchSize(25), WithTopK(10))

	results, err := b.Rerank(context.Background(), "q", makeDocs(30))
	require.NoError(t, err)
	assert.Len(t, results, 10)

	results, err = b.RerankTopK(context.Background(), "q", makeDocs(4), 10)
	require.NoError(t, err)
	assert.Len(t, results, 4, "top-k larger than candidates returns all candidates")

	results, err = b.RerankTopK(context.Background(), "q", makeDocs(30), 0)
	require.NoError(t, err)
	assert.Len(t, results, 30, "zero disables truncation")
}

func TestBatcher_NormalizesScores(t *testing.T) {
	p := &fakeProvider{scoreFn: func(doc string) float64 {
		switch doc {
		case "high":
			return 3.2
		case "low":
			return -0.4
		default:
			return 0.123456789
		}
	}}
	b := NewBatcher(p)

	results, err := b.Rerank(context.Background(), "q", []string{"low", "mid", "high"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, types.RerankResult{Index: 2, RelevanceScore: 1}, results[0])
	assert.Equal(t, types.RerankResult{Index: 1, RelevanceScore: 0.123457}, results[1])
	assert.Equal(t, types.RerankResult{Index: 0, RelevanceScore: 0}, results[2])
}

func TestBatcher_StableOnTies(t *testing.T) {
	p := &fakeProvider{scoreFn: func(string) float64 { return 0.5 }}
	b := NewBatcher(p, WithBatchSize(2))

	results, err := b.Rerank(context.Background(), "q", makeDocs(5))
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestBatcher_BatchFailureFailsCall(t *testing.T) {
	p := &fakeProvider{scoreFn: docScore, failBatch: 2}
	b := NewBatcher(p, WithBatchSize(10))

	results, err := b.Rerank(context.Background(), "q", makeDocs(30))
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, strings.Contains(err.Error(), "provider unavailable"))
}

func TestBatcher_EmptyInput(t *testing.T) {
	p := &fakeProvider{scoreFn: docScore}
	results, err := NewBatcher(p).Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, p.calls)
}

// fixedResultsProvider returns the same results for every batch.
type fixedResultsProvider struct {
	results func(documents []string) []types.RerankResult
}

func (f fixedResultsProvider) Rerank(_ context.Context, _ string, documents []string) ([]types.RerankResult, error) {
	return f.results(documents), nil
}

func TestBatcher_RejectsIndexOutsideBatch(t *testing.T) {
	p := fixedResultsProvider{results: func(documents []string) []types.RerankResult {
		return []types.RerankResult{{Index: len(documents) + 2, RelevanceScore: 0.9}}
	}}
	b := NewBatcher(p, WithBatchSize(25))

	results, err := b.Rerank(context.Background(), "q", makeDocs(30))
	require.ErrorIs(t, err, ErrInvalidResultIndex)
	assert.Nil(t, results)
}

func TestBatcher_RejectsNegativeIndex(t *testing.T) {
	p := fixedResultsProvider{results: func([]string) []types.RerankResult {
		return []types.RerankResult{{Index: -1, RelevanceScore: 0.5}}
	}}

	_, err := NewBatcher(p).Rerank(context.Background(), "q", makeDocs(3))
	require.ErrorIs(t, err, ErrInvalidResultIndex)
}

func TestBatcher_RejectsDuplicateIndex(t *testing.T) {
	p := fixedResultsProvider{results: func([]string) []types.RerankResult {
		return []types.RerankResult{{Index: 1, RelevanceScore: 0.8}, {Index: 1, RelevanceScore: 0.7}}
	}}

	_, err := NewBatcher(p).Rerank(context.Background(), "q", makeDocs(3))
	require.ErrorIs(t, err, ErrInvalidResultIndex)
}

func TestBatcher_IndicesMapToOriginalDocuments(t *testing.T) {
	p := &fakeProvider{scoreFn: docScore}
	docs := makeDocs(60)

	results, err := NewBatcher(p, WithBatchSize(25)).Rerank(context.Background(), "q", docs)
	require.NoError(t, err)
	require.Len(t, results, 60)
	for _, r := range results {
		assert.InDelta(t, docScore(docs[r.Index]), r.RelevanceScore, 1e-9)
	}
}
