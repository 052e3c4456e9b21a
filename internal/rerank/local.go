package rerank

import (
	"context"
	"net/http"
	"time"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// LocalTimeout is the hard per-request deadline of the self-hosted reranker.
const LocalTimeout = 30 * time.Second

// LocalConfig configures a self-hosted rerank service speaking the
// text-embeddings-inference /rerank protocol.
type LocalConfig struct {
	URL               string
	Timeout           time.Duration // default and ceiling: 30s
	RequestsPerSecond float64
}

// LocalProvider calls a self-hosted HTTP reranker.
type LocalProvider struct {
	caller *httpCaller
}

type localRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type localResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewLocalProvider creates a self-hosted rerank provider.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	if cfg.Timeout <= 0 || cfg.Timeout > LocalTimeout {
		cfg.Timeout = LocalTimeout
	}
	return &LocalProvider{
		caller: newHTTPCaller("local-rerank", cfg.URL, &http.Client{Timeout: cfg.Timeout}, cfg.RequestsPerSecond),
	}
}

// Rerank implements Provider.
func (p *LocalProvider) Rerank(ctx context.Context, query string, documents []string) ([]types.RerankResult, error) {
	var resp []localResult
	if err := p.caller.post(ctx, localRequest{Query: query, Texts: documents}, &resp); err != nil {
		return nil, err
	}

	results := make([]types.RerankResult, len(resp))
	for i, r := range resp {
		results[i] = types.RerankResult{Index: r.Index, RelevanceScore: r.Score}
	}
	return results, nil
}

var _ Provider = (*LocalProvider)(nil)
