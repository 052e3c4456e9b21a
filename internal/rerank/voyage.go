package rerank

import (
	"context"
	"net/http"
	"time"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// VoyageConfig configures the Voyage AI rerank API provider.
type VoyageConfig struct {
	APIKey            string
	Model             string // default: rerank-2
	URL               string // default: https://api.voyageai.com/v1/rerank
	Timeout           time.Duration
	RequestsPerSecond float64
}

// VoyageProvider calls a dedicated rerank API.
type VoyageProvider struct {
	model  string
	caller *httpCaller
}

type voyageRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type voyageResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
}

// NewVoyageProvider creates a Voyage rerank provider.
func NewVoyageProvider(cfg VoyageConfig) *VoyageProvider {
	if cfg.Model == "" {
		cfg.Model = "rerank-2"
	}
	if cfg.URL == "" {
		cfg.URL = "https://api.voyageai.com/v1/rerank"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	caller := newHTTPCaller("voyage-rerank", cfg.URL, &http.Client{Timeout: cfg.Timeout}, cfg.RequestsPerSecond)
	caller.headers["Authorization"] = "Bearer " + cfg.APIKey
	return &VoyageProvider{model: cfg.Model, caller: caller}
}

// Rerank implements Provider.
func (p *VoyageProvider) Rerank(ctx context.Context, query string, documents []string) ([]types.RerankResult, error) {
	var resp voyageResponse
	err := p.caller.post(ctx, voyageRequest{Query: query, Documents: documents, Model: p.model}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]types.RerankResult, len(resp.Data))
	for i, d := range resp.Data {
		results[i] = types.RerankResult{Index: d.Index, RelevanceScore: d.RelevanceScore}
	}
	return results, nil
}

var _ Provider = (*VoyageProvider)(nil)
