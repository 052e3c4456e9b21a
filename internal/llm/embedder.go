package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/embeddings/voyageai"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainEmbedder adapts a langchaingo embedder to EmbeddingGenerator.
// Search texts go through EmbedQuery and stored texts through EmbedDocuments,
// so providers with asymmetric models see the right input type.
type LangchainEmbedder struct {
	embedder       embeddings.Embedder
	model          string
	circuitBreaker *CircuitBreaker
}

// NewLangchainEmbedder wraps an existing langchaingo embedder.
func NewLangchainEmbedder(name, model string, embedder embeddings.Embedder) *LangchainEmbedder {
	return &LangchainEmbedder{
		embedder:       embedder,
		model:          model,
		circuitBreaker: NewCircuitBreaker(name),
	}
}

// OpenAIEmbeddingConfig holds configuration for the OpenAI embedder.
type OpenAIEmbeddingConfig struct {
	APIKey  string
	Model   string // default: text-embedding-3-small
	BaseURL string // default: https://api.openai.com/v1
	Timeout time.Duration
}

// NewOpenAIEmbedder builds an OpenAI-compatible embedder through langchaingo.
func NewOpenAIEmbedder(cfg OpenAIEmbeddingConfig) (*LangchainEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedder: %w", err)
	}

	return NewLangchainEmbedder("openai-embeddings", cfg.Model, embedder), nil
}

// VoyageEmbeddingConfig holds configuration for the Voyage AI embedder.
type VoyageEmbeddingConfig struct {
	APIKey string
	Model  string // default: voyage-3
}

// NewVoyageEmbedder builds a Voyage AI embedder through langchaingo.
func NewVoyageEmbedder(cfg VoyageEmbeddingConfig) (*LangchainEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = "voyage-3"
	}

	embedder, err := voyageai.NewVoyageAI(
		voyageai.WithToken(cfg.APIKey),
		voyageai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create voyage embedder: %w", err)
	}

	return NewLangchainEmbedder("voyage-embeddings", cfg.Model, embedder), nil
}

// Embed generates an embedding vector for text.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string, purpose EmbeddingPurpose) ([]float32, error) {
	result, err := e.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		if purpose == PurposeSearch {
			return e.embedder.EmbedQuery(ctx, text)
		}
		vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, nil
		}
		return vecs[0], nil
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("%s embedding circuit breaker open: %w", e.model, err)
		}
		return nil, err
	}

	vec, _ := result.([]float32)
	if len(vec) == 0 {
		return nil, fmt.Errorf("%s returned empty embedding", e.model)
	}
	return vec, nil
}

// GetModel returns the configured model name.
func (e *LangchainEmbedder) GetModel() string {
	return e.model
}

// Compile-time assertion.
var _ EmbeddingGenerator = (*LangchainEmbedder)(nil)
