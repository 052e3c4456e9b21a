package types

import "fmt"

// RAGConfig is the per-request chat retrieval configuration. It is validated
// upstream; Validate exists so callers that load it from files can check it too.
type RAGConfig struct {
	LLMProvider  string             `json:"llmProvider" yaml:"llm_provider"`
	QueryRewrite QueryRewriteConfig `json:"queryRewrite" yaml:"query_rewrite"`
	VectorSearch VectorSearchConfig `json:"vectorSearch" yaml:"vector_search"`
	Reranking    RerankingConfig    `json:"reranking" yaml:"reranking"`
	References   ReferencesConfig   `json:"references" yaml:"references"`
}

type QueryRewriteConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type VectorSearchConfig struct {
	TopK                int     `json:"topK" yaml:"top_k"`
	SimilarityThreshold float64 `json:"similarityThreshold" yaml:"similarity_threshold"`
}

type RerankingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	TopK    int  `json:"topK" yaml:"top_k"`
}

type ReferencesConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultRAGConfig returns the configuration used when a project has none.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		VectorSearch: VectorSearchConfig{TopK: 100, SimilarityThreshold: 0.75},
		Reranking:    RerankingConfig{Enabled: true, TopK: 50},
	}
}

// Validate checks the documented bounds of a RAG configuration.
func (c RAGConfig) Validate() error {
	if c.VectorSearch.TopK < 1 || c.VectorSearch.TopK > 200 {
		return fmt.Errorf("vectorSearch.topK must be in [1,200], got %d", c.VectorSearch.TopK)
	}
	if c.VectorSearch.SimilarityThreshold < 0 || c.VectorSearch.SimilarityThreshold > 1 {
		return fmt.Errorf("vectorSearch.similarityThreshold must be in [0,1], got %v", c.VectorSearch.SimilarityThreshold)
	}
	if c.Reranking.Enabled {
		if c.Reranking.TopK < 1 || c.Reranking.TopK > 100 {
			return fmt.Errorf("reranking.topK must be in [1,100], got %d", c.Reranking.TopK)
		}
		if c.Reranking.TopK > c.VectorSearch.TopK {
			return fmt.Errorf("reranking.topK (%d) must not exceed vectorSearch.topK (%d)",
				c.Reranking.TopK, c.VectorSearch.TopK)
		}
	}
	return nil
}
