package llm

import (
	"fmt"

	"github.com/skaldlabs/skald-sub002/internal/config"
)

// NewTextGenerator creates the TextGenerator selected by LLM_PROVIDER.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the EmbeddingGenerator selected by
// EMBEDDING_PROVIDER. Provider credentials are shared with the LLM config.
func NewEmbeddingGenerator(cfg config.EmbeddingConfig, llmCfg config.LLMConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openai", "":
		baseURL := ""
		if llmCfg.OpenAIBaseURL != "" {
			baseURL = llmCfg.OpenAIBaseURL + "/v1"
		}
		return NewOpenAIEmbedder(OpenAIEmbeddingConfig{APIKey: llmCfg.OpenAIAPIKey, Model: cfg.Model, BaseURL: baseURL})
	case "voyage":
		return NewVoyageEmbedder(VoyageEmbeddingConfig{APIKey: cfg.VoyageAPIKey, Model: cfg.Model})
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL:        llmCfg.OllamaURL,
			Model:          model,
			QueryPrefix:    "search_query: ",
			DocumentPrefix: "search_document: ",
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
