package rerank

import (
	"fmt"

	"github.com/skaldlabs/skald-sub002/internal/config"
	"github.com/skaldlabs/skald-sub002/internal/llm"
)

// NewProvider creates the Provider selected by RERANK_PROVIDER. gen is only
// used by the llm provider.
func NewProvider(cfg *config.Config, gen llm.TextGenerator) (Provider, error) {
	switch cfg.Rerank.Provider {
	case "voyage", "":
		return NewVoyageProvider(VoyageConfig{
			APIKey:            cfg.Embedding.VoyageAPIKey,
			Model:             cfg.Rerank.VoyageModel,
			URL:               cfg.Rerank.VoyageURL,
			RequestsPerSecond: cfg.Rerank.RequestsPerSecond,
		}), nil
	case "local":
		return NewLocalProvider(LocalConfig{
			URL:               cfg.Rerank.LocalURL,
			Timeout:           cfg.Rerank.LocalTimeout,
			RequestsPerSecond: cfg.Rerank.RequestsPerSecond,
		}), nil
	case "llm":
		if gen == nil {
			return nil, fmt.Errorf("llm rerank provider needs a text generator")
		}
		return NewLLMProvider(gen)
	default:
		return nil, fmt.Errorf("unsupported rerank provider: %q", cfg.Rerank.Provider)
	}
}
