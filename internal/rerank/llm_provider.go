package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skaldlabs/skald-sub002/internal/llm"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// rerankSchema is the strict output contract of the chat-completion reranker.
var rerankSchema = llm.JSONSchema{
	Name: "rerank_results",
	Schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"results": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"index":           map[string]interface{}{"type": "integer"},
						"document":        map[string]interface{}{"type": "string"},
						"relevance_score": map[string]interface{}{"type": "number"},
					},
					"required":             []string{"index", "document", "relevance_score"},
					"additionalProperties": false,
				},
			},
			"total_tokens": map[string]interface{}{"type": "null"},
		},
		"required":             []string{"results", "total_tokens"},
		"additionalProperties": false,
	},
}

type llmRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		Document       string  `json:"document"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	TotalTokens *int `json:"total_tokens"`
}

// LLMProvider reranks with a general-purpose chat model held to a strict
// JSON schema.
type LLMProvider struct {
	gen llm.StructuredGenerator
}

// NewLLMProvider creates an LLM-backed reranker. The generator must support
// structured output.
func NewLLMProvider(gen llm.TextGenerator) (*LLMProvider, error) {
	sg, ok := gen.(llm.StructuredGenerator)
	if !ok {
		return nil, fmt.Errorf("llm reranker needs a structured-output provider, %s is not", gen.GetModel())
	}
	return &LLMProvider{gen: sg}, nil
}

// Rerank implements Provider.
func (p *LLMProvider) Rerank(ctx context.Context, query string, documents []string) ([]types.RerankResult, error) {
	reply, err := p.gen.CompleteJSON(ctx, buildRerankPrompt(query, documents), rerankSchema)
	if err != nil {
		return nil, err
	}

	var resp llmRerankResponse
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse rerank JSON: %w", err)
	}

	results := make([]types.RerankResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("llm reranker returned index %d for %d documents", r.Index, len(documents))
		}
		results = append(results, types.RerankResult{Index: r.Index, RelevanceScore: r.RelevanceScore})
	}
	return results, nil
}

func buildRerankPrompt(query string, documents []string) string {
	var sb strings.Builder
	sb.WriteString("You are a search relevance ranker. Score how relevant each document is to the query.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- relevance_score is a number between 0 and 1\n")
	sb.WriteString("- include every document exactly once, sorted by relevance_score descending\n")
	sb.WriteString("- index is the document's number below; echo the document text verbatim\n")
	sb.WriteString("- total_tokens must be null; add no other keys\n\n")
	fmt.Fprintf(&sb, "Query: %s\n\nDocuments:\n", query)
	for i, d := range documents {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, d)
	}
	return sb.String()
}

var _ Provider = (*LLMProvider)(nil)
