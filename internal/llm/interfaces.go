package llm

import "context"

// EmbeddingPurpose tells an embedding provider whether the text is a search
// query or a document being stored. Providers with asymmetric models embed
// the two differently.
type EmbeddingPurpose string

const (
	PurposeSearch  EmbeddingPurpose = "search"
	PurposeStorage EmbeddingPurpose = "storage"
)

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// JSONSchema names a JSON schema a structured completion must conform to.
type JSONSchema struct {
	Name   string
	Schema map[string]interface{}
}

// StructuredGenerator is a TextGenerator that can be held to a JSON schema.
// Tag extraction and summaries only run when the configured provider
// implements it.
type StructuredGenerator interface {
	TextGenerator
	CompleteJSON(ctx context.Context, prompt string, schema JSONSchema) (string, error)
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string, purpose EmbeddingPurpose) ([]float32, error)
	GetModel() string
}
