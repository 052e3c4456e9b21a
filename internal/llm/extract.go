package llm

import (
	"context"
	"fmt"
	"strings"
)

// Extractor derives tags and summaries from memo content.
type Extractor struct {
	gen StructuredGenerator
}

// NewExtractor returns an Extractor when gen supports structured output, and
// false otherwise.
func NewExtractor(gen TextGenerator) (*Extractor, bool) {
	sg, ok := gen.(StructuredGenerator)
	if !ok {
		return nil, false
	}
	return &Extractor{gen: sg}, true
}

// ExtractTags returns the tags for content.
func (e *Extractor) ExtractTags(ctx context.Context, content string) ([]string, error) {
	reply, err := e.gen.CompleteJSON(ctx, TagExtractionPrompt(content), TagsSchema)
	if err != nil {
		return nil, fmt.Errorf("tag extraction failed: %w", err)
	}
	return ParseTagsResponse(reply)
}

// Summarize returns a summary of content.
func (e *Extractor) Summarize(ctx context.Context, content string) (string, error) {
	reply, err := e.gen.CompleteJSON(ctx, SummaryPrompt(content), SummarySchema)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return ParseSummaryResponse(reply)
}

// RewriteQuery turns a conversational question into a search query. An empty
// reply falls back to the original query.
func RewriteQuery(ctx context.Context, gen TextGenerator, query string) (string, error) {
	reply, err := gen.Complete(ctx, QueryRewritePrompt(query))
	if err != nil {
		return "", fmt.Errorf("query rewrite failed: %w", err)
	}
	rewritten := strings.Trim(strings.TrimSpace(reply), `"`)
	if rewritten == "" {
		return query, nil
	}
	return rewritten, nil
}
