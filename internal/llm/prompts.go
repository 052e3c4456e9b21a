// Package llm provides the text generation and embedding providers used by
// memo processing and retrieval: OpenAI, Anthropic and Ollama completion
// clients, langchaingo-backed embedders, the content chunker, and the
// structured prompts for tag extraction and summaries.
package llm

import "fmt"

// TagsSchema constrains tag extraction replies.
var TagsSchema = JSONSchema{
	Name: "memo_tags",
	Schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
		"required":             []string{"tags"},
		"additionalProperties": false,
	},
}

// SummarySchema constrains summary replies.
var SummarySchema = JSONSchema{
	Name: "memo_summary",
	Schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"summary": map[string]interface{}{"type": "string"},
		},
		"required":             []string{"summary"},
		"additionalProperties": false,
	},
}

// TagExtractionPrompt asks for a short list of topical tags for a memo.
func TagExtractionPrompt(content string) string {
	return fmt.Sprintf(`Extract tags for the following knowledge base entry.

Rules:
- 3 to 10 tags
- lowercase, one to three words each
- topics, products, people, teams and technologies mentioned in the content
- no generic tags such as "document" or "notes"

Content:
%s

Return ONLY a JSON object: {"tags":["...","..."]}`, content)
}

// SummaryPrompt asks for a dense summary of a memo used both for display and
// as rerank context.
func SummaryPrompt(content string) string {
	return fmt.Sprintf(`Summarize the following knowledge base entry in 2 to 4 sentences.
State what the content is about and its most important facts. Do not add
information that is not in the content.

Content:
%s

Return ONLY a JSON object: {"summary":"..."}`, content)
}

// QueryRewritePrompt asks for a standalone search query.
func QueryRewritePrompt(query string) string {
	return fmt.Sprintf(`Rewrite the user's question into a concise standalone search query for a
semantic search engine over a company knowledge base. Keep names, numbers and
technical terms. Output only the rewritten query, nothing else.

Question: %s`, query)
}
