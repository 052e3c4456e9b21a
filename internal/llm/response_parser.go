package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TagExtractionResponse is the structured reply to TagExtractionPrompt.
type TagExtractionResponse struct {
	Tags []string `json:"tags"`
}

// SummaryResponse is the structured reply to SummaryPrompt.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseTagsResponse parses a tag extraction reply. Tags are trimmed,
// lower-cased and de-duplicated; empty tags are dropped.
func ParseTagsResponse(jsonStr string) ([]string, error) {
	var response TagExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(jsonStr)), &response); err != nil {
		return nil, fmt.Errorf("failed to parse tags JSON: %w", err)
	}

	seen := make(map[string]bool, len(response.Tags))
	tags := make([]string, 0, len(response.Tags))
	for _, tag := range response.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags, nil
}

// ParseSummaryResponse parses a summary reply.
func ParseSummaryResponse(jsonStr string) (string, error) {
	var response SummaryResponse
	if err := json.Unmarshal([]byte(extractJSON(jsonStr)), &response); err != nil {
		return "", fmt.Errorf("failed to parse summary JSON: %w", err)
	}
	summary := strings.TrimSpace(response.Summary)
	if summary == "" {
		return "", fmt.Errorf("summary response was empty")
	}
	return summary, nil
}
