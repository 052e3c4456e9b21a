package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Default chunking and truncation budgets.
const (
	DefaultChunkSize    = 1024
	DefaultMinChunkSize = 128

	// MaxContentTokens is the ceiling applied before any text generation call.
	MaxContentTokens = 100_000
	// CharsPerToken is the conservative characters-per-token estimate.
	CharsPerToken = 4
	// MaxContentChars is MaxContentTokens expressed in characters.
	MaxContentChars = MaxContentTokens * CharsPerToken
)

// Chunker splits memo content into retrieval chunks. Splitting is recursive
// over paragraph, line, sentence and word boundaries down to ChunkSize
// characters; fragments shorter than MinChunkSize are merged into a
// neighbour instead of being emitted on their own.
type Chunker struct {
	ChunkSize    int
	MinChunkSize int
	splitter     textsplitter.TextSplitter
}

// NewChunker creates a chunker. Zero values select the defaults.
func NewChunker(chunkSize, minChunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if minChunkSize < 0 || minChunkSize >= chunkSize {
		minChunkSize = DefaultMinChunkSize
	}
	return &Chunker{
		ChunkSize:    chunkSize,
		MinChunkSize: minChunkSize,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(0),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
	}
}

// Chunk splits content into ordered chunks. Whitespace-only content yields
// no chunks.
func (c *Chunker) Chunk(content string) ([]string, error) {
	if len(strings.TrimSpace(content)) == 0 {
		return []string{}, nil
	}

	if utf8.RuneCountInString(content) <= c.ChunkSize {
		return []string{strings.TrimSpace(content)}, nil
	}

	pieces, err := c.splitter.SplitText(content)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(chunks) > 0 && utf8.RuneCountInString(p) < c.MinChunkSize {
			chunks[len(chunks)-1] += "\n" + p
			continue
		}
		chunks = append(chunks, p)
	}

	if len(chunks) > 1 && utf8.RuneCountInString(chunks[0]) < c.MinChunkSize {
		chunks[1] = chunks[0] + "\n" + chunks[1]
		chunks = chunks[1:]
	}

	return chunks, nil
}

// EstimateTokens estimates the number of tokens in the given text.
// Uses a simple heuristic of approximately 4 characters per token,
// which is a reasonable approximation for English text with GPT-style tokenizers.
func EstimateTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// Truncate limits text to MaxContentChars characters. It reports whether
// anything was cut.
func Truncate(text string) (string, bool) {
	return TruncateTo(text, MaxContentChars)
}

// TruncateTo limits text to limit characters (runes).
func TruncateTo(text string, limit int) (string, bool) {
	if len(text) <= limit {
		return text, false
	}
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:limit]), true
}
