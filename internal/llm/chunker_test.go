package llm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortContentIsOneChunk(t *testing.T) {
	c := NewChunker(1024, 128)

	chunks, err := c.Chunk("A. B. C.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A. B. C."}, chunks)
}

func TestChunker_EmptyContent(t *testing.T) {
	c := NewChunker(0, 0)

	chunks, err := c.Chunk("  \n\t ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunker_LongContentRespectsBounds(t *testing.T) {
	c := NewChunker(1024, 128)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString(strings.Repeat("The queue worker processes memos in batches. ", 4))
		sb.WriteString("\n\n")
	}

	chunks, err := c.Chunk(sb.String())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		n := utf8.RuneCountInString(chunk)
		assert.GreaterOrEqual(t, n, 128, "chunk %d too small", i)
		// merged tails may exceed the target by less than the minimum size
		assert.Less(t, n, 1024+128, "chunk %d too large", i)
	}
}

func TestChunker_TinyTailIsMerged(t *testing.T) {
	c := NewChunker(200, 50)

	content := strings.Repeat("x", 190) + "\n\n" + "short tail"
	chunks, err := c.Chunk(content)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasSuffix(chunks[0], "short tail"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", 100)
	out, cut := TruncateTo(short, 100)
	assert.False(t, cut)
	assert.Equal(t, short, out)

	long := strings.Repeat("a", 150)
	out, cut = TruncateTo(long, 100)
	assert.True(t, cut)
	assert.Equal(t, 100, utf8.RuneCountInString(out))

	multibyte := strings.Repeat("é", 100)
	out, cut = TruncateTo(multibyte, 100)
	assert.False(t, cut, "limit counts characters, not bytes")
	assert.Equal(t, multibyte, out)

	out, cut = Truncate(strings.Repeat("b", MaxContentChars+10))
	assert.True(t, cut)
	assert.Equal(t, MaxContentChars, len(out))
}
