package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaldlabs/skald-sub002/internal/blob"
	"github.com/skaldlabs/skald-sub002/internal/docconv"
	"github.com/skaldlabs/skald-sub002/internal/llm"
	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/internal/storage/sqlite"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// fakeEmbedder returns a deterministic two-dimensional vector per text.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    []string
	purposes []llm.EmbeddingPurpose
	failOn   string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string, purpose llm.EmbeddingPurpose) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	f.purposes = append(f.purposes, purpose)
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embedding service unavailable")
	}
	return []float32{1, float32(len(text))}, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embed" }

// mockLLMClient implements llm.StructuredGenerator with canned replies per schema.
type mockLLMClient struct {
	tagsReply    string
	summaryReply string
	err          error
}

func (m *mockLLMClient) Complete(context.Context, string) (string, error) {
	return "", errors.New("mock LLM: Complete not expected")
}

func (m *mockLLMClient) CompleteJSON(_ context.Context, _ string, schema llm.JSONSchema) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if schema.Name == llm.TagsSchema.Name {
		return m.tagsReply, nil
	}
	return m.summaryReply, nil
}

func (m *mockLLMClient) GetModel() string { return "mock-model" }

// plainLLMClient has no structured output.
type plainLLMClient struct{}

func (plainLLMClient) Complete(context.Context, string) (string, error) { return "", nil }
func (plainLLMClient) GetModel() string                                 { return "plain" }

type fakeConverter struct {
	markdown string
	err      error
	got      docconv.DocumentInput
}

func (f *fakeConverter) Convert(_ context.Context, doc docconv.DocumentInput) (string, error) {
	f.got = doc
	return f.markdown, f.err
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newMemo(t *testing.T, store *sqlite.Store, memo *types.Memo, content string) string {
	t.Helper()
	if memo.ProjectUUID == "" {
		memo.ProjectUUID = "project-1"
	}
	if memo.OrganizationUUID == "" {
		memo.OrganizationUUID = "org-1"
	}
	require.NoError(t, store.CreateMemo(context.Background(), memo, content))
	return memo.UUID
}

func newStructuredLLM() *mockLLMClient {
	return &mockLLMClient{
		tagsReply:    `{"tags": ["Go", "testing", "go"]}`,
		summaryReply: `{"summary": "A note about Go testing."}`,
	}
}

func newTestProcessor(t *testing.T, deps Dependencies, cfg ProcessorConfig) *Processor {
	t.Helper()
	deps.Logger = zerolog.Nop()
	p, err := NewProcessor(deps, cfg)
	require.NoError(t, err)
	return p
}

func memoState(t *testing.T, store *sqlite.Store, id string) *types.Memo {
	t.Helper()
	memo, _, err := store.GetMemoWithContent(context.Background(), id)
	require.NoError(t, err)
	return memo
}

func search(t *testing.T, store *sqlite.Store, project string) []types.ChunkCandidate {
	t.Helper()
	hits, err := store.SearchChunks(context.Background(), storage.ChunkQuery{
		ProjectUUID: project, Embedding: []float32{1, 0}, Limit: 100, MaxDistance: 2,
	})
	require.NoError(t, err)
	return hits
}

func TestProcess_PlaintextMemo(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{}
	p := newTestProcessor(t, Dependencies{Embedder: embedder, Generator: newStructuredLLM()}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Title: "Go notes"}, "Table driven tests keep Go code honest.")

	require.NoError(t, p.Process(context.Background(), store, id))

	memo := memoState(t, store, id)
	assert.Equal(t, types.StatusProcessed, memo.ProcessingStatus)
	assert.NotNil(t, memo.ProcessingStartedAt)
	assert.NotNil(t, memo.ProcessingCompletedAt)
	assert.Empty(t, memo.ProcessingError)

	hits := search(t, store, "project-1")
	require.Len(t, hits, 1)
	assert.Equal(t, "Table driven tests keep Go code honest.", hits[0].Content)

	props, err := store.GetMemoProperties(context.Background(), []string{id})
	require.NoError(t, err)
	assert.Equal(t, "A note about Go testing.", props[id].Summary)

	tagged, err := store.SearchChunks(context.Background(), storage.ChunkQuery{
		ProjectUUID: "project-1", Embedding: []float32{1, 0}, Limit: 10, MaxDistance: 2,
		Filters: []types.MemoFilter{{Field: "tags", FilterType: types.FilterTypeNativeField, Operator: types.OpIn, Value: []string{"go"}}},
	})
	require.NoError(t, err)
	assert.Len(t, tagged, 1, "tags are normalised and stored")

	for _, purpose := range embedder.purposes {
		assert.Equal(t, llm.PurposeStorage, purpose)
	}
	assert.Len(t, embedder.calls, 2, "one chunk plus the summary")
}

func TestProcess_WithoutStructuredGenerator(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{}
	p := newTestProcessor(t, Dependencies{Embedder: embedder, Generator: plainLLMClient{}}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Title: "plain"}, "Only chunks are produced.")
	require.NoError(t, p.Process(context.Background(), store, id))

	assert.Len(t, search(t, store, "project-1"), 1)
	props, err := store.GetMemoProperties(context.Background(), []string{id})
	require.NoError(t, err)
	assert.Empty(t, props[id].Summary)
	assert.Len(t, embedder.calls, 1)
}

func TestProcess_MemoNotFound(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(t, Dependencies{Embedder: &fakeEmbedder{}}, ProcessorConfig{})

	err := p.Process(context.Background(), store, "m1")
	require.ErrorIs(t, err, ErrMemoNotFound)
	assert.Equal(t, "Memo not found: m1", err.Error())
}

func TestProcess_MemoBusy(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(t, Dependencies{Embedder: &fakeEmbedder{}}, ProcessorConfig{StaleProcessingAfter: time.Hour})

	id := newMemo(t, store, &types.Memo{Title: "busy"}, "content")
	_, err := store.StartProcessing(context.Background(), id, time.Hour)
	require.NoError(t, err)

	err = p.Process(context.Background(), store, id)
	assert.ErrorIs(t, err, ErrMemoBusy)
	assert.Equal(t, types.StatusProcessing, memoState(t, store, id).ProcessingStatus,
		"the live run keeps ownership")
}

func TestProcess_EmbeddingFailureMarksError(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(t, Dependencies{Embedder: &fakeEmbedder{failOn: "poison"}}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Title: "bad"}, "this chunk is poison")

	err := p.Process(context.Background(), store, id)
	require.Error(t, err)

	memo := memoState(t, store, id)
	assert.Equal(t, types.StatusError, memo.ProcessingStatus)
	assert.Contains(t, memo.ProcessingError, "embedding service unavailable")
	assert.NotNil(t, memo.ProcessingCompletedAt)
	assert.Empty(t, search(t, store, "project-1"), "nothing is persisted on failure")
}

func TestProcess_ExtractionFailureMarksError(t *testing.T) {
	store := newTestStore(t)
	llmClient := &mockLLMClient{err: errors.New("rate limited")}
	p := newTestProcessor(t, Dependencies{Embedder: &fakeEmbedder{}, Generator: llmClient}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Title: "x"}, "content")
	require.Error(t, p.Process(context.Background(), store, id))
	assert.Equal(t, types.StatusError, memoState(t, store, id).ProcessingStatus)
}

func TestProcess_RetryAfterErrorReplacesRows(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{failOn: "poison"}
	p := newTestProcessor(t, Dependencies{Embedder: embedder}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Title: "retry"}, "poison pill")
	require.Error(t, p.Process(context.Background(), store, id))

	embedder.failOn = ""
	require.NoError(t, p.Process(context.Background(), store, id))
	assert.Equal(t, types.StatusProcessed, memoState(t, store, id).ProcessingStatus)

	require.NoError(t, p.Process(context.Background(), store, id), "processed memos can be re-run")
	assert.Len(t, search(t, store, "project-1"), 1, "re-runs replace rather than append")
}

func TestProcess_EmptyContent(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{}
	p := newTestProcessor(t, Dependencies{Embedder: embedder, Generator: newStructuredLLM()}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Title: "empty"}, "")
	require.NoError(t, p.Process(context.Background(), store, id))

	assert.Equal(t, types.StatusProcessed, memoState(t, store, id).ProcessingStatus)
	assert.Empty(t, embedder.calls)
}

func TestProcess_ChunksLongContentInOrder(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(t, Dependencies{Embedder: &fakeEmbedder{}}, ProcessorConfig{ChunkSize: 200, MinChunkSize: 20})

	paragraphs := make([]string, 6)
	for i := range paragraphs {
		paragraphs[i] = strings.Repeat(string(rune('a'+i)), 150)
	}
	id := newMemo(t, store, &types.Memo{Title: "long"}, strings.Join(paragraphs, "\n\n"))
	require.NoError(t, p.Process(context.Background(), store, id))

	hits := search(t, store, "project-1")
	require.Len(t, hits, 6)
	byIndex := map[int]string{}
	for _, h := range hits {
		byIndex[h.ChunkIndex] = h.Content
	}
	for i, para := range paragraphs {
		assert.Equal(t, para, byIndex[i])
	}
}

func TestProcess_TruncatesOversizedContent(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{}
	p := newTestProcessor(t, Dependencies{Embedder: embedder}, ProcessorConfig{ChunkSize: 100, MinChunkSize: 10, MaxContentChars: 250})

	id := newMemo(t, store, &types.Memo{Title: "huge"}, strings.Repeat("word ", 200))
	require.NoError(t, p.Process(context.Background(), store, id))

	total := 0
	for _, text := range embedder.calls {
		total += len(text)
	}
	assert.LessOrEqual(t, total, 250)
	assert.Equal(t, types.StatusProcessed, memoState(t, store, id).ProcessingStatus)
}

func TestProcess_DocumentMemo(t *testing.T) {
	store := newTestStore(t)
	blobs, err := blob.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, blobs.Put(context.Background(), "project-1/report.pdf", []byte("%PDF"), "application/pdf"))

	converter := &fakeConverter{markdown: "# Report\n\n" + strings.Repeat("x", 2100)}
	p := newTestProcessor(t, Dependencies{
		Embedder: &fakeEmbedder{}, Converter: converter, Blobs: blobs,
	}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{
		Title: "report", Type: types.MemoTypeDocument, FileKey: "project-1/report.pdf", FileName: "report.pdf",
	}, "")
	require.NoError(t, p.Process(context.Background(), store, id))

	assert.Equal(t, []byte("%PDF"), converter.got.Data)
	assert.Equal(t, "report.pdf", converter.got.FileName)
	assert.Equal(t, "application/pdf", converter.got.ContentType)

	_, content, err := store.GetMemoWithContent(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, converter.markdown, content.Content)

	units, err := store.WriteUnits(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 3, units, "2110 characters bill three write units")
	assert.Equal(t, types.StatusProcessed, memoState(t, store, id).ProcessingStatus)
}

func TestProcess_DocumentConversionTimeout(t *testing.T) {
	store := newTestStore(t)
	blobs, err := blob.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, blobs.Put(context.Background(), "a.pdf", []byte("%PDF"), ""))

	converter := &fakeConverter{err: docconv.ErrConversionTimeout}
	p := newTestProcessor(t, Dependencies{Embedder: &fakeEmbedder{}, Converter: converter, Blobs: blobs}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Type: types.MemoTypeDocument, FileKey: "a.pdf"}, "")
	err = p.Process(context.Background(), store, id)
	require.ErrorIs(t, err, docconv.ErrConversionTimeout)

	memo := memoState(t, store, id)
	assert.Equal(t, types.StatusError, memo.ProcessingStatus)
	assert.Contains(t, memo.ProcessingError, "timed out")
}

func TestProcess_DocumentWithoutConverter(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(t, Dependencies{Embedder: &fakeEmbedder{}}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Type: types.MemoTypeDocument, FileKey: "a.pdf"}, "")
	assert.ErrorIs(t, p.Process(context.Background(), store, id), ErrConversionUnavailable)
}

func TestProcess_CancelledContextStillRecordsError(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	embedder := &cancellingEmbedder{cancel: cancel}
	p := newTestProcessor(t, Dependencies{Embedder: embedder}, ProcessorConfig{})

	id := newMemo(t, store, &types.Memo{Title: "cancel"}, "content")
	require.Error(t, p.Process(ctx, store, id))
	assert.Equal(t, types.StatusError, memoState(t, store, id).ProcessingStatus)
}

type cancellingEmbedder struct{ cancel context.CancelFunc }

func (c *cancellingEmbedder) Embed(ctx context.Context, _ string, _ llm.EmbeddingPurpose) ([]float32, error) {
	c.cancel()
	return nil, ctx.Err()
}

func (c *cancellingEmbedder) GetModel() string { return "cancel" }

func TestNewProcessor_RequiresEmbedder(t *testing.T) {
	_, err := NewProcessor(Dependencies{}, ProcessorConfig{})
	assert.Error(t, err)
}
