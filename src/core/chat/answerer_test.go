package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/src/core/chat"
	"docchat/src/core/document"
	"docchat/src/storage/weaviate"
)

type fakeStatusStore struct {
	mu   sync.Mutex
	docs map[string]*document.Document
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{docs: map[string]*document.Document{}}
}

func (s *fakeStatusStore) Create(ctx context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Status = document.StatusQueued
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *fakeStatusStore) Get(ctx context.Context, id string) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStatusStore) SetStatus(ctx context.Context, id string, status document.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return document.ErrNotFound
	}
	if doc.Status.CanTransition(status) {
		doc.Status = status
		doc.FailureReason = reason
	}
	return nil
}

func (s *fakeStatusStore) SetProcessed(ctx context.Context, id string, chunkCount int) error {
	if err := s.SetStatus(ctx, id, document.StatusProcessed, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id].ChunkCount = chunkCount
	return nil
}

type memoryConversations struct {
	mu       sync.Mutex
	bindings map[string]string
	turns    map[string][]chat.Turn
	next     int
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{
		bindings: map[string]string{},
		turns:    map[string][]chat.Turn{},
	}
}

func (m *memoryConversations) GetOrCreate(ctx context.Context, conversationID, docID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conversationID == "" {
		m.next++
		conversationID = "conv-" + string(rune('0'+m.next))
	}
	bound, ok := m.bindings[conversationID]
	if !ok {
		m.bindings[conversationID] = docID
		return conversationID, nil
	}
	if bound != docID {
		return "", chat.ErrConversationMismatch
	}
	return conversationID, nil
}

func (m *memoryConversations) AppendTurn(ctx context.Context, conversationID string, turn chat.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[conversationID] = append(m.turns[conversationID], turn)
	return nil
}

func (m *memoryConversations) History(ctx context.Context, conversationID string, maxTurns int) ([]chat.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns[conversationID]
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	out := make([]chat.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

type fakeEmbedder struct {
	failures int
	calls    int
}

func (f *fakeEmbedder) GetEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("embedding service down")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeRetriever struct {
	results []weaviate.ChunkResult
}

func (f *fakeRetriever) QueryChunks(ctx context.Context, docID string, vector []float32, limit int) ([]weaviate.ChunkResult, error) {
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

type fakeGenerator struct {
	failures int
	calls    int
	prompts  []string
	answer   string
}

func (f *fakeGenerator) Generate(ctx context.Context, model, system, prompt string, options map[string]interface{}) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("llm unavailable")
	}
	f.prompts = append(f.prompts, prompt)
	return f.answer, nil
}

func testConfig() chat.Config {
	return chat.Config{
		EmbedModel:      "nomic-embed-text",
		GenerateModel:   "llama3",
		TopK:            3,
		MaxHistoryTurns: 3,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
	}
}

func processedDoc(t *testing.T, store *fakeStatusStore, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &document.Document{ID: id, Filename: id + ".pdf"}))
	require.NoError(t, store.SetStatus(ctx, id, document.StatusProcessing, ""))
	require.NoError(t, store.SetProcessed(ctx, id, 2))
}

func TestAnswerHappyPath(t *testing.T) {
	docs := newFakeStatusStore()
	processedDoc(t, docs, "doc-1")

	convs := newMemoryConversations()
	gen := &fakeGenerator{answer: "the document is about chunking"}
	retr := &fakeRetriever{results: []weaviate.ChunkResult{
		{DocID: "doc-1", Index: 0, Text: "chunk zero", Distance: 0.1},
		{DocID: "doc-1", Index: 3, Text: "chunk three", Distance: 0.2},
	}}

	a := chat.NewAnswerer(docs, convs, &fakeEmbedder{}, retr, gen, testConfig())

	reply, err := a.Answer(context.Background(), "doc-1", "what is this about?", "")
	require.NoError(t, err)
	assert.Equal(t, "the document is about chunking", reply.Answer)
	assert.NotEmpty(t, reply.ConversationID)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "chunk zero")
	assert.Contains(t, gen.prompts[0], "chunk three")
	assert.Contains(t, gen.prompts[0], "what is this about?")

	history, err := convs.History(context.Background(), reply.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "what is this about?", history[0].Query)
}

func TestAnswerNotReady(t *testing.T) {
	docs := newFakeStatusStore()
	ctx := context.Background()
	require.NoError(t, docs.Create(ctx, &document.Document{ID: "doc-q", Filename: "doc.pdf"}))

	a := chat.NewAnswerer(docs, newMemoryConversations(), &fakeEmbedder{}, &fakeRetriever{}, &fakeGenerator{answer: "x"}, testConfig())

	_, err := a.Answer(ctx, "doc-q", "hello", "")
	assert.ErrorIs(t, err, document.ErrNotReady)

	require.NoError(t, docs.SetStatus(ctx, "doc-q", document.StatusProcessing, ""))
	_, err = a.Answer(ctx, "doc-q", "hello", "")
	assert.ErrorIs(t, err, document.ErrNotReady)
}

func TestAnswerNotFound(t *testing.T) {
	a := chat.NewAnswerer(newFakeStatusStore(), newMemoryConversations(), &fakeEmbedder{}, &fakeRetriever{}, &fakeGenerator{answer: "x"}, testConfig())

	_, err := a.Answer(context.Background(), "missing", "hello", "")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestAnswerConversationMismatch(t *testing.T) {
	docs := newFakeStatusStore()
	processedDoc(t, docs, "doc-1")
	processedDoc(t, docs, "doc-2")

	convs := newMemoryConversations()
	a := chat.NewAnswerer(docs, convs, &fakeEmbedder{}, &fakeRetriever{}, &fakeGenerator{answer: "x"}, testConfig())

	reply, err := a.Answer(context.Background(), "doc-1", "hello", "")
	require.NoError(t, err)

	_, err = a.Answer(context.Background(), "doc-2", "hello again", reply.ConversationID)
	assert.ErrorIs(t, err, chat.ErrConversationMismatch)
}

func TestAnswerFollowUpIncludesHistory(t *testing.T) {
	docs := newFakeStatusStore()
	processedDoc(t, docs, "doc-1")

	convs := newMemoryConversations()
	gen := &fakeGenerator{answer: "an answer"}
	a := chat.NewAnswerer(docs, convs, &fakeEmbedder{}, &fakeRetriever{}, gen, testConfig())

	first, err := a.Answer(context.Background(), "doc-1", "what is this about?", "")
	require.NoError(t, err)

	_, err = a.Answer(context.Background(), "doc-1", "can you elaborate?", first.ConversationID)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1], "Human: what is this about?")
	assert.Contains(t, gen.prompts[1], "Assistant: an answer")
}

func TestAnswerRetriesGeneration(t *testing.T) {
	docs := newFakeStatusStore()
	processedDoc(t, docs, "doc-1")

	gen := &fakeGenerator{failures: 2, answer: "recovered"}
	a := chat.NewAnswerer(docs, newMemoryConversations(), &fakeEmbedder{}, &fakeRetriever{}, gen, testConfig())

	reply, err := a.Answer(context.Background(), "doc-1", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Answer)
	assert.Equal(t, 3, gen.calls)
}

func TestAnswerGenerationExhaustsRetries(t *testing.T) {
	docs := newFakeStatusStore()
	processedDoc(t, docs, "doc-1")

	gen := &fakeGenerator{failures: 10, answer: "never"}
	a := chat.NewAnswerer(docs, newMemoryConversations(), &fakeEmbedder{}, &fakeRetriever{}, gen, testConfig())

	_, err := a.Answer(context.Background(), "doc-1", "hello", "")
	assert.ErrorIs(t, err, chat.ErrGenerationFailed)
	assert.Equal(t, 3, gen.calls)
}

func TestAnswerEmbeddingExhaustsRetries(t *testing.T) {
	docs := newFakeStatusStore()
	processedDoc(t, docs, "doc-1")

	emb := &fakeEmbedder{failures: 10}
	a := chat.NewAnswerer(docs, newMemoryConversations(), emb, &fakeRetriever{}, &fakeGenerator{answer: "x"}, testConfig())

	_, err := a.Answer(context.Background(), "doc-1", "hello", "")
	assert.ErrorIs(t, err, chat.ErrEmbeddingFailed)
	assert.Equal(t, 3, emb.calls)
}

func TestAnswerHistoryIsBounded(t *testing.T) {
	docs := newFakeStatusStore()
	processedDoc(t, docs, "doc-1")

	convs := newMemoryConversations()
	gen := &fakeGenerator{answer: "a"}
	cfg := testConfig()
	cfg.MaxHistoryTurns = 2
	a := chat.NewAnswerer(docs, convs, &fakeEmbedder{}, &fakeRetriever{}, gen, cfg)

	var conversationID string
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		reply, err := a.Answer(context.Background(), "doc-1", q, conversationID)
		require.NoError(t, err)
		conversationID = reply.ConversationID
	}

	last := gen.prompts[len(gen.prompts)-1]
	assert.NotContains(t, last, "Human: q1")
	assert.Contains(t, last, "Human: q2")
	assert.Contains(t, last, "Human: q3")

	if strings.Count(last, "Human:") != 2 {
		t.Errorf("expected exactly 2 history turns in prompt, got %d:\n%s", strings.Count(last, "Human:"), last)
	}
}
