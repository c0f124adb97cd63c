package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"docchat/src/core/document"
	"docchat/src/infrastructure/log"
	"docchat/src/storage/weaviate"
)

var (
	// ErrEmbeddingFailed is returned when the embedding service stays
	// unavailable past the retry budget
	ErrEmbeddingFailed = errors.New("embedding service failed")
	// ErrGenerationFailed is returned when the LLM stays unavailable past
	// the retry budget
	ErrGenerationFailed = errors.New("generation failed")
)

// Embedder produces an embedding vector for the query text
type Embedder interface {
	GetEmbedding(ctx context.Context, model, text string) ([]float32, error)
}

// Generator produces a completion for an assembled prompt
type Generator interface {
	Generate(ctx context.Context, model, system, prompt string, options map[string]interface{}) (string, error)
}

// Retriever returns the chunks most similar to the query vector within one
// document
type Retriever interface {
	QueryChunks(ctx context.Context, docID string, vector []float32, limit int) ([]weaviate.ChunkResult, error)
}

// Config holds the answering parameters
type Config struct {
	EmbedModel      string
	GenerateModel   string
	TopK            int
	MaxHistoryTurns int
	// MaxAttempts bounds embedding and generation calls, including the
	// first try.
	MaxAttempts     int
	InitialInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.MaxHistoryTurns <= 0 {
		c.MaxHistoryTurns = 3
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	return c
}

// Reply is the answer together with the conversation to thread into the next
// request
type Reply struct {
	Answer         string
	ConversationID string
}

// Answerer orchestrates retrieval-augmented answering: status check,
// conversation resolution, retrieval, prompt assembly, generation and turn
// recording.
type Answerer struct {
	docs          document.StatusStore
	conversations ConversationStore
	embedder      Embedder
	retriever     Retriever
	generator     Generator
	cfg           Config
}

func NewAnswerer(
	docs document.StatusStore,
	conversations ConversationStore,
	embedder Embedder,
	retriever Retriever,
	generator Generator,
	cfg Config,
) *Answerer {
	return &Answerer{
		docs:          docs,
		conversations: conversations,
		embedder:      embedder,
		retriever:     retriever,
		generator:     generator,
		cfg:           cfg.withDefaults(),
	}
}

// Answer runs one chat turn against a processed document. The document status
// is read once at the start of the request and not re-checked mid-flight.
func (a *Answerer) Answer(ctx context.Context, docID, query, conversationID string) (*Reply, error) {
	doc, err := a.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != document.StatusProcessed {
		return nil, fmt.Errorf("%w: document is %s", document.ErrNotReady, doc.Status)
	}

	conversationID, err = a.conversations.GetOrCreate(ctx, conversationID, docID)
	if err != nil {
		return nil, err
	}

	vector, err := a.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := a.retriever.QueryChunks(ctx, docID, vector, a.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	contextChunks := make([]string, len(results))
	for i, r := range results {
		contextChunks[i] = r.Text
	}

	history, err := a.conversations.History(ctx, conversationID, a.cfg.MaxHistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	prompt, err := buildPrompt(contextChunks, history, query)
	if err != nil {
		return nil, err
	}

	answer, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	turn := Turn{
		Query:     query,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.conversations.AppendTurn(ctx, conversationID, turn); err != nil {
		return nil, fmt.Errorf("failed to record turn: %w", err)
	}

	return &Reply{
		Answer:         answer,
		ConversationID: conversationID,
	}, nil
}

func (a *Answerer) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var vector []float32

	err := a.retry(ctx, func() error {
		var err error
		vector, err = a.embedder.GetEmbedding(ctx, a.cfg.EmbedModel, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	return vector, nil
}

func (a *Answerer) generate(ctx context.Context, prompt string) (string, error) {
	var answer string

	err := a.retry(ctx, func() error {
		var err error
		answer, err = a.generator.Generate(ctx, a.cfg.GenerateModel, systemPrompt, prompt, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return answer, nil
}

// retry runs op with bounded exponential backoff
func (a *Answerer) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.InitialInterval

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && attempt < a.cfg.MaxAttempts {
			log.Debug("retrying after transient failure", "attempt", attempt, "error", err.Error())
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(a.cfg.MaxAttempts-1)), ctx))
}
