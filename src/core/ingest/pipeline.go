package ingest

import (
	"context"
	"errors"
	"fmt"

	"docchat/src/core/chunker"
	"docchat/src/core/document"
	"docchat/src/infrastructure/log"
	"docchat/src/storage/postgres/chunkctrl"
	"docchat/src/storage/weaviate"
)

var (
	// ErrExtractionFailed covers corrupt or unsupported content
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrEmbeddingFailed covers embedding service errors during ingestion
	ErrEmbeddingFailed = errors.New("embedding service failed")
	// ErrVectorStoreFailed covers vector store write errors
	ErrVectorStoreFailed = errors.New("vector store failed")
)

// Job identifies one document to process and where its raw content lives
type Job struct {
	DocID     string
	ObjectKey string
	Filename  string
}

// ObjectStore reads and writes raw document content
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, object string) ([]byte, error)
	PutObject(ctx context.Context, bucket, object string, data []byte) error
}

// TextExtractor turns raw file content into plain text
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, content []byte) (string, error)
}

// Embedder produces embedding vectors for text
type Embedder interface {
	GetEmbedding(ctx context.Context, model, text string) ([]float32, error)
}

// VectorWriter persists chunk vectors keyed by (document, chunk index)
type VectorWriter interface {
	UpsertChunks(ctx context.Context, chunks []weaviate.Chunk) error
}

// ChunkRecorder persists chunk offset metadata
type ChunkRecorder interface {
	ReplaceForDocument(ctx context.Context, documentID string, spans []chunkctrl.Span) error
}

// Config holds the processing parameters shared by all jobs
type Config struct {
	Bucket     string
	EmbedModel string
	Chunking   chunker.Config
}

// Pipeline processes ingestion jobs: extract, chunk, embed, store. Steps for
// one job run sequentially; failures are recorded in the status store and the
// job is not retried here. Every write is a keyed upsert, so a redelivered
// job re-runs safely without duplicating chunks.
type Pipeline struct {
	docs      document.StatusStore
	objects   ObjectStore
	extractor TextExtractor
	embedder  Embedder
	vectors   VectorWriter
	chunks    ChunkRecorder
	cfg       Config
}

func NewPipeline(
	docs document.StatusStore,
	objects ObjectStore,
	extractor TextExtractor,
	embedder Embedder,
	vectors VectorWriter,
	chunks ChunkRecorder,
	cfg Config,
) (*Pipeline, error) {
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	return &Pipeline{
		docs:      docs,
		objects:   objects,
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		chunks:    chunks,
		cfg:       cfg,
	}, nil
}

// Process runs the full ingestion pipeline for one job
func (p *Pipeline) Process(ctx context.Context, j Job) error {
	if err := p.docs.SetStatus(ctx, j.DocID, document.StatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark document processing: %w", err)
	}

	content, err := p.objects.GetObject(ctx, p.cfg.Bucket, j.ObjectKey)
	if err != nil {
		return p.fail(ctx, j.DocID, fmt.Errorf("%w: %v", ErrExtractionFailed, err))
	}

	text, err := p.extractor.ExtractText(ctx, j.Filename, content)
	if err != nil {
		return p.fail(ctx, j.DocID, fmt.Errorf("%w: %v", ErrExtractionFailed, err))
	}

	pieces, err := chunker.Split(text, p.cfg.Chunking)
	if err != nil {
		return p.fail(ctx, j.DocID, fmt.Errorf("%w: %v", ErrExtractionFailed, err))
	}

	stored := make([]weaviate.Chunk, len(pieces))
	for i, piece := range pieces {
		vector, err := p.embedder.GetEmbedding(ctx, p.cfg.EmbedModel, piece.Text)
		if err != nil {
			return p.fail(ctx, j.DocID, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
		}
		stored[i] = weaviate.Chunk{
			DocID:  j.DocID,
			Index:  piece.Index,
			Text:   piece.Text,
			Start:  piece.Start,
			End:    piece.End,
			Vector: vector,
		}
	}

	if err := p.vectors.UpsertChunks(ctx, stored); err != nil {
		return p.fail(ctx, j.DocID, fmt.Errorf("%w: %v", ErrVectorStoreFailed, err))
	}

	spans := make([]chunkctrl.Span, len(pieces))
	for i, piece := range pieces {
		spans[i] = chunkctrl.Span{Index: piece.Index, Start: piece.Start, End: piece.End}
	}
	if err := p.chunks.ReplaceForDocument(ctx, j.DocID, spans); err != nil {
		return p.fail(ctx, j.DocID, fmt.Errorf("%w: %v", ErrVectorStoreFailed, err))
	}

	if err := p.docs.SetProcessed(ctx, j.DocID, len(pieces)); err != nil {
		return fmt.Errorf("failed to mark document processed: %w", err)
	}

	log.Info("document processed", "doc_id", j.DocID, "chunks", len(pieces))
	return nil
}

// fail records the terminal failure and hands the error back to the consumer.
// Redelivery, if any, is the broker's decision.
func (p *Pipeline) fail(ctx context.Context, docID string, cause error) error {
	if err := p.docs.SetStatus(ctx, docID, document.StatusFailed, cause.Error()); err != nil {
		log.Error(err, "failed to record document failure", "doc_id", docID)
	}
	return cause
}
