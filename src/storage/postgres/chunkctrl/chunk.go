package chunkctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Chunk records where each stored chunk sits inside its source document. The
// vectors themselves live in Weaviate; these rows carry the offsets.
type Chunk struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	DocumentID  string    `gorm:"not null;index:idx_chunks_doc_index,unique" json:"document_id"`
	ChunkIndex  int       `gorm:"not null;index:idx_chunks_doc_index,unique" json:"chunk_index"`
	StartOffset int       `gorm:"not null" json:"start_offset"`
	EndOffset   int       `gorm:"not null" json:"end_offset"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ChunkService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewChunkService(db *gorm.DB) (*ChunkService, error) {
	if err := db.AutoMigrate(&Chunk{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chunks table: %v", err)
	}

	// Initialize snowflake node
	node, err := snowflake.NewNode(2) // Node number 2 for chunks
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ChunkService{
		db:        db,
		snowflake: node,
	}, nil
}

// Span is one chunk's offsets within its document
type Span struct {
	Index int
	Start int
	End   int
}

// ReplaceForDocument rewrites the chunk rows for a document in one
// transaction. Reprocessing the same document therefore yields the same row
// set instead of accumulating duplicates.
func (s *ChunkService) ReplaceForDocument(ctx context.Context, documentID string, spans []Span) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete existing chunks: %v", err)
		}

		if len(spans) == 0 {
			return nil
		}

		records := make([]Chunk, len(spans))
		for i, span := range spans {
			records[i] = Chunk{
				ID:          s.snowflake.Generate().Int64(),
				DocumentID:  documentID,
				ChunkIndex:  span.Index,
				StartOffset: span.Start,
				EndOffset:   span.End,
			}
		}

		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to create chunks: %v", err)
		}

		return nil
	})
}

func (s *ChunkService) GetByDocumentID(ctx context.Context, documentID string) ([]Chunk, error) {
	var chunks []Chunk
	result := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get chunks: %v", result.Error)
	}
	return chunks, nil
}

func (s *ChunkService) CountByDocumentID(ctx context.Context, documentID string) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&Chunk{}).
		Where("document_id = ?", documentID).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count chunks: %v", result.Error)
	}
	return count, nil
}
