package documentctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docchat/src/core/document"
)

// Document is the gorm model backing the status store
type Document struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Filename      string    `gorm:"not null" json:"filename"`
	Status        string    `gorm:"not null;index" json:"status"`
	FailureReason string    `json:"failure_reason"`
	ChunkCount    int       `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DocumentService persists document lifecycle state in PostgreSQL. Status
// writes are guarded in SQL so they only ever move forward, which keeps
// concurrent workers and redelivered jobs from regressing a document.
type DocumentService struct {
	db *gorm.DB
}

func NewDocumentService(db *gorm.DB) (*DocumentService, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %v", err)
	}

	return &DocumentService{
		db: db,
	}, nil
}

var _ document.StatusStore = (*DocumentService)(nil)

func (s *DocumentService) Create(ctx context.Context, doc *document.Document) error {
	record := &Document{
		ID:       doc.ID,
		Filename: doc.Filename,
		Status:   string(document.StatusQueued),
	}

	result := s.db.WithContext(ctx).Create(record)
	if result.Error != nil {
		return fmt.Errorf("failed to create document: %v", result.Error)
	}

	doc.Status = document.StatusQueued
	doc.CreatedAt = record.CreatedAt
	return nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*document.Document, error) {
	var record Document
	result := s.db.WithContext(ctx).First(&record, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %v", result.Error)
	}

	return toDomain(&record), nil
}

func (s *DocumentService) SetStatus(ctx context.Context, id string, status document.Status, reason string) error {
	updates := map[string]interface{}{
		"status":         string(status),
		"failure_reason": reason,
	}

	result := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status IN ?", id, predecessorsOf(status)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update document status: %v", result.Error)
	}

	if result.RowsAffected == 0 {
		// Either the id is unknown or the document is already at or past
		// this status; only the former is an error.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (s *DocumentService) SetProcessed(ctx context.Context, id string, chunkCount int) error {
	updates := map[string]interface{}{
		"status":         string(document.StatusProcessed),
		"failure_reason": "",
		"chunk_count":    chunkCount,
	}

	result := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status IN ?", id, predecessorsOf(document.StatusProcessed)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to mark document processed: %v", result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// predecessorsOf lists the statuses a document may hold immediately before
// moving to next
func predecessorsOf(next document.Status) []string {
	var preds []string
	for _, s := range []document.Status{
		document.StatusQueued,
		document.StatusProcessing,
		document.StatusProcessed,
		document.StatusFailed,
	} {
		if s.CanTransition(next) {
			preds = append(preds, string(s))
		}
	}
	return preds
}

func toDomain(record *Document) *document.Document {
	return &document.Document{
		ID:            record.ID,
		Filename:      record.Filename,
		Status:        document.Status(record.Status),
		FailureReason: record.FailureReason,
		ChunkCount:    record.ChunkCount,
		CreatedAt:     record.CreatedAt,
	}
}
