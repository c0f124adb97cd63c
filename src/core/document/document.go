package document

import (
	"context"
	"errors"
	"time"
)

// Status describes where a document is in its processing lifecycle
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// rank orders statuses along the lifecycle. Both terminal statuses share the
// same rank so neither can overwrite the other.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusProcessed, StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next advances the lifecycle.
// A status never regresses and never skips past a terminal state it has
// already reached.
func (s Status) CanTransition(next Status) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// Document is the unit of ingestion. It is created by the coordinator on
// upload and mutated only by the ingestion worker.
type Document struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ChunkCount    int       `json:"chunk_count"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	// ErrNotFound is returned when a document id is unknown
	ErrNotFound = errors.New("document not found")
	// ErrNotReady is returned when a document has not finished processing
	ErrNotReady = errors.New("document not ready")
)

// StatusStore tracks document lifecycle state. Implementations must be safe
// for concurrent use from multiple worker and server processes.
type StatusStore interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// SetStatus advances the document's status. Setting the current status
	// again or attempting to move backwards is a no-op.
	SetStatus(ctx context.Context, id string, status Status, reason string) error
	// SetProcessed marks the terminal success state and records how many
	// chunks were written for the document.
	SetProcessed(ctx context.Context, id string, chunkCount int) error
}
