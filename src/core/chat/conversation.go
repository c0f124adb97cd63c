package chat

import (
	"context"
	"errors"
	"time"
)

// Turn is one query/answer exchange within a conversation
type Turn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrConversationMismatch is returned when a supplied conversation id is
// bound to a different document
var ErrConversationMismatch = errors.New("conversation is bound to a different document")

// ConversationStore owns per-session turn history. A conversation is bound to
// exactly one document for its whole lifetime; implementations must serialize
// concurrent appends to the same conversation.
type ConversationStore interface {
	// GetOrCreate resolves the conversation id, minting a new one when the
	// supplied id is empty. The document binding is fixed on first use.
	GetOrCreate(ctx context.Context, conversationID, docID string) (string, error)
	AppendTurn(ctx context.Context, conversationID string, turn Turn) error
	// History returns at most maxTurns of the most recent turns, oldest
	// first.
	History(ctx context.Context, conversationID string, maxTurns int) ([]Turn, error)
}
