package conversationctrl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"docchat/src/core/chat"
)

const (
	bindingPrefix = "conv:"
	turnsSuffix   = ":turns"
)

// ConversationService keeps conversation state in Redis: a hash holding the
// document binding and a list of JSON-encoded turns. A turn append is a
// single RPUSH, so concurrent appends to one conversation serialize in the
// server without interleaved writes.
type ConversationService struct {
	client *redis.Client
}

func NewConversationService(client *redis.Client) *ConversationService {
	return &ConversationService{
		client: client,
	}
}

var _ chat.ConversationStore = (*ConversationService)(nil)

func (s *ConversationService) GetOrCreate(ctx context.Context, conversationID, docID string) (string, error) {
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	key := bindingPrefix + conversationID

	// HSETNX fixes the binding exactly once; later calls only read it back.
	if err := s.client.HSetNX(ctx, key, "doc_id", docID).Err(); err != nil {
		return "", fmt.Errorf("failed to bind conversation: %w", err)
	}

	bound, err := s.client.HGet(ctx, key, "doc_id").Result()
	if err != nil {
		return "", fmt.Errorf("failed to read conversation binding: %w", err)
	}
	if bound != docID {
		return "", chat.ErrConversationMismatch
	}

	return conversationID, nil
}

func (s *ConversationService) AppendTurn(ctx context.Context, conversationID string, turn chat.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := bindingPrefix + conversationID + turnsSuffix
	if err := s.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	return nil
}

func (s *ConversationService) History(ctx context.Context, conversationID string, maxTurns int) ([]chat.Turn, error) {
	if maxTurns <= 0 {
		return []chat.Turn{}, nil
	}

	key := bindingPrefix + conversationID + turnsSuffix
	raw, err := s.client.LRange(ctx, key, int64(-maxTurns), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	turns := make([]chat.Turn, 0, len(raw))
	for _, entry := range raw {
		var turn chat.Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, nil
}
