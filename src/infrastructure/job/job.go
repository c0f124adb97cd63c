package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"docchat/src/core/ingest"
)

// Topic is the queue ingestion jobs travel on. Delivery is at-least-once; the
// pipeline's keyed upserts make redelivery safe.
const Topic = "ingest_jobs"

// Message is the wire format of an ingestion job
type Message struct {
	DocID     string `json:"doc_id"`
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
}

// Processor handles a decoded ingestion job
type Processor interface {
	Process(ctx context.Context, j ingest.Job) error
}

// Service bridges the broker and the ingestion pipeline: it publishes jobs on
// the coordinator side and decodes deliveries on the worker side.
type Service struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter
	processor Processor
}

func NewService(publisher message.Publisher, logger watermill.LoggerAdapter, processor Processor) *Service {
	return &Service{
		publisher: publisher,
		logger:    logger,
		processor: processor,
	}
}

var _ ingest.Queue = (*Service)(nil)

// Enqueue publishes an ingestion job to the queue
func (s *Service) Enqueue(ctx context.Context, j ingest.Job) error {
	payload, err := json.Marshal(Message{
		DocID:     j.DocID,
		ObjectKey: j.ObjectKey,
		Filename:  j.Filename,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish job message: %w", err)
	}

	return nil
}

// ProcessMessage decodes a delivery and runs the pipeline. Returning an error
// nacks the message; whether it comes back is the broker's configuration.
func (s *Service) ProcessMessage(msg *message.Message) error {
	var wire Message
	if err := json.Unmarshal(msg.Payload, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	s.logger.Info("Processing ingestion job", watermill.LogFields{
		"doc_id":     wire.DocID,
		"message_id": msg.UUID,
	})

	return s.processor.Process(msg.Context(), ingest.Job{
		DocID:     wire.DocID,
		ObjectKey: wire.ObjectKey,
		Filename:  wire.Filename,
	})
}
