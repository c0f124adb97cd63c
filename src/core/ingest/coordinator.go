package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docchat/src/core/document"
)

var (
	// ErrUploadRejected is returned for files outside the accepted types
	ErrUploadRejected = errors.New("upload rejected")
	// ErrEnqueueFailed is returned when the job cannot be published
	ErrEnqueueFailed = errors.New("failed to enqueue ingestion job")
)

// Queue publishes ingestion jobs to the broker
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
}

// Coordinator accepts uploads, assigns document identity and enqueues the
// ingestion job. It returns as soon as the job is queued; processing happens
// in the worker.
type Coordinator struct {
	docs        document.StatusStore
	objects     ObjectStore
	queue       Queue
	bucket      string
	allowedExts map[string]struct{}
}

func NewCoordinator(docs document.StatusStore, objects ObjectStore, queue Queue, bucket string, allowedExts []string) *Coordinator {
	exts := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &Coordinator{
		docs:        docs,
		objects:     objects,
		queue:       queue,
		bucket:      bucket,
		allowedExts: exts,
	}
}

// Submit validates and stores the file, records the document as queued and
// publishes its ingestion job
func (c *Coordinator) Submit(ctx context.Context, filename string, content []byte) (*document.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := c.allowedExts[ext]; !ok {
		return nil, fmt.Errorf("%w: file type %q is not supported", ErrUploadRejected, ext)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUploadRejected)
	}

	doc := &document.Document{
		ID:       uuid.New().String(),
		Filename: filename,
	}
	objectKey := doc.ID + ext

	if err := c.objects.PutObject(ctx, c.bucket, objectKey, content); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	if err := c.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	job := Job{
		DocID:     doc.ID,
		ObjectKey: objectKey,
		Filename:  filename,
	}
	if err := c.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	return doc, nil
}
