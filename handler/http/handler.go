package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/src/core/chat"
	"docchat/src/core/document"
	"docchat/src/core/docwatch"
	"docchat/src/core/ingest"
)

// Answerer is the chat entry point consumed by the handler
type Answerer interface {
	Answer(ctx context.Context, docID, query, conversationID string) (*chat.Reply, error)
}

// Coordinator accepts uploads and queues them for processing
type Coordinator interface {
	Submit(ctx context.Context, filename string, content []byte) (*document.Document, error)
}

// Watcher streams document status transitions
type Watcher interface {
	Watch(ctx context.Context, docID string) (<-chan docwatch.StatusEvent, error)
}

type Handler struct {
	coordinator Coordinator
	docs        document.StatusStore
	watcher     Watcher
	answerer    Answerer
}

func NewHandler(coordinator Coordinator, docs document.StatusStore, watcher Watcher, answerer Answerer) *Handler {
	return &Handler{
		coordinator: coordinator,
		docs:        docs,
		watcher:     watcher,
		answerer:    answerer,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/documents", h.Upload)
	r.GET("/documents/:id", h.GetDocument)
	r.GET("/documents/:id/status", h.StreamStatus)

	r.POST("/chat", h.Chat)

	r.GET("/health", h.CheckHealth)
}

// CheckHealth reports service liveness
func (h *Handler) CheckHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Common error response structure
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sendError(c *gin.Context, err error) {
	var code string
	var status int

	switch {
	case errors.Is(err, ingest.ErrUploadRejected):
		code = "UPLOAD_REJECTED"
		status = http.StatusBadRequest
	case errors.Is(err, ingest.ErrEnqueueFailed):
		code = "ENQUEUE_FAILED"
		status = http.StatusServiceUnavailable
	case errors.Is(err, document.ErrNotFound):
		code = "DOCUMENT_NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, document.ErrNotReady):
		code = "DOCUMENT_NOT_READY"
		status = http.StatusConflict
	case errors.Is(err, chat.ErrConversationMismatch):
		code = "CONVERSATION_MISMATCH"
		status = http.StatusConflict
	case errors.Is(err, chat.ErrEmbeddingFailed):
		code = "EMBEDDING_FAILED"
		status = http.StatusBadGateway
	case errors.Is(err, chat.ErrGenerationFailed):
		code = "GENERATION_FAILED"
		status = http.StatusBadGateway
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}
