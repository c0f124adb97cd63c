package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type chatRequest struct {
	DocID          string `json:"docId" binding:"required"`
	Query          string `json:"query" binding:"required"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversationId"`
}

// Chat answers a question about one processed document. The conversation id
// is created transparently on the first request and echoed back so the caller
// can thread it into follow-ups.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	reply, err := h.answerer.Answer(c.Request.Context(), req.DocID, req.Query, req.ConversationID)
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		Answer:         reply.Answer,
		ConversationID: reply.ConversationID,
	})
}
