package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Upload accepts a document file, assigns it an id and queues it for
// processing. The response returns before processing starts.
func (h *Handler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "UPLOAD_REJECTED",
			Message: "no file uploaded",
		})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "failed to read file",
		})
		return
	}

	doc, err := h.coordinator.Submit(c.Request.Context(), header.Filename, content)
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       doc.ID,
		"filename": doc.Filename,
		"status":   doc.Status,
	})
}

// GetDocument returns the current snapshot of a document
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}
