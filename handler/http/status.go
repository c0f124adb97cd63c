package http

import (
	"io"

	"github.com/gin-gonic/gin"
)

// StreamStatus emits one server-sent event per status change and closes the
// stream after a terminal status. A subscriber connecting after processing
// finished receives the terminal status immediately.
func (h *Handler) StreamStatus(c *gin.Context) {
	events, err := h.watcher.Watch(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent("status", ev)
		return true
	})
}
