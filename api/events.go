package api

import (
	"io"

	"github.com/gin-gonic/gin"
)

// handleEvents streams task lifecycle events as server-sent events. An
// optional ?task= query narrows the stream to a single task. Delivery is
// best-effort; clients that fall behind miss events rather than slowing
// the workers down.
func (h *Handler) handleEvents(c *gin.Context) {
	taskFilter := c.Query("task")

	sub, cancel := h.bus.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			if taskFilter != "" && ev.TaskID != taskFilter {
				return true
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
