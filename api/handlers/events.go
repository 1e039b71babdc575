package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Events handles GET /api/events - the server-push status stream. The client
// receives one frame with the full snapshot on connect and one frame per
// state change afterwards, each formatted as "data: <JSON array>\n\n".
func (h *SessionHandler) Events(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		sendError(c, http.StatusInternalServerError, "streaming not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	initial, err := json.Marshal(h.registry.Snapshot())
	if err != nil {
		log.Printf("handlers: failed to encode snapshot for event stream: %v", err)
		sendError(c, http.StatusInternalServerError, "failed to encode snapshot")
		return
	}

	id, frames := h.broadcaster.Subscribe(initial)
	defer h.broadcaster.Unsubscribe(id)

	for {
		select {
		case frame, open := <-frames:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", frame); err != nil {
				return
			}
			flusher.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
