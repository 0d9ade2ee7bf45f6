package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// EventDocumentSaved names the SSE event sent after each stored state.
	EventDocumentSaved = "document-saved"

	eventHeartbeat         = "heartbeat"
	eventSource            = "cowrite-server"
	eventHeartbeatInterval = 25 * time.Second
)

type savedEventPayload struct {
	DocumentID int64  `json:"documentId"`
	EditorID   int64  `json:"editorId,omitempty"`
	Bytes      int    `json:"bytes"`
	SavedAt    int64  `json:"savedAt"`
	Source     string `json:"source"`
}

// handleDocumentEvents streams document-saved events to readers of the
// document until the client disconnects.
func (h *httpHandler) handleDocumentEvents(c *gin.Context) {
	userID, documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	if _, err := h.documents.GetDocument(c.Request.Context(), userID, documentID); err != nil {
		h.respondError(c, "documents.events", hideForbidden(err))
		return
	}

	watch, err := h.feed.Watch(documentID)
	if err != nil {
		h.respondError(c, "documents.events", err)
		return
	}
	defer watch.Stop()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(eventHeartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case notice, open := <-watch.Notices():
			if !open {
				return false
			}
			c.SSEvent(EventDocumentSaved, savedEventPayload{
				DocumentID: notice.DocumentID,
				EditorID:   notice.EditorID,
				Bytes:      notice.Bytes,
				SavedAt:    notice.SavedAt.Unix(),
				Source:     eventSource,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(eventHeartbeat, gin.H{"ts": tick.Unix(), "source": eventSource})
			return true
		}
	})
}
