package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/Iblal/cowrite-server/internal/collab"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type openSessionRequestPayload struct {
	Token        string `json:"token"`
	DocumentName string `json:"documentName"`
}

type openSessionResponsePayload struct {
	SessionID  string `json:"sessionId"`
	DocumentID int64  `json:"documentId"`
	UserID     int64  `json:"userId"`
	Access     string `json:"access"`
	ReadOnly   bool   `json:"readOnly"`
	HasState   bool   `json:"hasState"`
	State      []byte `json:"state,omitempty"`
}

type stateRequestPayload struct {
	State *[]byte `json:"state"`
}

type storeResponsePayload struct {
	DocumentID int64 `json:"documentId"`
	Bytes      int   `json:"bytes"`
	Saved      bool  `json:"saved"`
}

func (h *httpHandler) handleOpenSession(c *gin.Context) {
	var request openSessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "Invalid request body")
		return
	}
	if request.Token == "" {
		request.Token = h.bearerOrQueryToken(c)
	}
	opened, err := h.sessions.Open(c.Request.Context(), collab.AdmissionRequest{
		Token:        request.Token,
		DocumentName: request.DocumentName,
	})
	if err != nil {
		h.respondError(c, "collab.open", err)
		return
	}
	session := opened.Context
	c.JSON(http.StatusCreated, openSessionResponsePayload{
		SessionID:  session.SessionID,
		DocumentID: session.DocumentID,
		UserID:     session.UserID,
		Access:     session.Access.String(),
		ReadOnly:   session.ReadOnly,
		HasState:   opened.HasState,
		State:      opened.State,
	})
}

func (h *httpHandler) handleCheckpoint(c *gin.Context) {
	var request stateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.State == nil {
		h.respondInvalidRequest(c, "State is required")
		return
	}
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(messageMissingToken, codeMissingToken))
		return
	}
	result, err := h.sessions.Checkpoint(c.Request.Context(), c.Param("id"), userID, *request.State)
	if err != nil {
		h.respondError(c, "collab.checkpoint", err)
		return
	}
	if result.Failed() {
		h.logger.Warn("checkpoint not persisted",
			zap.Int64("user_id", userID),
			zap.Int64("document_id", result.DocumentID),
			zap.Error(result.Err))
		c.JSON(http.StatusServiceUnavailable, errorBody("State not persisted", "collab.store_failed"))
		return
	}
	c.JSON(http.StatusOK, storeResponsePayload{DocumentID: result.DocumentID, Bytes: result.Bytes, Saved: true})
}

// handleCloseSession accepts an optional final state; an empty body, chunked
// or not, closes without storing.
func (h *httpHandler) handleCloseSession(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(messageMissingToken, codeMissingToken))
		return
	}
	var request stateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		h.respondInvalidRequest(c, "Invalid request body")
		return
	}
	var finalState []byte
	if request.State != nil {
		finalState = *request.State
	}
	result, err := h.sessions.Close(c.Request.Context(), c.Param("id"), userID, finalState, request.State != nil)
	if err != nil {
		h.respondError(c, "collab.close", err)
		return
	}
	c.JSON(http.StatusOK, storeResponsePayload{
		DocumentID: result.DocumentID,
		Bytes:      result.Bytes,
		Saved:      result.DocumentID != 0 && !result.Failed(),
	})
}
