package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Iblal/cowrite-server/internal/documents"
	"github.com/gin-gonic/gin"
)

type documentRequestPayload struct {
	Title string `json:"title"`
}

type documentPayload struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	OwnerID      int64     `json:"ownerId"`
	LastEditorID *int64    `json:"lastEditedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Access       string    `json:"access,omitempty"`
}

type shareRequestPayload struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

type collaboratorPayload struct {
	DocumentID int64  `json:"documentId"`
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

func newDocumentPayload(document documents.Document, access documents.AccessLevel) documentPayload {
	payload := documentPayload{
		ID:           document.ID,
		Title:        document.Title,
		OwnerID:      document.OwnerID,
		LastEditorID: document.LastEditorID,
		CreatedAt:    document.CreatedAt.UTC(),
		UpdatedAt:    document.UpdatedAt.UTC(),
	}
	if access != documents.AccessNone {
		payload.Access = access.String()
	}
	return payload
}

func newCollaboratorPayload(collaborator documents.Collaborator) collaboratorPayload {
	return collaboratorPayload{
		DocumentID: collaborator.DocumentID,
		Email:      collaborator.Email,
		Permission: string(collaborator.Permission),
	}
}

// documentParam reads the :id path parameter and answers 400 when it is not a
// document identifier.
func (h *httpHandler) documentParam(c *gin.Context) (int64, int64, bool) {
	userID, ok := callerID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(messageMissingToken, codeMissingToken))
		return 0, 0, false
	}
	documentID, err := documents.ParseDocumentLabel(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("Invalid document id", codeInvalidDocument))
		return 0, 0, false
	}
	return userID, documentID, true
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(messageMissingToken, codeMissingToken))
		return
	}
	var request documentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		h.respondInvalidRequest(c, "Invalid request body")
		return
	}
	document, err := h.documents.CreateDocument(c.Request.Context(), userID, request.Title)
	if err != nil {
		h.respondError(c, "documents.create", err)
		return
	}
	c.JSON(http.StatusCreated, newDocumentPayload(document, documents.AccessOwner))
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(messageMissingToken, codeMissingToken))
		return
	}
	owned, err := h.documents.ListDocuments(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "documents.list", err)
		return
	}
	response := make([]documentPayload, 0, len(owned))
	for _, document := range owned {
		response = append(response, newDocumentPayload(document, documents.AccessOwner))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	userID, documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	view, err := h.documents.GetDocument(c.Request.Context(), userID, documentID)
	if err != nil {
		h.respondError(c, "documents.get", hideForbidden(err))
		return
	}
	c.JSON(http.StatusOK, newDocumentPayload(view.Document, view.Access))
}

func (h *httpHandler) handleRenameDocument(c *gin.Context) {
	userID, documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	var request documentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "Invalid request body")
		return
	}
	view, err := h.documents.RenameDocument(c.Request.Context(), userID, documentID, request.Title)
	if err != nil {
		h.respondError(c, "documents.rename", err)
		return
	}
	c.JSON(http.StatusOK, newDocumentPayload(view.Document, view.Access))
}

func (h *httpHandler) handleShareDocument(c *gin.Context) {
	userID, documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "Invalid request body")
		return
	}
	collaborator, err := h.shares.Share(c.Request.Context(), userID, documentID, request.Email, request.Permission)
	if err != nil {
		h.respondError(c, "documents.share", err)
		return
	}
	c.JSON(http.StatusOK, newCollaboratorPayload(collaborator))
}

func (h *httpHandler) handleListCollaborators(c *gin.Context) {
	userID, documentID, ok := h.documentParam(c)
	if !ok {
		return
	}
	collaborators, err := h.documents.ListCollaborators(c.Request.Context(), userID, documentID)
	if err != nil {
		h.respondError(c, "documents.list_collaborators", err)
		return
	}
	response := make([]collaboratorPayload, 0, len(collaborators))
	for _, collaborator := range collaborators {
		response = append(response, newCollaboratorPayload(collaborator))
	}
	c.JSON(http.StatusOK, response)
}

// hideForbidden reports documents the caller cannot read as missing.
func hideForbidden(err error) error {
	if errors.Is(err, documents.ErrForbidden) {
		return documents.ErrDocumentNotFound
	}
	return err
}
