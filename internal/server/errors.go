package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Iblal/cowrite-server/internal/auth"
	"github.com/Iblal/cowrite-server/internal/collab"
	"github.com/Iblal/cowrite-server/internal/documents"
	"github.com/Iblal/cowrite-server/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	messageMissingToken = "Missing token"
	messageInvalidToken = "Invalid token"

	codeMissingToken    = "auth.missing_token"
	codeInvalidToken    = "auth.invalid_token"
	codeInvalidRequest  = "request.invalid"
	codeInvalidDocument = "request.invalid_document_id"
	codeInternal        = "internal"
)

type codedError interface {
	Code() string
}

func errorBody(message, code string) gin.H {
	return gin.H{"error": message, "code": code}
}

func (h *httpHandler) respondInvalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody(message, codeInvalidRequest))
}

// respondError maps domain errors onto status codes. Unrecognized errors are
// logged and surfaced as 500 without their message.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status, message := classifyError(err)
	code := errorCode(err, status)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", code),
			zap.Error(err))
	}
	c.JSON(status, errorBody(message, code))
}

func classifyError(err error) (int, string) {
	var admissionErr *collab.AdmissionError
	if errors.As(err, &admissionErr) {
		return admissionStatus(admissionErr), admissionErr.Reason
	}
	switch {
	case errors.Is(err, users.ErrMissingCredentials):
		return http.StatusBadRequest, "Email and password are required"
	case errors.Is(err, users.ErrEmailTaken):
		return http.StatusConflict, "Email already in use"
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, documents.ErrInvalidTitle),
		errors.Is(err, documents.ErrInvalidPermission),
		errors.Is(err, documents.ErrInvalidEmail):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, documents.ErrDocumentNotFound):
		return http.StatusNotFound, "Document not found"
	case errors.Is(err, documents.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, documents.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, collab.ErrUnknownSession):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, collab.ErrReadOnlySession):
		return http.StatusForbidden, "Session is read-only"
	case errors.Is(err, collab.ErrSessionForbidden):
		return http.StatusForbidden, "Session belongs to another user"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func admissionStatus(err *collab.AdmissionError) int {
	switch err.Reason {
	case collab.ReasonInvalidToken:
		return http.StatusForbidden
	case collab.ReasonNotAuthorized:
		if errors.Is(err, auth.ErrMissingToken) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case collab.ReasonDocumentNotFound, collab.ReasonUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, documents.ErrInvalidTitle):
		return "Invalid title"
	case errors.Is(err, documents.ErrInvalidPermission):
		return "Permission must be read or write"
	default:
		return "Email is required"
	}
}

func errorCode(err error, status int) string {
	var coded codedError
	if errors.As(err, &coded) && coded.Code() != "" {
		return coded.Code()
	}
	var admissionErr *collab.AdmissionError
	if errors.As(err, &admissionErr) {
		return "collab.admission." + strings.ReplaceAll(admissionErr.Reason, " ", "_")
	}
	switch {
	case errors.Is(err, users.ErrMissingCredentials):
		return "users.missing_credentials"
	case errors.Is(err, users.ErrEmailTaken):
		return "users.email_taken"
	case errors.Is(err, users.ErrInvalidCredentials):
		return "users.invalid_credentials"
	case errors.Is(err, documents.ErrDocumentNotFound):
		return "documents.not_found"
	case errors.Is(err, collab.ErrUnknownSession):
		return "collab.unknown_session"
	case errors.Is(err, collab.ErrReadOnlySession):
		return "collab.read_only_session"
	case errors.Is(err, collab.ErrSessionForbidden):
		return "collab.session_forbidden"
	}
	if status >= http.StatusInternalServerError {
		return codeInternal
	}
	return ""
}
