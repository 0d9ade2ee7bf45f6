package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Iblal/cowrite-server/internal/auth"
	"github.com/Iblal/cowrite-server/internal/collab"
	"github.com/Iblal/cowrite-server/internal/documents"
	"github.com/Iblal/cowrite-server/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey      = "cowrite_user_id"
	accessTokenQueryParam = "access_token"
)

var (
	errMissingVerifier        = errors.New("credential verifier dependency required")
	errMissingTokenIssuer     = errors.New("token issuer dependency required")
	errMissingAccountService  = errors.New("account service dependency required")
	errMissingDocumentService = errors.New("document service dependency required")
	errMissingShareService    = errors.New("share service dependency required")
	errMissingSessionService  = errors.New("session service dependency required")
)

type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type TokenIssuer interface {
	Issue(userID int64) (string, int64, error)
}

type AccountService interface {
	Register(ctx context.Context, email, password, displayName string) (users.User, error)
	Authenticate(ctx context.Context, email, password string) (users.User, error)
}

type DocumentService interface {
	CreateDocument(ctx context.Context, ownerID int64, title string) (documents.Document, error)
	ListDocuments(ctx context.Context, ownerID int64) ([]documents.Document, error)
	GetDocument(ctx context.Context, userID, documentID int64) (documents.DocumentView, error)
	RenameDocument(ctx context.Context, userID, documentID int64, title string) (documents.DocumentView, error)
	ListCollaborators(ctx context.Context, ownerID, documentID int64) ([]documents.Collaborator, error)
}

type ShareService interface {
	Share(ctx context.Context, ownerUserID, documentID int64, email, permission string) (documents.Collaborator, error)
}

type SessionService interface {
	Open(ctx context.Context, request collab.AdmissionRequest) (collab.OpenedSession, error)
	Checkpoint(ctx context.Context, sessionID string, callerID int64, state []byte) (documents.StoreResult, error)
	Close(ctx context.Context, sessionID string, callerID int64, finalState []byte, hasFinalState bool) (documents.StoreResult, error)
}

type Dependencies struct {
	Verifier       TokenVerifier
	Tokens         TokenIssuer
	Accounts       AccountService
	Documents      DocumentService
	Shares         ShareService
	Sessions       SessionService
	SaveFeed       *SaveFeed
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Accounts == nil {
		return nil, errMissingAccountService
	}
	if deps.Documents == nil {
		return nil, errMissingDocumentService
	}
	if deps.Shares == nil {
		return nil, errMissingShareService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	feed := deps.SaveFeed
	if feed == nil {
		feed = NewSaveFeed(SaveFeedConfig{Logger: logger})
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		verifier:  deps.Verifier,
		tokens:    deps.Tokens,
		accounts:  deps.Accounts,
		documents: deps.Documents,
		shares:    deps.Shares,
		sessions:  deps.Sessions,
		feed:      feed,
		logger:    logger,
	}

	router.GET("/health", handler.handleHealth)
	router.POST("/api/auth/register", handler.handleRegister)
	router.POST("/api/auth/login", handler.handleLogin)

	// The engine presents the client's token in the request body on open and
	// as a bearer token afterwards.
	router.POST("/collaboration/sessions", handler.handleOpenSession)
	sessions := router.Group("/collaboration/sessions/:id")
	sessions.Use(handler.authorizeRequest)
	sessions.PUT("/state", handler.handleCheckpoint)
	sessions.DELETE("", handler.handleCloseSession)

	protected := router.Group("/api/documents")
	protected.Use(handler.authorizeRequest)
	protected.POST("", handler.handleCreateDocument)
	protected.GET("", handler.handleListDocuments)
	protected.GET("/:id", handler.handleGetDocument)
	protected.PATCH("/:id", handler.handleRenameDocument)
	protected.POST("/:id/share", handler.handleShareDocument)
	protected.GET("/:id/share", handler.handleListCollaborators)
	protected.GET("/:id/events", handler.handleDocumentEvents)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	verifier  TokenVerifier
	tokens    TokenIssuer
	accounts  AccountService
	documents DocumentService
	shares    ShareService
	sessions  SessionService
	feed      *SaveFeed
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeRequest accepts the bearer header, or the access_token query
// parameter for event streams opened by browsers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := h.bearerOrQueryToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(messageMissingToken, codeMissingToken))
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody(messageInvalidToken, codeInvalidToken))
		return
	}
	c.Set(userIDContextKey, identity.UserID)
	c.Next()
}

func callerID(c *gin.Context) (int64, bool) {
	userID := c.GetInt64(userIDContextKey)
	return userID, userID > 0
}

func (h *httpHandler) bearerOrQueryToken(c *gin.Context) string {
	if token := auth.BearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return c.Query(accessTokenQueryParam)
}
