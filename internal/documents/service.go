package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	opServiceNew          = "documents.service.new"
	opCreateDocument      = "documents.create"
	opListDocuments       = "documents.list"
	opGetDocument         = "documents.get"
	opRenameDocument      = "documents.rename"
	opListCollaborators   = "documents.list_collaborators"
	defaultDocumentTitle  = "Untitled Document"
	maxDocumentTitleRunes = 512
)

// ServiceConfig describes the dependencies of the document metadata surface.
type ServiceConfig struct {
	Repository Repository
	Access     *AccessResolver
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service implements create, list, get and rename for document metadata.
type Service struct {
	repository Repository
	access     *AccessResolver
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the metadata service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository)
	}
	access := cfg.Access
	if access == nil {
		resolver, err := NewAccessResolver(cfg.Repository, cfg.Logger)
		if err != nil {
			return nil, err
		}
		access = resolver
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repository: cfg.Repository,
		access:     access,
		clock:      clock,
		logger:     loggerOrDefault(cfg.Logger),
	}, nil
}

// CreateDocument creates an empty document owned by the caller.
func (s *Service) CreateDocument(ctx context.Context, ownerID int64, title string) (Document, error) {
	normalizedTitle := strings.TrimSpace(title)
	if normalizedTitle == "" {
		normalizedTitle = defaultDocumentTitle
	}
	if utf8.RuneCountInString(normalizedTitle) > maxDocumentTitleRunes {
		return Document{}, newServiceError(opCreateDocument, "invalid_title",
			fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxDocumentTitleRunes))
	}

	now := s.clock().UTC()
	document := Document{
		Title:     normalizedTitle,
		OwnerID:   ownerID,
		StateBlob: []byte{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.CreateDocument(ctx, &document); err != nil {
		logError(s.logger, opCreateDocument, "insert_failed", err, zap.Int64(fieldUserID, ownerID))
		return Document{}, newServiceError(opCreateDocument, "insert_failed", err)
	}
	return document, nil
}

// ListDocuments returns the caller's owned documents, most recently updated first.
func (s *Service) ListDocuments(ctx context.Context, ownerID int64) ([]Document, error) {
	documents, err := s.repository.ListOwnedDocuments(ctx, ownerID)
	if err != nil {
		logError(s.logger, opListDocuments, "query_failed", err, zap.Int64(fieldUserID, ownerID))
		return nil, newServiceError(opListDocuments, "query_failed", err)
	}
	return documents, nil
}

// GetDocument returns the document annotated with the caller's access level.
func (s *Service) GetDocument(ctx context.Context, userID, documentID int64) (DocumentView, error) {
	level, err := s.access.Resolve(ctx, userID, documentID)
	if err != nil {
		return DocumentView{}, err
	}
	document, err := s.repository.FindDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return DocumentView{}, newServiceError(opGetDocument, "document_not_found", err)
		}
		logError(s.logger, opGetDocument, "query_failed", err, zap.Int64(fieldDocumentID, documentID))
		return DocumentView{}, newServiceError(opGetDocument, "query_failed", err)
	}
	return DocumentView{Document: document, Access: level}, nil
}

// ResolveAccess exposes the caller's access level on the document.
func (s *Service) ResolveAccess(ctx context.Context, userID, documentID int64) (AccessLevel, error) {
	return s.access.Resolve(ctx, userID, documentID)
}

// RenameDocument changes the title for callers with write access or above.
func (s *Service) RenameDocument(ctx context.Context, userID, documentID int64, title string) (DocumentView, error) {
	normalizedTitle := strings.TrimSpace(title)
	if normalizedTitle == "" {
		return DocumentView{}, newServiceError(opRenameDocument, "invalid_title", fmt.Errorf("%w: empty", ErrInvalidTitle))
	}
	if utf8.RuneCountInString(normalizedTitle) > maxDocumentTitleRunes {
		return DocumentView{}, newServiceError(opRenameDocument, "invalid_title",
			fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxDocumentTitleRunes))
	}

	level, err := s.access.Resolve(ctx, userID, documentID)
	if err != nil {
		return DocumentView{}, err
	}
	if !level.Allows(AccessWrite) {
		return DocumentView{}, newServiceError(opRenameDocument, "forbidden", ErrForbidden)
	}

	if err := s.repository.RenameDocument(ctx, documentID, normalizedTitle, s.clock().UTC()); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return DocumentView{}, newServiceError(opRenameDocument, "document_not_found", err)
		}
		logError(s.logger, opRenameDocument, "update_failed", err, zap.Int64(fieldDocumentID, documentID))
		return DocumentView{}, newServiceError(opRenameDocument, "update_failed", err)
	}
	return s.GetDocument(ctx, userID, documentID)
}

// ListCollaborators returns the document's grants. Only the owner may list
// them; everyone else gets ErrForbidden whether or not the document exists.
func (s *Service) ListCollaborators(ctx context.Context, ownerID, documentID int64) ([]Collaborator, error) {
	document, err := s.repository.FindDocument(ctx, documentID)
	if errors.Is(err, ErrDocumentNotFound) || (err == nil && document.OwnerID != ownerID) {
		return nil, newServiceError(opListCollaborators, "forbidden", ErrForbidden)
	}
	if err != nil {
		logError(s.logger, opListCollaborators, "document_lookup_failed", err, zap.Int64(fieldDocumentID, documentID))
		return nil, newServiceError(opListCollaborators, "document_lookup_failed", err)
	}

	collaborators, err := s.repository.ListCollaborators(ctx, documentID)
	if err != nil {
		logError(s.logger, opListCollaborators, "query_failed", err, zap.Int64(fieldDocumentID, documentID))
		return nil, newServiceError(opListCollaborators, "query_failed", err)
	}
	return collaborators, nil
}
