package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Iblal/cowrite-server/internal/users"
	"go.uber.org/zap"
)

const opShare = "documents.share"

// ShareManager grants collaborators access to documents on behalf of their owners.
type ShareManager struct {
	repository CollaboratorWriter
	clock      func() time.Time
	logger     *zap.Logger
}

// NewShareManager constructs a ShareManager over the write port.
func NewShareManager(repository CollaboratorWriter, clock func() time.Time, logger *zap.Logger) (*ShareManager, error) {
	if repository == nil {
		return nil, newServiceError(opShare, "missing_repository", errMissingRepository)
	}
	if clock == nil {
		clock = time.Now
	}
	return &ShareManager{repository: repository, clock: clock, logger: loggerOrDefault(logger)}, nil
}

// Share upserts the (document, email) grant with the given permission.
// Callers other than the owner get ErrForbidden whether or not the document
// exists, so the response never reveals existence to non-owners.
func (m *ShareManager) Share(ctx context.Context, ownerUserID, documentID int64, email, permission string) (Collaborator, error) {
	document, err := m.repository.FindDocument(ctx, documentID)
	if errors.Is(err, ErrDocumentNotFound) {
		return Collaborator{}, newServiceError(opShare, "forbidden", ErrForbidden)
	}
	if err != nil {
		logError(m.logger, opShare, "document_lookup_failed", err, zap.Int64(fieldDocumentID, documentID))
		return Collaborator{}, newServiceError(opShare, "document_lookup_failed", err)
	}
	if document.OwnerID != ownerUserID {
		return Collaborator{}, newServiceError(opShare, "forbidden", ErrForbidden)
	}

	parsedPermission, err := ParsePermission(permission)
	if err != nil {
		return Collaborator{}, newServiceError(opShare, "invalid_permission", err)
	}
	normalizedEmail := users.NormalizeEmail(email)
	if normalizedEmail == "" {
		return Collaborator{}, newServiceError(opShare, "invalid_email", fmt.Errorf("%w: empty", ErrInvalidEmail))
	}

	now := m.clock().UTC()
	collaborator, err := m.repository.UpsertCollaborator(ctx, Collaborator{
		DocumentID: documentID,
		Email:      normalizedEmail,
		Permission: parsedPermission,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		logError(m.logger, opShare, "upsert_failed", err, zap.Int64(fieldDocumentID, documentID))
		return Collaborator{}, newServiceError(opShare, "upsert_failed", err)
	}

	m.logger.Info("document shared",
		zap.Int64(fieldDocumentID, documentID),
		zap.String("permission", string(collaborator.Permission)))
	return collaborator, nil
}
