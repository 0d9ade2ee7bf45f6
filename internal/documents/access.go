package documents

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const opResolveAccess = "documents.resolve_access"

// AccessResolver determines a user's access level on a document from the
// owner column and the email-keyed collaborator grants.
type AccessResolver struct {
	reader AccessReader
	logger *zap.Logger
}

// NewAccessResolver constructs a resolver over the read port.
func NewAccessResolver(reader AccessReader, logger *zap.Logger) (*AccessResolver, error) {
	if reader == nil {
		return nil, newServiceError(opResolveAccess, "missing_repository", errMissingRepository)
	}
	return &AccessResolver{reader: reader, logger: loggerOrDefault(logger)}, nil
}

// Resolve returns AccessOwner, AccessWrite or AccessRead. Failures wrap
// ErrDocumentNotFound, ErrUserNotFound, ErrForbidden or ErrPersistence.
// The owner check happens before the user lookup, so an owner is resolved
// without touching the user or collaborator tables.
func (r *AccessResolver) Resolve(ctx context.Context, userID, documentID int64) (AccessLevel, error) {
	document, err := r.reader.FindDocument(ctx, documentID)
	if err != nil {
		return AccessNone, r.fail("document_lookup_failed", err, userID, documentID)
	}
	if document.OwnerID == userID {
		return AccessOwner, nil
	}

	user, err := r.reader.FindUser(ctx, userID)
	if err != nil {
		return AccessNone, r.fail("user_lookup_failed", err, userID, documentID)
	}

	collaborator, err := r.reader.FindCollaborator(ctx, documentID, user.Email)
	if errors.Is(err, ErrCollaboratorNotFound) {
		return AccessNone, newServiceError(opResolveAccess, "forbidden", ErrForbidden)
	}
	if err != nil {
		return AccessNone, r.fail("collaborator_lookup_failed", err, userID, documentID)
	}

	level := collaborator.Permission.AccessLevel()
	if level == AccessNone {
		// Invalid rows are rejected at write time; one that slipped through grants nothing.
		r.logger.Warn("collaborator row carries invalid permission",
			zap.Int64(fieldDocumentID, documentID),
			zap.String("permission", string(collaborator.Permission)))
		return AccessNone, newServiceError(opResolveAccess, "forbidden", ErrForbidden)
	}
	return level, nil
}

func (r *AccessResolver) fail(reason string, err error, userID, documentID int64) error {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return newServiceError(opResolveAccess, "document_not_found", err)
	case errors.Is(err, ErrUserNotFound):
		return newServiceError(opResolveAccess, "user_not_found", err)
	default:
		logError(r.logger, opResolveAccess, reason, err,
			zap.Int64(fieldUserID, userID),
			zap.Int64(fieldDocumentID, documentID))
		return newServiceError(opResolveAccess, reason, err)
	}
}
