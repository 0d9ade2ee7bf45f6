package documents

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrDocumentNotFound indicates that no document exists for the identifier.
	ErrDocumentNotFound = errors.New("documents: document not found")
	// ErrUserNotFound indicates that an authenticated identity has no account.
	ErrUserNotFound = errors.New("documents: user not found")
	// ErrCollaboratorNotFound indicates that no grant exists for the (document, email) pair.
	ErrCollaboratorNotFound = errors.New("documents: collaborator not found")
	// ErrForbidden indicates that the caller lacks the required access.
	ErrForbidden = errors.New("documents: forbidden")
	// ErrInvalidPermission indicates a collaborator permission other than read or write.
	ErrInvalidPermission = errors.New("documents: invalid permission")
	// ErrInvalidEmail indicates that a collaborator email is blank.
	ErrInvalidEmail = errors.New("documents: invalid email")
	// ErrInvalidTitle indicates that a document title is blank or too long.
	ErrInvalidTitle = errors.New("documents: invalid title")
	// ErrPersistence wraps record store failures.
	ErrPersistence = errors.New("documents: persistence failure")

	errMissingRepository = errors.New("documents: repository is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable dotted code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func persistenceError(cause error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, cause)
}

func loggerOrDefault(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return noOpLogger
	}
	return logger
}

func logError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	loggerOrDefault(logger).Error("documents service error", attrs...)
}
