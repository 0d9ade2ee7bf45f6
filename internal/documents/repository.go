package documents

import (
	"context"
	"errors"
	"time"

	"github.com/Iblal/cowrite-server/internal/users"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	fieldDocumentID = "document_id"
	fieldUserID     = "user_id"
	fieldEditorID   = "editor_id"
	fieldEmail      = "email"

	columnStateBlob    = "state_blob"
	columnLastEditorID = "last_editor_id"
	columnUpdatedAt    = "updated_at"
	columnTitle        = "title"
	columnPermission   = "permission"

	queryID            = "id = ?"
	queryOwnerID       = "owner_id = ?"
	queryDocumentID    = "document_id = ?"
	queryDocumentEmail = "document_id = ? AND email = ?"
	orderUpdatedAtDesc = "updated_at DESC, id DESC"
	orderEmailAsc      = "email ASC"
)

// AccessReader is the record-store read port used for access resolution.
type AccessReader interface {
	FindDocument(ctx context.Context, documentID int64) (Document, error)
	FindUser(ctx context.Context, userID int64) (users.User, error)
	FindCollaborator(ctx context.Context, documentID int64, email string) (Collaborator, error)
}

// StateRepository is the record-store port used by SnapshotStore.
type StateRepository interface {
	LoadState(ctx context.Context, documentID int64) ([]byte, error)
	ReplaceState(ctx context.Context, documentID int64, state []byte, editorID int64, at time.Time) error
}

// CollaboratorWriter is the record-store write port used by ShareManager.
type CollaboratorWriter interface {
	FindDocument(ctx context.Context, documentID int64) (Document, error)
	UpsertCollaborator(ctx context.Context, collaborator Collaborator) (Collaborator, error)
}

// Repository is the full record-store surface used by this package.
type Repository interface {
	AccessReader
	StateRepository
	CollaboratorWriter
	CreateDocument(ctx context.Context, document *Document) error
	ListOwnedDocuments(ctx context.Context, ownerID int64) ([]Document, error)
	RenameDocument(ctx context.Context, documentID int64, title string, at time.Time) error
	ListCollaborators(ctx context.Context, documentID int64) ([]Collaborator, error)
}

// GormRepository implements Repository on top of gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps the database handle.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// FindDocument loads the document row, returning ErrDocumentNotFound when absent.
func (r *GormRepository) FindDocument(ctx context.Context, documentID int64) (Document, error) {
	var document Document
	err := r.db.WithContext(ctx).
		Omit(columnStateBlob).
		Where(queryID, documentID).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, persistenceError(err)
	}
	return document, nil
}

// FindUser loads the account row, returning ErrUserNotFound when absent.
func (r *GormRepository) FindUser(ctx context.Context, userID int64) (users.User, error) {
	var user users.User
	err := r.db.WithContext(ctx).Where(queryID, userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, ErrUserNotFound
	}
	if err != nil {
		return users.User{}, persistenceError(err)
	}
	return user, nil
}

// FindCollaborator loads the grant for the exact (document, email) pair,
// returning ErrCollaboratorNotFound when none exists.
func (r *GormRepository) FindCollaborator(ctx context.Context, documentID int64, email string) (Collaborator, error) {
	var collaborator Collaborator
	err := r.db.WithContext(ctx).
		Where(queryDocumentEmail, documentID, email).
		Take(&collaborator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Collaborator{}, ErrCollaboratorNotFound
	}
	if err != nil {
		return Collaborator{}, persistenceError(err)
	}
	return collaborator, nil
}

// LoadState returns the stored blob, or ErrDocumentNotFound.
func (r *GormRepository) LoadState(ctx context.Context, documentID int64) ([]byte, error) {
	var document Document
	err := r.db.WithContext(ctx).
		Select(columnStateBlob).
		Where(queryID, documentID).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, persistenceError(err)
	}
	return document.StateBlob, nil
}

// ReplaceState overwrites the blob in a single statement. A positive editorID
// is written to last_editor_id in the same statement; otherwise the column is
// left untouched.
func (r *GormRepository) ReplaceState(ctx context.Context, documentID int64, state []byte, editorID int64, at time.Time) error {
	updates := map[string]interface{}{
		columnStateBlob: state,
		columnUpdatedAt: at,
	}
	if editorID > 0 {
		updates[columnLastEditorID] = editorID
	}
	result := r.db.WithContext(ctx).
		Model(&Document{}).
		Where(queryID, documentID).
		Updates(updates)
	if result.Error != nil {
		return persistenceError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// UpsertCollaborator inserts the grant or overwrites the permission of an existing one.
func (r *GormRepository) UpsertCollaborator(ctx context.Context, collaborator Collaborator) (Collaborator, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: fieldDocumentID}, {Name: fieldEmail}},
			DoUpdates: clause.AssignmentColumns([]string{columnPermission, columnUpdatedAt}),
		}).
		Create(&collaborator).Error
	if err != nil {
		return Collaborator{}, persistenceError(err)
	}

	var stored Collaborator
	if err := r.db.WithContext(ctx).
		Where(queryDocumentEmail, collaborator.DocumentID, collaborator.Email).
		Take(&stored).Error; err != nil {
		return Collaborator{}, persistenceError(err)
	}
	return stored, nil
}

// CreateDocument inserts the document and populates its identifier.
func (r *GormRepository) CreateDocument(ctx context.Context, document *Document) error {
	if err := r.db.WithContext(ctx).Create(document).Error; err != nil {
		return persistenceError(err)
	}
	return nil
}

// ListOwnedDocuments returns the owner's documents, most recently updated first.
func (r *GormRepository) ListOwnedDocuments(ctx context.Context, ownerID int64) ([]Document, error) {
	var documents []Document
	if err := r.db.WithContext(ctx).
		Omit(columnStateBlob).
		Where(queryOwnerID, ownerID).
		Order(orderUpdatedAtDesc).
		Find(&documents).Error; err != nil {
		return nil, persistenceError(err)
	}
	return documents, nil
}

// RenameDocument updates the title, returning ErrDocumentNotFound when absent.
func (r *GormRepository) RenameDocument(ctx context.Context, documentID int64, title string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Document{}).
		Where(queryID, documentID).
		Updates(map[string]interface{}{columnTitle: title, columnUpdatedAt: at})
	if result.Error != nil {
		return persistenceError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// ListCollaborators returns the document's grants ordered by email.
func (r *GormRepository) ListCollaborators(ctx context.Context, documentID int64) ([]Collaborator, error) {
	var collaborators []Collaborator
	if err := r.db.WithContext(ctx).
		Where(queryDocumentID, documentID).
		Order(orderEmailAsc).
		Find(&collaborators).Error; err != nil {
		return nil, persistenceError(err)
	}
	return collaborators, nil
}
