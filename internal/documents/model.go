package documents

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AccessLevel is a caller's capability on a document, ordered so that a
// higher level includes every capability of the lower ones.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessOwner
)

// String returns the wire name of the access level.
func (level AccessLevel) String() string {
	switch level {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessOwner:
		return "owner"
	default:
		return "none"
	}
}

// Allows reports whether the level grants at least the required capability.
func (level AccessLevel) Allows(required AccessLevel) bool {
	return level >= required
}

// Permission is the level stored for a collaborator.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// ParsePermission accepts exactly "read" or "write" after trimming whitespace.
func ParsePermission(raw string) (Permission, error) {
	switch Permission(strings.TrimSpace(raw)) {
	case PermissionRead:
		return PermissionRead, nil
	case PermissionWrite:
		return PermissionWrite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, raw)
	}
}

// AccessLevel maps the stored permission onto the access ordering.
func (permission Permission) AccessLevel() AccessLevel {
	switch permission {
	case PermissionRead:
		return AccessRead
	case PermissionWrite:
		return AccessWrite
	default:
		return AccessNone
	}
}

// Document is the persisted document row. StateBlob is the engine's opaque
// snapshot; empty means the document has never been edited.
type Document struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title        string    `gorm:"column:title;size:512;not null"`
	OwnerID      int64     `gorm:"column:owner_id;not null;index:idx_documents_owner_updated,priority:1"`
	StateBlob    []byte    `gorm:"column:state_blob"`
	LastEditorID *int64    `gorm:"column:last_editor_id"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;index:idx_documents_owner_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// Collaborator grants a non-owner access to a document. It is keyed by email so
// that a share can exist before the invitee registers.
type Collaborator struct {
	DocumentID int64      `gorm:"column:document_id;primaryKey;autoIncrement:false"`
	Email      string     `gorm:"column:email;primaryKey;size:320"`
	Permission Permission `gorm:"column:permission;size:16;not null;check:chk_collaborators_permission,permission IN ('read','write')"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "collaborators"
}

// DocumentView is a document annotated with the caller's access level.
type DocumentView struct {
	Document Document
	Access   AccessLevel
}

var errInvalidDocumentLabel = errors.New("documents: document label is not a positive integer")

// ParseDocumentLabel converts the transport's document label into an id.
func ParseDocumentLabel(label string) (int64, error) {
	documentID, err := strconv.ParseInt(strings.TrimSpace(label), 10, 64)
	if err != nil || documentID <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidDocumentLabel, label)
	}
	return documentID, nil
}
