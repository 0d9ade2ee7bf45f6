package users

import (
	"strings"
	"time"
)

// User is a registered account. Email is unique and matched exactly.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null"`
	DisplayName  string    `gorm:"column:display_name;size:320;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// NormalizeEmail trims surrounding whitespace. Case is preserved because
// collaborator resolution compares emails exactly.
func NormalizeEmail(value string) string {
	return strings.TrimSpace(value)
}
