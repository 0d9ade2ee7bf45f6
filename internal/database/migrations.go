package database

import (
	"errors"
	"time"

	"github.com/Iblal/cowrite-server/internal/documents"
	"github.com/Iblal/cowrite-server/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDropInvalidCollaboratorPermissions = "2026-10-01_drop_invalid_collaborator_permissions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

// migrateSchema runs the named data migrations before AutoMigrate so that
// constraints added to existing tables never meet rows that violate them.
func migrateSchema(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&migrationRecord{}); err != nil {
		return err
	}
	if err := applyMigrations(db, logger); err != nil {
		return err
	}
	return db.AutoMigrate(&users.User{}, &documents.Document{}, &documents.Collaborator{})
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDropInvalidCollaboratorPermissions, apply: dropInvalidCollaboratorPermissions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func dropInvalidCollaboratorPermissions(db *gorm.DB) error {
	if !db.Migrator().HasTable(&documents.Collaborator{}) {
		return nil
	}
	valid := []string{string(documents.PermissionRead), string(documents.PermissionWrite)}
	return db.Where("permission NOT IN ?", valid).Delete(&documents.Collaborator{}).Error
}
