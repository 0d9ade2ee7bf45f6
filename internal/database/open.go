package database

import (
	"fmt"

	"github.com/Iblal/cowrite-server/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open selects the record store named by the configuration.
func Open(cfg config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	switch cfg.DatabaseDriver {
	case config.DatabaseDriverSQLite:
		return OpenSQLite(cfg.DatabasePath, logger)
	case config.DatabaseDriverPostgres:
		return OpenPostgres(cfg.DatabaseDSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
