package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// Open connects to PostgreSQL, or to SQLite when the DSN starts with "sqlite:" (local development).
func Open(dsn string) (*gorm.DB, error) {
	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		db, err := gorm.Open(sqlite.Open(path), gormConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite serializes writers; one connection keeps in-memory databases shared.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	return ConnectPostgres(dsn)
}

// Migrate creates or updates the ledger schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
