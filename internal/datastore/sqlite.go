package datastore

import (
	"fmt"

	"github.com/leadboard/leadboard-go/internal/conf"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	if path == "" {
		return fmt.Errorf("sqlite path is not configured")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Composite upserts rely on foreign key semantics being consistent
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", path)
}

func (store *SQLiteStore) Close() error {
	// Handle close specific to SQLite
	return nil
}
