package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/ccpro/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the document store file inside the base directory.
const FileName = "ccpro.db"

// Init initializes the SQLite document store at baseDir/ccpro.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.ccpro.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Catalog exports land here by default
	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: document store
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS documents (
		  collection  TEXT NOT NULL,
		  id          TEXT NOT NULL,
		  scope       TEXT NOT NULL DEFAULT '',
		  title_norm  TEXT NOT NULL DEFAULT '',
		  body        TEXT NOT NULL,
		  created_at  INTEGER NOT NULL,
		  updated_at  INTEGER NOT NULL,
		  PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_scope_created
		ON documents(collection, scope, created_at DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_documents_scope_updated
		ON documents(collection, scope, updated_at DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_documents_scope_title
		ON documents(collection, scope, title_norm, id);

		CREATE TABLE IF NOT EXISTS document_keywords (
		  collection  TEXT NOT NULL,
		  doc_id      TEXT NOT NULL,
		  keyword     TEXT NOT NULL,
		  PRIMARY KEY (collection, doc_id, keyword)
		);

		CREATE INDEX IF NOT EXISTS idx_document_keywords_lookup
		ON document_keywords(collection, keyword, doc_id);

		CREATE TABLE IF NOT EXISTS keyword_indexes (
		  collection  TEXT NOT NULL,
		  sort_field  TEXT NOT NULL,
		  PRIMARY KEY (collection, sort_field)
		);

		INSERT OR IGNORE INTO keyword_indexes (collection, sort_field) VALUES
		  ('promotions', 'createdAt'),
		  ('notes', 'createdAt'),
		  ('notes', 'updatedAt');
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
