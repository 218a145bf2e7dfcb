// Package db provides the local durable store backing offline operation.
//
// Each collection is a SQLite table holding JSON documents keyed by id, with
// secondary lookup served by json_extract expression indexes. SQLite is
// opened through modernc.org/sqlite (pure Go, no CGO) in WAL mode with a
// single writer, which matches the one-logical-worker model of the sync core.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/warungkita/possync/internal/errors"
)

const dbFileName = "possync.db"

// Store is the schema-versioned local database. All five collections live in
// one SQLite file; callers go through the per-collection operations and never
// touch the underlying handle.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the local store under dataDir and brings the schema
// up to date. Open is idempotent: re-opening an already-migrated database is
// a no-op beyond the version check.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to open database", err)
	}

	// SQLite supports a single writer; serialize access at the pool level.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to enable WAL mode", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to set busy timeout", err)
	}

	migrator := NewMigrator(db)
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
