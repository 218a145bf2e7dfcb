// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/warungkita/possync/internal/errors"
)

// migration is a single schema step. Migrations are embedded in the binary:
// the store ships inside an installable app, there is no migrations directory
// to read at run time.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial_collections",
		SQL: `
CREATE TABLE IF NOT EXISTS pending_sales (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_inventory (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_queue (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS conflicts (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cache (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);`,
	},
	{
		Version:     2,
		Description: "secondary_indexes",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_pending_sales_status ON pending_sales (json_extract(data, '$.syncStatus'));
CREATE INDEX IF NOT EXISTS idx_pending_inventory_status ON pending_inventory (json_extract(data, '$.syncStatus'));
CREATE INDEX IF NOT EXISTS idx_pending_inventory_product ON pending_inventory (json_extract(data, '$.productId'));
CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue (json_extract(data, '$.status'));
CREATE INDEX IF NOT EXISTS idx_sync_queue_type ON sync_queue (json_extract(data, '$.type'));
CREATE INDEX IF NOT EXISTS idx_conflicts_entity ON conflicts (json_extract(data, '$.entityId'));
CREATE INDEX IF NOT EXISTS idx_cache_type ON cache (json_extract(data, '$.type'));`,
	},
}

// Migrator applies embedded schema migrations in version order.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version, 0 for a fresh database.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations table", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(mig); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to apply migration V%d (%s)", mig.Version, mig.Description), err)
		}
	}

	return nil
}

// apply runs a single migration inside a transaction and records it.
func (m *Migrator) apply(mig migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	hash := sha256.Sum256([]byte(mig.SQL))
	checksum := hex.EncodeToString(hash[:])

	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, mig.Version, time.Now().Unix(), mig.Description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
