package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/logging"
)

// Collection names the five record collections of the local store.
type Collection string

const (
	CollectionPendingSales     Collection = "pending_sales"
	CollectionPendingInventory Collection = "pending_inventory"
	CollectionSyncQueue        Collection = "sync_queue"
	CollectionConflicts        Collection = "conflicts"
	CollectionCache            Collection = "cache"
)

// Collections lists every collection, used by destructive resets.
var Collections = []Collection{
	CollectionPendingSales,
	CollectionPendingInventory,
	CollectionSyncQueue,
	CollectionConflicts,
	CollectionCache,
}

// collectionIndexes maps each collection's named secondary indexes to the
// json_extract path they cover. Paths here must match the expression indexes
// created by the secondary_indexes migration, or lookups degrade to scans.
var collectionIndexes = map[Collection]map[string]string{
	CollectionPendingSales: {
		"syncStatus": "$.syncStatus",
	},
	CollectionPendingInventory: {
		"syncStatus": "$.syncStatus",
		"productId":  "$.productId",
	},
	CollectionSyncQueue: {
		"status": "$.status",
		"type":   "$.type",
	},
	CollectionConflicts: {
		"entityId": "$.entityId",
	},
	CollectionCache: {
		"type": "$.type",
	},
}

func (s *Store) checkCollection(col Collection) error {
	if _, ok := collectionIndexes[col]; !ok {
		return apperrors.Newf(apperrors.ErrUnknownCollection, "no collection named %q", col)
	}
	return nil
}

// Insert stores a new record. It fails with DUPLICATE_KEY if the key already
// exists; silent overwrites would mask id-generation bugs.
func (s *Store) Insert(ctx context.Context, col Collection, key string, record interface{}) error {
	if err := s.checkCollection(col); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?)", col)
	if _, err := s.db.ExecContext(ctx, query, key, string(data)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return apperrors.Wrap(apperrors.ErrDuplicateKey,
				fmt.Sprintf("key %q already exists in %s", key, col), err)
		}
		return fmt.Errorf("insert into %s: %w", col, err)
	}

	return nil
}

// Upsert stores a record, replacing any existing record with the same key.
func (s *Store) Upsert(ctx context.Context, col Collection, key string, record interface{}) error {
	if err := s.checkCollection(col); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data", col)
	if _, err := s.db.ExecContext(ctx, query, key, string(data)); err != nil {
		return fmt.Errorf("upsert into %s: %w", col, err)
	}

	return nil
}

// GetByKey fetches one record by primary key. A missing record is reported
// through the bool, not an error.
func (s *Store) GetByKey(ctx context.Context, col Collection, key string) ([]byte, bool, error) {
	if err := s.checkCollection(col); err != nil {
		return nil, false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", col)

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q from %s: %w", key, col, err)
	}

	return data, true, nil
}

// GetAll returns every record in the collection, unordered.
func (s *Store) GetAll(ctx context.Context, col Collection) ([][]byte, error) {
	if err := s.checkCollection(col); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s", col)
	return s.queryData(ctx, query)
}

// GetByIndex returns all records whose indexed field equals value, unordered.
func (s *Store) GetByIndex(ctx context.Context, col Collection, indexName string, value interface{}) ([][]byte, error) {
	if err := s.checkCollection(col); err != nil {
		return nil, err
	}

	path, ok := collectionIndexes[col][indexName]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownIndex, "collection %s has no index %q", col, indexName)
	}

	// The path is inlined rather than bound so the query matches the
	// expression index; paths come from the static registry above.
	query := fmt.Sprintf("SELECT data FROM %s WHERE json_extract(data, '%s') = ?", col, path)
	return s.queryData(ctx, query, value)
}

// Remove deletes a record by key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, col Collection, key string) error {
	if err := s.checkCollection(col); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", col)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("remove %q from %s: %w", key, col, err)
	}

	return nil
}

// Count returns the number of records in the collection. Counts are advisory:
// on any error the result is 0, never a failure.
func (s *Store) Count(ctx context.Context, col Collection) int {
	if err := s.checkCollection(col); err != nil {
		return 0
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", col)

	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		logging.Debug("count failed", map[string]interface{}{
			"collection": string(col),
			"error":      err.Error(),
		})
		return 0
	}

	return count
}

// CountByIndex returns the number of records whose indexed field equals
// value, with the same advisory semantics as Count.
func (s *Store) CountByIndex(ctx context.Context, col Collection, indexName string, value interface{}) int {
	if err := s.checkCollection(col); err != nil {
		return 0
	}

	path, ok := collectionIndexes[col][indexName]
	if !ok {
		return 0
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE json_extract(data, '%s') = ?", col, path)

	var count int
	if err := s.db.QueryRowContext(ctx, query, value).Scan(&count); err != nil {
		logging.Debug("count by index failed", map[string]interface{}{
			"collection": string(col),
			"index":      indexName,
			"error":      err.Error(),
		})
		return 0
	}

	return count
}

// Clear removes all records in the collection.
func (s *Store) Clear(ctx context.Context, col Collection) error {
	if err := s.checkCollection(col); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s", col)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("clear %s: %w", col, err)
	}

	return nil
}

func (s *Store) queryData(ctx context.Context, query string, args ...interface{}) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		results = append(results, data)
	}

	return results, rows.Err()
}
