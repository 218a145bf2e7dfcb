// Package offline provides the business-logic layer over the local store.
//
// The service is the sole writer of record semantics: id generation,
// timestamps and status transitions all happen here. The UI layer and the
// sync runner both go through it, never through the store directly.
package offline

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/warungkita/possync/internal/db"
	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/logging"
	"github.com/warungkita/possync/internal/models"
	"github.com/warungkita/possync/internal/uuid"
)

// LastSyncTimeKey is the cache key holding the last successful sync time.
const LastSyncTimeKey = "lastSyncTime"

const (
	// DefaultCacheTTL applies when callers don't care about freshness.
	DefaultCacheTTL = 24 * time.Hour

	// lastSyncTTL keeps the last-sync marker around for a week.
	lastSyncTTL = 7 * 24 * time.Hour

	// queueRetention is how long completed/failed queue items linger
	// before cleanup removes them.
	queueRetention = 24 * time.Hour
)

// Service imposes business semantics on the raw store.
type Service struct {
	store *db.Store
	now   func() time.Time
}

// NewService creates a Service over an opened store.
func NewService(store *db.Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

// =====================================================
// Pending sales
// =====================================================

// StorePendingSale persists a sale captured offline and enqueues it for sync
// at high priority. The stored record is returned so the UI can show the
// local id immediately.
func (s *Service) StorePendingSale(ctx context.Context, payload map[string]interface{}) (*models.PendingSale, error) {
	sale := &models.PendingSale{
		ID:             uuid.NewOfflineID(),
		Payload:        payload,
		Timestamp:      s.nowMillis(),
		SyncStatus:     models.SyncStatePending,
		CreatedOffline: true,
		Attempts:       0,
	}

	if err := s.store.Insert(ctx, db.CollectionPendingSales, sale.ID, sale); err != nil {
		return nil, err
	}

	// The queue entry is a priority hint, not the source of truth; a failed
	// enqueue leaves an orphan that the status scan still discovers.
	if _, err := s.AddToSyncQueue(ctx, models.QueueTypeSales, sale.ID, models.PriorityHigh); err != nil {
		logging.Warn("failed to enqueue pending sale", map[string]interface{}{
			"entity_id": sale.ID,
			"error":     err.Error(),
		})
	}

	logging.Info("pending sale stored", map[string]interface{}{"entity_id": sale.ID})

	return sale, nil
}

// GetPendingSales returns all sales still waiting to be synced. This scan,
// not the queue, is the authoritative work list for the sync runner.
func (s *Service) GetPendingSales(ctx context.Context) ([]*models.PendingSale, error) {
	rows, err := s.store.GetByIndex(ctx, db.CollectionPendingSales, "syncStatus", string(models.SyncStatePending))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.PendingSale](rows)
}

// GetSale fetches one pending sale by id.
func (s *Service) GetSale(ctx context.Context, id string) (*models.PendingSale, bool, error) {
	return decodeOne[models.PendingSale](s.store.GetByKey(ctx, db.CollectionPendingSales, id))
}

// UpdateSaleStatus moves a sale through its sync lifecycle. A missing record
// is a no-op: the record may have been cleaned up between the runner's
// snapshot and this update.
func (s *Service) UpdateSaleStatus(ctx context.Context, id string, status models.SyncState, syncErr string) error {
	sale, ok, err := s.GetSale(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	sale.SyncStatus = status
	sale.Attempts++
	sale.LastAttempt = s.nowMillis()
	if syncErr != "" {
		sale.LastError = syncErr
	}

	return s.store.Upsert(ctx, db.CollectionPendingSales, id, sale)
}

// RetrySale re-enqueues a failed sale. Attempts are kept so the retry history
// stays visible; only the status goes back to pending.
func (s *Service) RetrySale(ctx context.Context, id string) error {
	sale, ok, err := s.GetSale(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "pending sale %q not found", id)
	}
	if sale.SyncStatus != models.SyncStateFailed {
		return apperrors.Newf(apperrors.ErrInvalid, "sale %q is %s, only failed records can be retried", id, sale.SyncStatus)
	}

	sale.SyncStatus = models.SyncStatePending
	sale.LastError = ""
	if err := s.store.Upsert(ctx, db.CollectionPendingSales, id, sale); err != nil {
		return err
	}

	_, err = s.AddToSyncQueue(ctx, models.QueueTypeSales, id, models.PriorityHigh)
	return err
}

// =====================================================
// Pending inventory updates
// =====================================================

// StorePendingInventoryUpdate persists a stock mutation captured offline.
// Sale-driven decrements sync at high priority, everything else at medium.
func (s *Service) StorePendingInventoryUpdate(ctx context.Context, productID string, updateType models.InventoryUpdateType, payload map[string]interface{}) (*models.PendingInventoryUpdate, error) {
	update := &models.PendingInventoryUpdate{
		ID:         uuid.NewOfflineID(),
		ProductID:  productID,
		Type:       updateType,
		Payload:    payload,
		Timestamp:  s.nowMillis(),
		SyncStatus: models.SyncStatePending,
		Attempts:   0,
	}

	if err := s.store.Insert(ctx, db.CollectionPendingInventory, update.ID, update); err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if updateType == models.InventoryUpdateSale {
		priority = models.PriorityHigh
	}

	if _, err := s.AddToSyncQueue(ctx, models.QueueTypeInventory, update.ID, priority); err != nil {
		logging.Warn("failed to enqueue inventory update", map[string]interface{}{
			"entity_id": update.ID,
			"error":     err.Error(),
		})
	}

	logging.Info("pending inventory update stored", map[string]interface{}{
		"entity_id":  update.ID,
		"product_id": productID,
		"type":       string(updateType),
	})

	return update, nil
}

// GetPendingInventoryUpdates returns all stock mutations waiting to be synced.
func (s *Service) GetPendingInventoryUpdates(ctx context.Context) ([]*models.PendingInventoryUpdate, error) {
	rows, err := s.store.GetByIndex(ctx, db.CollectionPendingInventory, "syncStatus", string(models.SyncStatePending))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.PendingInventoryUpdate](rows)
}

// GetInventoryUpdate fetches one pending inventory update by id.
func (s *Service) GetInventoryUpdate(ctx context.Context, id string) (*models.PendingInventoryUpdate, bool, error) {
	return decodeOne[models.PendingInventoryUpdate](s.store.GetByKey(ctx, db.CollectionPendingInventory, id))
}

// UpdateInventoryStatus is the inventory counterpart of UpdateSaleStatus.
func (s *Service) UpdateInventoryStatus(ctx context.Context, id string, status models.SyncState, syncErr string) error {
	update, ok, err := s.GetInventoryUpdate(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	update.SyncStatus = status
	update.Attempts++
	update.LastAttempt = s.nowMillis()
	if syncErr != "" {
		update.LastError = syncErr
	}

	return s.store.Upsert(ctx, db.CollectionPendingInventory, id, update)
}

// RetryInventory re-enqueues a failed inventory update.
func (s *Service) RetryInventory(ctx context.Context, id string) error {
	update, ok, err := s.GetInventoryUpdate(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "inventory update %q not found", id)
	}
	if update.SyncStatus != models.SyncStateFailed {
		return apperrors.Newf(apperrors.ErrInvalid, "inventory update %q is %s, only failed records can be retried", id, update.SyncStatus)
	}

	update.SyncStatus = models.SyncStatePending
	update.LastError = ""
	if err := s.store.Upsert(ctx, db.CollectionPendingInventory, id, update); err != nil {
		return err
	}

	priority := models.PriorityMedium
	if update.Type == models.InventoryUpdateSale {
		priority = models.PriorityHigh
	}
	_, err = s.AddToSyncQueue(ctx, models.QueueTypeInventory, id, priority)
	return err
}

// =====================================================
// Sync queue
// =====================================================

// AddToSyncQueue creates a work item referencing a pending record.
func (s *Service) AddToSyncQueue(ctx context.Context, queueType models.QueueType, entityID string, priority models.Priority) (*models.SyncQueueItem, error) {
	item := &models.SyncQueueItem{
		ID:        uuid.New(),
		Type:      queueType,
		EntityID:  entityID,
		Priority:  priority,
		Status:    models.QueueStatusPending,
		Timestamp: s.nowMillis(),
		Attempts:  0,
	}

	if err := s.store.Insert(ctx, db.CollectionSyncQueue, item.ID, item); err != nil {
		return nil, err
	}

	return item, nil
}

// GetSyncQueue returns queue items with the given status, ordered by priority
// (high before medium before low) and, within a priority, oldest first.
func (s *Service) GetSyncQueue(ctx context.Context, status models.QueueStatus) ([]*models.SyncQueueItem, error) {
	rows, err := s.store.GetByIndex(ctx, db.CollectionSyncQueue, "status", string(status))
	if err != nil {
		return nil, err
	}

	items, err := decodeAll[models.SyncQueueItem](rows)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority.Rank() != items[j].Priority.Rank() {
			return items[i].Priority.Rank() > items[j].Priority.Rank()
		}
		return items[i].Timestamp < items[j].Timestamp
	})

	return items, nil
}

// UpdateSyncQueueStatus updates a queue item's processing state. Missing
// items are a no-op.
func (s *Service) UpdateSyncQueueStatus(ctx context.Context, id string, status models.QueueStatus, syncErr string) error {
	item, ok, err := decodeOne[models.SyncQueueItem](s.store.GetByKey(ctx, db.CollectionSyncQueue, id))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	item.Status = status
	item.Attempts++
	item.LastAttempt = s.nowMillis()
	if syncErr != "" {
		item.LastError = syncErr
	}

	return s.store.Upsert(ctx, db.CollectionSyncQueue, id, item)
}

// CleanupSyncQueue deletes completed and failed queue items whose last
// attempt is older than the retention window. Safe to call repeatedly and
// concurrently with new enqueues. Returns the number of items removed.
func (s *Service) CleanupSyncQueue(ctx context.Context) (int, error) {
	rows, err := s.store.GetAll(ctx, db.CollectionSyncQueue)
	if err != nil {
		return 0, err
	}

	items, err := decodeAll[models.SyncQueueItem](rows)
	if err != nil {
		return 0, err
	}

	cutoff := s.nowMillis() - queueRetention.Milliseconds()
	removed := 0

	for _, item := range items {
		// A zero LastAttempt (never attempted, e.g. enqueued then
		// immediately failed by validation) also falls below the cutoff.
		if !item.Status.Terminal() || item.LastAttempt >= cutoff {
			continue
		}
		if err := s.store.Remove(ctx, db.CollectionSyncQueue, item.ID); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// =====================================================
// Conflicts
// =====================================================

// StoreConflict records a detected divergence for later resolution. If the
// entity is a locally pending sale, the conflict id is attached to it so the
// admin screen can surface it alongside the sale.
func (s *Service) StoreConflict(ctx context.Context, entityType, entityID string, localData, serverData map[string]interface{}, conflictType string) (*models.Conflict, error) {
	conflict := &models.Conflict{
		ID:           uuid.New(),
		EntityType:   entityType,
		EntityID:     entityID,
		LocalData:    localData,
		ServerData:   serverData,
		ConflictType: conflictType,
		Timestamp:    s.nowMillis(),
		Resolved:     false,
	}

	if err := s.store.Insert(ctx, db.CollectionConflicts, conflict.ID, conflict); err != nil {
		return nil, err
	}

	if entityType == "sale" {
		if sale, ok, err := s.GetSale(ctx, entityID); err == nil && ok {
			sale.ConflictIDs = append(sale.ConflictIDs, conflict.ID)
			if err := s.store.Upsert(ctx, db.CollectionPendingSales, entityID, sale); err != nil {
				logging.Warn("failed to attach conflict to sale", map[string]interface{}{
					"entity_id":   entityID,
					"conflict_id": conflict.ID,
					"error":       err.Error(),
				})
			}
		}
	}

	logging.Warn("sync conflict stored", map[string]interface{}{
		"conflict_id":   conflict.ID,
		"entity_type":   entityType,
		"entity_id":     entityID,
		"conflict_type": conflictType,
	})

	return conflict, nil
}

// GetConflict fetches one conflict by id.
func (s *Service) GetConflict(ctx context.Context, id string) (*models.Conflict, bool, error) {
	return decodeOne[models.Conflict](s.store.GetByKey(ctx, db.CollectionConflicts, id))
}

// GetUnresolvedConflicts returns all conflicts awaiting resolution. This is a
// full scan by design: the resolved flag is the authoritative truth source.
func (s *Service) GetUnresolvedConflicts(ctx context.Context) ([]*models.Conflict, error) {
	rows, err := s.store.GetAll(ctx, db.CollectionConflicts)
	if err != nil {
		return nil, err
	}

	all, err := decodeAll[models.Conflict](rows)
	if err != nil {
		return nil, err
	}

	unresolved := make([]*models.Conflict, 0, len(all))
	for _, c := range all {
		if !c.Resolved {
			unresolved = append(unresolved, c)
		}
	}

	return unresolved, nil
}

// ResolveConflict marks a conflict resolved. A missing id is a no-op, and an
// already-resolved conflict is left untouched: resolution happens once.
func (s *Service) ResolveConflict(ctx context.Context, id string, resolution models.Resolution) error {
	conflict, ok, err := s.GetConflict(ctx, id)
	if err != nil {
		return err
	}
	if !ok || conflict.Resolved {
		return nil
	}

	resolution.ResolvedAt = s.nowMillis()
	conflict.Resolved = true
	conflict.Resolution = &resolution

	return s.store.Upsert(ctx, db.CollectionConflicts, id, conflict)
}

// =====================================================
// TTL cache
// =====================================================

// CacheData stores a value under key with the given TTL.
func (s *Service) CacheData(ctx context.Context, key string, value interface{}, dataType string, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	now := s.nowMillis()
	entry := &models.CachedEntry{
		Key:       key,
		Data:      data,
		Type:      dataType,
		Timestamp: now,
		Expires:   now + ttl.Milliseconds(),
	}

	return s.store.Upsert(ctx, db.CollectionCache, key, entry)
}

// GetCachedData returns the cached value for key. An expired entry is purged
// on read and reported as a miss; stale data is never returned.
func (s *Service) GetCachedData(ctx context.Context, key string) (json.RawMessage, bool, error) {
	entry, ok, err := decodeOne[models.CachedEntry](s.store.GetByKey(ctx, db.CollectionCache, key))
	if err != nil || !ok {
		return nil, false, err
	}

	if entry.ExpiredAt(s.nowMillis()) {
		if err := s.store.Remove(ctx, db.CollectionCache, key); err != nil {
			logging.Warn("failed to purge expired cache entry", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil, false, nil
	}

	return entry.Data, true, nil
}

// ClearExpiredCache sweeps all expired cache entries. Returns the number
// removed.
func (s *Service) ClearExpiredCache(ctx context.Context) (int, error) {
	rows, err := s.store.GetAll(ctx, db.CollectionCache)
	if err != nil {
		return 0, err
	}

	entries, err := decodeAll[models.CachedEntry](rows)
	if err != nil {
		return 0, err
	}

	now := s.nowMillis()
	removed := 0

	for _, entry := range entries {
		if !entry.ExpiredAt(now) {
			continue
		}
		if err := s.store.Remove(ctx, db.CollectionCache, entry.Key); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// =====================================================
// Statistics and maintenance
// =====================================================

// GetSyncStats computes an advisory backlog snapshot. It never fails: any
// read error degrades the affected field to zero rather than propagating,
// since a broken stats call must not take the surrounding screen down.
func (s *Service) GetSyncStats(ctx context.Context) *models.SyncStats {
	stats := &models.SyncStats{
		PendingSales:     s.store.CountByIndex(ctx, db.CollectionPendingSales, "syncStatus", string(models.SyncStatePending)),
		PendingInventory: s.store.CountByIndex(ctx, db.CollectionPendingInventory, "syncStatus", string(models.SyncStatePending)),
		FailedSales:      s.store.CountByIndex(ctx, db.CollectionPendingSales, "syncStatus", string(models.SyncStateFailed)),
		FailedInventory:  s.store.CountByIndex(ctx, db.CollectionPendingInventory, "syncStatus", string(models.SyncStateFailed)),
		QueuedItems:      s.store.CountByIndex(ctx, db.CollectionSyncQueue, "status", string(models.QueueStatusPending)),
		CachedItems:      s.store.Count(ctx, db.CollectionCache),
	}

	// The resolved flag is counted by scan, not index; see
	// GetUnresolvedConflicts.
	if unresolved, err := s.GetUnresolvedConflicts(ctx); err == nil {
		stats.UnresolvedConflicts = len(unresolved)
	}

	if raw, ok, err := s.GetCachedData(ctx, LastSyncTimeKey); err == nil && ok {
		var last int64
		if err := json.Unmarshal(raw, &last); err == nil {
			stats.LastSync = &last
		}
	}

	return stats
}

// UpdateLastSyncTime records now as the last successful sync time.
func (s *Service) UpdateLastSyncTime(ctx context.Context) error {
	return s.CacheData(ctx, LastSyncTimeKey, s.nowMillis(), "sync", lastSyncTTL)
}

// ClearAllPendingData wipes all five collections. Recovery/testing only.
func (s *Service) ClearAllPendingData(ctx context.Context) error {
	for _, col := range db.Collections {
		if err := s.store.Clear(ctx, col); err != nil {
			return err
		}
	}
	return nil
}

// CleanupSyncedData removes completed pending records, then prunes the queue
// and sweeps the cache. Invoked from the maintenance loop, never from the
// sync pass itself.
func (s *Service) CleanupSyncedData(ctx context.Context) error {
	for _, col := range []db.Collection{db.CollectionPendingSales, db.CollectionPendingInventory} {
		rows, err := s.store.GetByIndex(ctx, col, "syncStatus", string(models.SyncStateCompleted))
		if err != nil {
			return err
		}
		for _, raw := range rows {
			var rec struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			if err := s.store.Remove(ctx, col, rec.ID); err != nil {
				return err
			}
		}
	}

	if _, err := s.CleanupSyncQueue(ctx); err != nil {
		return err
	}

	_, err := s.ClearExpiredCache(ctx)
	return err
}

// =====================================================
// Decoding helpers
// =====================================================

func decodeAll[T any](rows [][]byte) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, raw := range rows {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, nil
}

func decodeOne[T any](raw []byte, ok bool, err error) (*T, bool, error) {
	if err != nil || !ok {
		return nil, false, err
	}
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}
