package offline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/warungkita/possync/internal/db"
	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewService(store)
}

func TestStorePendingSaleLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sale, err := svc.StorePendingSale(ctx, map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"name": "X", "qtyBox": 1},
		},
	})
	if err != nil {
		t.Fatalf("StorePendingSale failed: %v", err)
	}

	if sale.SyncStatus != models.SyncStatePending {
		t.Errorf("Expected pending status, got %q", sale.SyncStatus)
	}
	if sale.Attempts != 0 {
		t.Errorf("Expected 0 attempts, got %d", sale.Attempts)
	}
	if !sale.CreatedOffline {
		t.Error("Expected createdOffline to be set")
	}

	pending, err := svc.GetPendingSales(ctx)
	if err != nil {
		t.Fatalf("GetPendingSales failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != sale.ID {
		t.Fatalf("Expected the stored sale in the pending list, got %v", pending)
	}

	if err := svc.UpdateSaleStatus(ctx, sale.ID, models.SyncStateCompleted, ""); err != nil {
		t.Fatalf("UpdateSaleStatus failed: %v", err)
	}

	pending, err = svc.GetPendingSales(ctx)
	if err != nil {
		t.Fatalf("GetPendingSales failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Completed sale still listed as pending: %v", pending)
	}

	stored, ok, err := svc.GetSale(ctx, sale.ID)
	if err != nil || !ok {
		t.Fatalf("GetSale failed: ok=%v err=%v", ok, err)
	}
	if stored.Attempts != 1 {
		t.Errorf("Expected attempts incremented to 1, got %d", stored.Attempts)
	}
	if stored.LastAttempt == 0 {
		t.Error("Expected lastAttempt to be stamped")
	}
}

func TestUpdateStatusMissingRecordIsNoOp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.UpdateSaleStatus(ctx, "ghost", models.SyncStateFailed, "boom"); err != nil {
		t.Errorf("Expected no-op for missing sale, got %v", err)
	}
	if err := svc.UpdateInventoryStatus(ctx, "ghost", models.SyncStateFailed, "boom"); err != nil {
		t.Errorf("Expected no-op for missing inventory update, got %v", err)
	}

	// The no-op must not create a record either.
	if _, ok, _ := svc.GetSale(ctx, "ghost"); ok {
		t.Error("No-op update created a sale record")
	}
}

func TestInventoryPriorityByType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// The adjustment goes in first so priority, not insertion order, must
	// decide the queue order.
	adj, err := svc.StorePendingInventoryUpdate(ctx, "prod-1", models.InventoryUpdateAdjustment, map[string]interface{}{"quantity": 5})
	if err != nil {
		t.Fatalf("Store adjustment failed: %v", err)
	}
	saleUpd, err := svc.StorePendingInventoryUpdate(ctx, "prod-1", models.InventoryUpdateSale, map[string]interface{}{"quantity": -2})
	if err != nil {
		t.Fatalf("Store sale update failed: %v", err)
	}

	queue, err := svc.GetSyncQueue(ctx, models.QueueStatusPending)
	if err != nil {
		t.Fatalf("GetSyncQueue failed: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("Expected 2 queue items, got %d", len(queue))
	}

	if queue[0].EntityID != saleUpd.ID || queue[0].Priority != models.PriorityHigh {
		t.Errorf("Expected sale-typed update first at high priority, got %+v", queue[0])
	}
	if queue[1].EntityID != adj.ID || queue[1].Priority != models.PriorityMedium {
		t.Errorf("Expected adjustment second at medium priority, got %+v", queue[1])
	}
}

func TestSyncQueueOrdering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	ts := base
	svc.now = func() time.Time { return ts }

	// Interleave priorities with increasing timestamps.
	type seed struct {
		entity   string
		priority models.Priority
	}
	seeds := []seed{
		{"e-low-1", models.PriorityLow},
		{"e-high-1", models.PriorityHigh},
		{"e-med-1", models.PriorityMedium},
		{"e-high-2", models.PriorityHigh},
		{"e-med-2", models.PriorityMedium},
	}
	for _, sd := range seeds {
		if _, err := svc.AddToSyncQueue(ctx, models.QueueTypeSales, sd.entity, sd.priority); err != nil {
			t.Fatalf("AddToSyncQueue failed: %v", err)
		}
		ts = ts.Add(time.Second)
	}

	queue, err := svc.GetSyncQueue(ctx, models.QueueStatusPending)
	if err != nil {
		t.Fatalf("GetSyncQueue failed: %v", err)
	}

	want := []string{"e-high-1", "e-high-2", "e-med-1", "e-med-2", "e-low-1"}
	if len(queue) != len(want) {
		t.Fatalf("Expected %d items, got %d", len(want), len(queue))
	}
	for i, entity := range want {
		if queue[i].EntityID != entity {
			t.Errorf("Position %d: expected %s, got %s", i, entity, queue[i].EntityID)
		}
	}
}

func TestCleanupSyncQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	start := time.Now()
	svc.now = func() time.Time { return start }

	oldItem, _ := svc.AddToSyncQueue(ctx, models.QueueTypeSales, "old", models.PriorityHigh)
	freshItem, _ := svc.AddToSyncQueue(ctx, models.QueueTypeSales, "fresh", models.PriorityHigh)
	pendingItem, _ := svc.AddToSyncQueue(ctx, models.QueueTypeSales, "still-pending", models.PriorityHigh)

	// Terminal two days ago.
	if err := svc.UpdateSyncQueueStatus(ctx, oldItem.ID, models.QueueStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateSyncQueueStatus failed: %v", err)
	}

	// Terminal just now.
	svc.now = func() time.Time { return start.Add(47 * time.Hour) }
	if err := svc.UpdateSyncQueueStatus(ctx, freshItem.ID, models.QueueStatusFailed, "network down"); err != nil {
		t.Fatalf("UpdateSyncQueueStatus failed: %v", err)
	}

	svc.now = func() time.Time { return start.Add(48 * time.Hour) }
	removed, err := svc.CleanupSyncQueue(ctx)
	if err != nil {
		t.Fatalf("CleanupSyncQueue failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 item removed, got %d", removed)
	}

	queue, err := svc.GetSyncQueue(ctx, models.QueueStatusPending)
	if err != nil {
		t.Fatalf("GetSyncQueue failed: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != pendingItem.ID {
		t.Errorf("Pending item should survive cleanup, got %v", queue)
	}

	// Running cleanup again must be harmless.
	if _, err := svc.CleanupSyncQueue(ctx); err != nil {
		t.Errorf("Repeated cleanup failed: %v", err)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.CacheData(ctx, "products", []string{"kopi", "teh"}, "catalog", 50*time.Millisecond); err != nil {
		t.Fatalf("CacheData failed: %v", err)
	}

	raw, ok, err := svc.GetCachedData(ctx, "products")
	if err != nil || !ok {
		t.Fatalf("Expected fresh hit: ok=%v err=%v", ok, err)
	}
	var got []string
	if err := json.Unmarshal(raw, &got); err != nil || len(got) != 2 {
		t.Fatalf("Cached payload corrupted: %v (%v)", got, err)
	}

	time.Sleep(80 * time.Millisecond)

	_, ok, err = svc.GetCachedData(ctx, "products")
	if err != nil {
		t.Fatalf("GetCachedData failed: %v", err)
	}
	if ok {
		t.Fatal("Expected a miss after expiry")
	}

	// The expired read must have physically removed the entry.
	if count := svc.store.Count(ctx, db.CollectionCache); count != 0 {
		t.Errorf("Expected expired entry purged, %d entries remain", count)
	}
}

func TestClearExpiredCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.CacheData(ctx, "stale-1", "a", "misc", -time.Minute)
	svc.CacheData(ctx, "stale-2", "b", "misc", -time.Minute)
	svc.CacheData(ctx, "alive", "c", "misc", time.Hour)

	removed, err := svc.ClearExpiredCache(ctx)
	if err != nil {
		t.Fatalf("ClearExpiredCache failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 entries swept, got %d", removed)
	}

	if _, ok, _ := svc.GetCachedData(ctx, "alive"); !ok {
		t.Error("Live entry swept by mistake")
	}
}

func TestConflictLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	conflict, err := svc.StoreConflict(ctx, "sale", "offline_1_aa",
		map[string]interface{}{"total": 100},
		map[string]interface{}{"total": 200},
		"value_mismatch")
	if err != nil {
		t.Fatalf("StoreConflict failed: %v", err)
	}
	if conflict.Resolved {
		t.Error("New conflict must start unresolved")
	}

	unresolved, err := svc.GetUnresolvedConflicts(ctx)
	if err != nil {
		t.Fatalf("GetUnresolvedConflicts failed: %v", err)
	}
	if len(unresolved) != 1 {
		t.Fatalf("Expected 1 unresolved conflict, got %d", len(unresolved))
	}

	err = svc.ResolveConflict(ctx, conflict.ID, models.Resolution{
		Strategy: "server-wins",
		Data:     map[string]interface{}{"total": 200},
	})
	if err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	stored, ok, err := svc.GetConflict(ctx, conflict.ID)
	if err != nil || !ok {
		t.Fatalf("GetConflict failed: ok=%v err=%v", ok, err)
	}
	if !stored.Resolved {
		t.Error("Conflict not marked resolved")
	}
	if stored.Resolution == nil || stored.Resolution.Strategy != "server-wins" {
		t.Errorf("Resolution not recorded: %+v", stored.Resolution)
	}
	if stored.Resolution.ResolvedAt == 0 {
		t.Error("ResolvedAt not stamped")
	}

	unresolved, _ = svc.GetUnresolvedConflicts(ctx)
	if len(unresolved) != 0 {
		t.Errorf("Resolved conflict still listed: %v", unresolved)
	}
}

func TestResolveConflictIsOneShot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	conflict, _ := svc.StoreConflict(ctx, "inventory", "prod-9",
		map[string]interface{}{"quantity": 4},
		map[string]interface{}{"quantity": 7},
		"stock_mismatch")

	svc.ResolveConflict(ctx, conflict.ID, models.Resolution{Strategy: "server-wins"})
	// Second resolution must not overwrite the first.
	svc.ResolveConflict(ctx, conflict.ID, models.Resolution{Strategy: "client-wins"})

	stored, _, _ := svc.GetConflict(ctx, conflict.ID)
	if stored.Resolution.Strategy != "server-wins" {
		t.Errorf("Resolved conflict was overwritten: %+v", stored.Resolution)
	}
}

func TestResolveConflictMissingIsNoOp(t *testing.T) {
	svc := newTestService(t)

	if err := svc.ResolveConflict(context.Background(), "ghost", models.Resolution{Strategy: "manual"}); err != nil {
		t.Errorf("Expected no-op for missing conflict, got %v", err)
	}
}

func TestStoreConflictAttachesToSale(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sale, _ := svc.StorePendingSale(ctx, map[string]interface{}{"total": 100})

	conflict, err := svc.StoreConflict(ctx, "sale", sale.ID,
		map[string]interface{}{"total": 100},
		map[string]interface{}{"total": 150},
		"value_mismatch")
	if err != nil {
		t.Fatalf("StoreConflict failed: %v", err)
	}

	stored, _, _ := svc.GetSale(ctx, sale.ID)
	if len(stored.ConflictIDs) != 1 || stored.ConflictIDs[0] != conflict.ID {
		t.Errorf("Conflict id not attached to sale: %v", stored.ConflictIDs)
	}
}

func TestGetSyncStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.StorePendingSale(ctx, map[string]interface{}{"total": 1})
	svc.StorePendingSale(ctx, map[string]interface{}{"total": 2})
	svc.StorePendingInventoryUpdate(ctx, "p1", models.InventoryUpdateRestock, map[string]interface{}{"quantity": 10})
	svc.StoreConflict(ctx, "generic", "e1", map[string]interface{}{"a": 1}, map[string]interface{}{"a": 2}, "generic_mismatch")
	svc.UpdateLastSyncTime(ctx)

	stats := svc.GetSyncStats(ctx)

	if stats.PendingSales != 2 {
		t.Errorf("Expected 2 pending sales, got %d", stats.PendingSales)
	}
	if stats.PendingInventory != 1 {
		t.Errorf("Expected 1 pending inventory update, got %d", stats.PendingInventory)
	}
	if stats.QueuedItems != 3 {
		t.Errorf("Expected 3 queued items, got %d", stats.QueuedItems)
	}
	if stats.UnresolvedConflicts != 1 {
		t.Errorf("Expected 1 unresolved conflict, got %d", stats.UnresolvedConflicts)
	}
	// lastSyncTime marker plus nothing else expired.
	if stats.CachedItems != 1 {
		t.Errorf("Expected 1 cached item, got %d", stats.CachedItems)
	}
	if stats.LastSync == nil {
		t.Error("Expected lastSync to be set")
	}
}

func TestGetSyncStatsNeverFails(t *testing.T) {
	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	svc := NewService(store)
	store.Close() // every subsequent read errors

	stats := svc.GetSyncStats(context.Background())

	if stats == nil {
		t.Fatal("Expected a well-formed stats object")
	}
	if stats.PendingSales != 0 || stats.PendingInventory != 0 || stats.QueuedItems != 0 ||
		stats.UnresolvedConflicts != 0 || stats.CachedItems != 0 {
		t.Errorf("Expected all-zero stats from a broken store, got %+v", stats)
	}
	if stats.LastSync != nil {
		t.Errorf("Expected nil lastSync from a broken store, got %v", *stats.LastSync)
	}
}

func TestRetrySale(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sale, _ := svc.StorePendingSale(ctx, map[string]interface{}{"total": 10})
	svc.UpdateSaleStatus(ctx, sale.ID, models.SyncStateFailed, "remote unreachable")

	if err := svc.RetrySale(ctx, sale.ID); err != nil {
		t.Fatalf("RetrySale failed: %v", err)
	}

	stored, _, _ := svc.GetSale(ctx, sale.ID)
	if stored.SyncStatus != models.SyncStatePending {
		t.Errorf("Expected pending after retry, got %q", stored.SyncStatus)
	}
	if stored.Attempts != 1 {
		t.Errorf("Retry must keep the attempt history, got %d", stored.Attempts)
	}
	if stored.LastError != "" {
		t.Errorf("Expected lastError cleared, got %q", stored.LastError)
	}
}

func TestRetrySaleRejectsNonFailed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sale, _ := svc.StorePendingSale(ctx, map[string]interface{}{"total": 10})

	err := svc.RetrySale(ctx, sale.ID)
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Expected INVALID_INPUT for a pending sale, got %v", err)
	}

	if err := svc.RetrySale(ctx, "ghost"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND for missing sale, got %v", err)
	}
}

func TestCleanupSyncedData(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	done, _ := svc.StorePendingSale(ctx, map[string]interface{}{"total": 1})
	keep, _ := svc.StorePendingSale(ctx, map[string]interface{}{"total": 2})
	invDone, _ := svc.StorePendingInventoryUpdate(ctx, "p1", models.InventoryUpdateRestock, map[string]interface{}{"quantity": 3})

	svc.UpdateSaleStatus(ctx, done.ID, models.SyncStateCompleted, "")
	svc.UpdateInventoryStatus(ctx, invDone.ID, models.SyncStateCompleted, "")
	svc.CacheData(ctx, "stale", "x", "misc", -time.Minute)

	if err := svc.CleanupSyncedData(ctx); err != nil {
		t.Fatalf("CleanupSyncedData failed: %v", err)
	}

	if _, ok, _ := svc.GetSale(ctx, done.ID); ok {
		t.Error("Completed sale survived cleanup")
	}
	if _, ok, _ := svc.GetSale(ctx, keep.ID); !ok {
		t.Error("Pending sale removed by cleanup")
	}
	if _, ok, _ := svc.GetInventoryUpdate(ctx, invDone.ID); ok {
		t.Error("Completed inventory update survived cleanup")
	}
	if _, ok, _ := svc.GetCachedData(ctx, "stale"); ok {
		t.Error("Expired cache entry survived cleanup")
	}
}

func TestClearAllPendingData(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.StorePendingSale(ctx, map[string]interface{}{"total": 1})
	svc.StorePendingInventoryUpdate(ctx, "p1", models.InventoryUpdateSale, map[string]interface{}{"quantity": -1})
	svc.StoreConflict(ctx, "generic", "e1", map[string]interface{}{"a": 1}, map[string]interface{}{"a": 2}, "generic_mismatch")
	svc.CacheData(ctx, "k", "v", "misc", time.Hour)

	if err := svc.ClearAllPendingData(ctx); err != nil {
		t.Fatalf("ClearAllPendingData failed: %v", err)
	}

	stats := svc.GetSyncStats(ctx)
	if stats.PendingSales != 0 || stats.PendingInventory != 0 || stats.QueuedItems != 0 ||
		stats.UnresolvedConflicts != 0 || stats.CachedItems != 0 {
		t.Errorf("Expected empty store after reset, got %+v", stats)
	}
}
