// Package sync drives background reconciliation of pending offline records
// against the remote store.
package sync

import (
	"context"
	gosync "sync"
	"time"

	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/logging"
	"github.com/warungkita/possync/internal/models"
	"github.com/warungkita/possync/internal/offline"
)

// Tag names an independent sync work stream. Sales and inventory touch
// disjoint collections and may run concurrently with each other.
type Tag string

const (
	TagSales     Tag = "sales"
	TagInventory Tag = "inventory"
)

// RemoteAPI replays a pending record against the authoritative store.
// Replays are sent keyed by the client-generated id so a retry after a lost
// acknowledgement upserts instead of double-applying.
type RemoteAPI interface {
	ReplaySale(ctx context.Context, sale *models.PendingSale) error
	ReplayInventory(ctx context.Context, update *models.PendingInventoryUpdate) error
}

// EventSink receives sync progress events for UI consumption.
type EventSink interface {
	Publish(event string, data map[string]interface{})
}

// Sync event names.
const (
	EventSyncStarted          = "sync.started"
	EventSyncProgress         = "sync.progress"
	EventSyncCompleted        = "sync.completed"
	EventSyncFailed           = "sync.failed"
	EventSyncConflictDetected = "sync.conflict_detected"
)

type nopSink struct{}

func (nopSink) Publish(string, map[string]interface{}) {}

// Result summarizes one sync pass.
type Result struct {
	Tag       Tag           `json:"tag"`
	Processed int           `json:"processed"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
}

// Runner drains pending records and replays them remotely, one record at a
// time. One pass per tag runs at a time; overlapping triggers for the same
// tag are absorbed, not queued.
type Runner struct {
	svc    *offline.Service
	remote RemoteAPI
	events EventSink

	mu       gosync.Mutex
	inFlight map[Tag]bool
}

// NewRunner creates a Runner. events may be nil.
func NewRunner(svc *offline.Service, remote RemoteAPI, events EventSink) *Runner {
	if events == nil {
		events = nopSink{}
	}
	return &Runner{
		svc:      svc,
		remote:   remote,
		events:   events,
		inFlight: make(map[Tag]bool),
	}
}

// Sync runs one pass for a tag. A pass already in flight for the same tag
// returns a skipped result; a duplicate trigger is normal, not an error.
func (r *Runner) Sync(ctx context.Context, tag Tag) (*Result, error) {
	if tag != TagSales && tag != TagInventory {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown sync tag %q", tag)
	}

	if !r.acquire(tag) {
		logging.Debug("sync already in progress, trigger absorbed", map[string]interface{}{
			"tag": string(tag),
		})
		return &Result{Tag: tag, Skipped: true}, nil
	}
	defer r.release(tag)

	result := &Result{Tag: tag, StartTime: time.Now()}
	defer func() { result.Duration = time.Since(result.StartTime) }()

	r.events.Publish(EventSyncStarted, map[string]interface{}{"tag": string(tag)})

	var err error
	switch tag {
	case TagSales:
		err = r.syncSales(ctx, result)
	case TagInventory:
		err = r.syncInventory(ctx, result)
	}

	if err != nil {
		r.events.Publish(EventSyncFailed, map[string]interface{}{
			"tag":   string(tag),
			"error": err.Error(),
		})
		return result, err
	}

	// The pass itself completed; individual record failures stay visible
	// through sync stats, not through this timestamp.
	if err := r.svc.UpdateLastSyncTime(ctx); err != nil {
		logging.Warn("failed to record last sync time", map[string]interface{}{
			"error": err.Error(),
		})
	}

	r.events.Publish(EventSyncCompleted, map[string]interface{}{
		"tag":       string(tag),
		"processed": result.Processed,
		"completed": result.Completed,
		"failed":    result.Failed,
	})

	logging.Info("sync pass finished", map[string]interface{}{
		"tag":       string(tag),
		"processed": result.Processed,
		"completed": result.Completed,
		"failed":    result.Failed,
	})

	return result, nil
}

func (r *Runner) acquire(tag Tag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[tag] {
		return false
	}
	r.inFlight[tag] = true
	return true
}

func (r *Runner) release(tag Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, tag)
}

func (r *Runner) syncSales(ctx context.Context, result *Result) error {
	sales, err := r.svc.GetPendingSales(ctx)
	if err != nil {
		return err
	}

	queueByEntity := r.pendingQueueIndex(ctx)

	for _, sale := range sales {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Re-read the record: a concurrent pass that started earlier may
		// already have moved it out of pending.
		fresh, ok, err := r.svc.GetSale(ctx, sale.ID)
		if err != nil || !ok || fresh.SyncStatus != models.SyncStatePending {
			continue
		}

		result.Processed++
		r.markQueueItem(ctx, queueByEntity, fresh.ID, models.QueueStatusSyncing, "")

		if err := r.remote.ReplaySale(ctx, fresh); err != nil {
			// One failed record never aborts the batch.
			result.Failed++
			r.recordFailure(ctx, TagSales, fresh.ID, err)
			r.markQueueItem(ctx, queueByEntity, fresh.ID, models.QueueStatusFailed, err.Error())
			continue
		}

		result.Completed++
		if err := r.svc.UpdateSaleStatus(ctx, fresh.ID, models.SyncStateCompleted, ""); err != nil {
			logging.Error("failed to mark sale completed", err, map[string]interface{}{
				"entity_id": fresh.ID,
			})
		}
		r.markQueueItem(ctx, queueByEntity, fresh.ID, models.QueueStatusCompleted, "")

		r.events.Publish(EventSyncProgress, map[string]interface{}{
			"tag":       string(TagSales),
			"entity_id": fresh.ID,
		})
	}

	return nil
}

func (r *Runner) syncInventory(ctx context.Context, result *Result) error {
	updates, err := r.svc.GetPendingInventoryUpdates(ctx)
	if err != nil {
		return err
	}

	queueByEntity := r.pendingQueueIndex(ctx)

	for _, update := range updates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fresh, ok, err := r.svc.GetInventoryUpdate(ctx, update.ID)
		if err != nil || !ok || fresh.SyncStatus != models.SyncStatePending {
			continue
		}

		result.Processed++
		r.markQueueItem(ctx, queueByEntity, fresh.ID, models.QueueStatusSyncing, "")

		if err := r.remote.ReplayInventory(ctx, fresh); err != nil {
			result.Failed++
			r.recordFailure(ctx, TagInventory, fresh.ID, err)
			r.markQueueItem(ctx, queueByEntity, fresh.ID, models.QueueStatusFailed, err.Error())
			continue
		}

		result.Completed++
		if err := r.svc.UpdateInventoryStatus(ctx, fresh.ID, models.SyncStateCompleted, ""); err != nil {
			logging.Error("failed to mark inventory update completed", err, map[string]interface{}{
				"entity_id": fresh.ID,
			})
		}
		r.markQueueItem(ctx, queueByEntity, fresh.ID, models.QueueStatusCompleted, "")

		r.events.Publish(EventSyncProgress, map[string]interface{}{
			"tag":       string(TagInventory),
			"entity_id": fresh.ID,
		})
	}

	return nil
}

func (r *Runner) recordFailure(ctx context.Context, tag Tag, id string, replayErr error) {
	wrapped := apperrors.Wrap(apperrors.ErrRemoteReplayFailed, "replay rejected", replayErr)

	logging.Warn("record replay failed", map[string]interface{}{
		"tag":       string(tag),
		"entity_id": id,
		"error":     wrapped.Error(),
	})

	var err error
	switch tag {
	case TagSales:
		err = r.svc.UpdateSaleStatus(ctx, id, models.SyncStateFailed, replayErr.Error())
	case TagInventory:
		err = r.svc.UpdateInventoryStatus(ctx, id, models.SyncStateFailed, replayErr.Error())
	}
	if err != nil {
		logging.Error("failed to record replay failure", err, map[string]interface{}{
			"entity_id": id,
		})
	}
}

// pendingQueueIndex maps entity ids to their pending queue item so the pass
// can move queue statuses along with the records. Queue updates are best
// effort: the queue is a hint, the record status is the truth.
func (r *Runner) pendingQueueIndex(ctx context.Context) map[string]string {
	index := make(map[string]string)

	items, err := r.svc.GetSyncQueue(ctx, models.QueueStatusPending)
	if err != nil {
		logging.Debug("failed to load sync queue", map[string]interface{}{
			"error": err.Error(),
		})
		return index
	}

	for _, item := range items {
		index[item.EntityID] = item.ID
	}
	return index
}

func (r *Runner) markQueueItem(ctx context.Context, index map[string]string, entityID string, status models.QueueStatus, errMsg string) {
	itemID, ok := index[entityID]
	if !ok {
		return
	}
	if err := r.svc.UpdateSyncQueueStatus(ctx, itemID, status, errMsg); err != nil {
		logging.Debug("failed to update queue item", map[string]interface{}{
			"queue_id": itemID,
			"error":    err.Error(),
		})
	}
}
