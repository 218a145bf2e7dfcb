package models

// QueueType identifies which collection a sync queue item references.
type QueueType string

const (
	QueueTypeSales     QueueType = "sales"
	QueueTypeInventory QueueType = "inventory"
	QueueTypeSettings  QueueType = "settings"
)

// Priority orders sync queue items. Sale-driven work goes out first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to a sortable weight; unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// QueueStatus describes a sync queue item's processing state.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusSyncing   QueueStatus = "syncing"
	QueueStatusFailed    QueueStatus = "failed"
	QueueStatusCompleted QueueStatus = "completed"
)

// Terminal reports whether the status will never change again on its own.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// SyncQueueItem is a work item referencing a pending record. The queue is a
// priority hint: work discovery goes through the pending collections, so an
// orphaned record with no queue item still gets synced.
type SyncQueueItem struct {
	ID          string      `json:"id"`
	Type        QueueType   `json:"type"`
	EntityID    string      `json:"entityId"`
	Priority    Priority    `json:"priority"`
	Status      QueueStatus `json:"status"`
	Timestamp   int64       `json:"timestamp"`
	Attempts    int         `json:"attempts"`
	LastAttempt int64       `json:"lastAttempt,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
}

// TableName returns the collection name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}
