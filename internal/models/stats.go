package models

// SyncStats is an advisory snapshot of sync backlog and cache size. Callers
// must always receive a well-formed value: on internal failure every count is
// zero and LastSync is nil.
type SyncStats struct {
	PendingSales        int    `json:"pendingSales"`
	PendingInventory    int    `json:"pendingInventory"`
	FailedSales         int    `json:"failedSales"`
	FailedInventory     int    `json:"failedInventory"`
	QueuedItems         int    `json:"queuedItems"`
	UnresolvedConflicts int    `json:"unresolvedConflicts"`
	CachedItems         int    `json:"cachedItems"`
	LastSync            *int64 `json:"lastSync"`
}
