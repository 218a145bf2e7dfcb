// Package models provides data model definitions for the offline sync core.
package models

// SyncState describes where a pending record sits in its sync lifecycle.
type SyncState string

const (
	SyncStatePending   SyncState = "pending"
	SyncStateCompleted SyncState = "completed"
	SyncStateFailed    SyncState = "failed"
)

// InventoryUpdateType describes what kind of stock mutation a pending
// inventory update represents.
type InventoryUpdateType string

const (
	InventoryUpdateAdjustment InventoryUpdateType = "adjustment"
	InventoryUpdateRestock    InventoryUpdateType = "restock"
	InventoryUpdateSale       InventoryUpdateType = "sale"
)

// PendingSale is a sale transaction captured while offline, waiting to be
// replayed against the remote store. Payload holds the sale document as
// submitted by the cashier UI (customer, items, totals, payment).
type PendingSale struct {
	ID             string                 `json:"id"`
	Payload        map[string]interface{} `json:"payload"`
	Timestamp      int64                  `json:"timestamp"`
	SyncStatus     SyncState              `json:"syncStatus"`
	CreatedOffline bool                   `json:"createdOffline"`
	Attempts       int                    `json:"attempts"`
	LastAttempt    int64                  `json:"lastAttempt,omitempty"`
	LastError      string                 `json:"lastError,omitempty"`
	ConflictIDs    []string               `json:"conflicts,omitempty"`
}

// TableName returns the collection name for PendingSale.
func (PendingSale) TableName() string {
	return "pending_sales"
}

// PendingInventoryUpdate is a stock mutation captured while offline.
type PendingInventoryUpdate struct {
	ID          string                 `json:"id"`
	ProductID   string                 `json:"productId"`
	Type        InventoryUpdateType    `json:"type"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   int64                  `json:"timestamp"`
	SyncStatus  SyncState              `json:"syncStatus"`
	Attempts    int                    `json:"attempts"`
	LastAttempt int64                  `json:"lastAttempt,omitempty"`
	LastError   string                 `json:"lastError,omitempty"`
}

// TableName returns the collection name for PendingInventoryUpdate.
func (PendingInventoryUpdate) TableName() string {
	return "pending_inventory"
}
