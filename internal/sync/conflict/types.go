// Package conflict provides divergence detection and resolution between
// local and server versions of an entity.
package conflict

// EntityType is the domain kind of a record being reconciled. Dispatch over
// it is exhaustive: unknown kinds normalize to EntityGeneric.
type EntityType string

const (
	EntitySale      EntityType = "sale"
	EntityInventory EntityType = "inventory"
	EntityProduct   EntityType = "product"
	EntityGeneric   EntityType = "generic"
)

// ParseEntityType normalizes a free-form tag to a known entity type.
func ParseEntityType(s string) EntityType {
	switch EntityType(s) {
	case EntitySale:
		return EntitySale
	case EntityInventory:
		return EntityInventory
	case EntityProduct:
		return EntityProduct
	default:
		return EntityGeneric
	}
}

// Severity ranks how dangerous auto-resolving a conflict would be.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict type tags, free-form descriptive strings carried on each detected
// field conflict.
const (
	TypeGenericMismatch        = "generic_mismatch"
	TypeValueMismatch          = "value_mismatch"
	TypeArrayLengthMismatch    = "array_length_mismatch"
	TypeMissingLocalItem       = "missing_local_item"
	TypeMissingServerItem      = "missing_server_item"
	TypeItemMismatch           = "item_mismatch"
	TypeStockMismatch          = "stock_mismatch"
	TypeConcurrentModification = "concurrent_modification"
	TypeProductDataMismatch    = "product_data_mismatch"
	TypeTimestamp              = "timestamp"
)

// FieldConflict is one detected divergence on a single field.
type FieldConflict struct {
	Field    string      `json:"field"`
	Type     string      `json:"type"`
	Severity Severity    `json:"severity"`
	Local    interface{} `json:"local"`
	Server   interface{} `json:"server"`
}

// Strategy names how a conflict is settled.
type Strategy string

const (
	StrategyNoConflict Strategy = "no-conflict"
	StrategyClientWins Strategy = "client-wins"
	StrategyServerWins Strategy = "server-wins"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
)

// Suggestion is a recommended resolution with a confidence score.
type Suggestion struct {
	Strategy   Strategy `json:"strategy"`
	Confidence int      `json:"confidence"`
}
