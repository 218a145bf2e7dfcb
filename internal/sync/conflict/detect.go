package conflict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// concurrentWindowMillis is how close two lastModified stamps must be for an
// inventory divergence to count as a concurrent modification.
const concurrentWindowMillis = 60_000

// Detect compares the local and server versions of one entity and returns a
// field-level conflict list. Equality is deep: snapshots come off the JSON
// wire as maps and slices, where Go's == is not defined, so values are
// compared by their canonical JSON encoding.
func Detect(entity EntityType, local, server map[string]interface{}) []FieldConflict {
	var conflicts []FieldConflict

	switch ParseEntityType(string(entity)) {
	case EntitySale:
		conflicts = detectSale(local, server)
	case EntityInventory:
		conflicts = detectInventory(local, server)
	case EntityProduct:
		conflicts = detectProduct(local, server)
	case EntityGeneric:
		conflicts = detectGeneric(local, server)
	}

	// A diverging updatedAt is reported for every entity kind, on top of the
	// entity-specific checks.
	if c, ok := timestampConflict(local, server); ok {
		conflicts = append(conflicts, c)
	}

	return conflicts
}

func detectGeneric(local, server map[string]interface{}) []FieldConflict {
	keys := map[string]bool{}
	for k := range local {
		keys[k] = true
	}
	for k := range server {
		keys[k] = true
	}

	// id and createdAt never conflict; updatedAt is covered by the shared
	// timestamp check.
	delete(keys, "id")
	delete(keys, "createdAt")
	delete(keys, "updatedAt")

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var conflicts []FieldConflict
	for _, k := range sorted {
		if fieldDiffers(local, server, k) {
			conflicts = append(conflicts, FieldConflict{
				Field:    k,
				Type:     TypeGenericMismatch,
				Severity: SeverityMedium,
				Local:    local[k],
				Server:   server[k],
			})
		}
	}

	return conflicts
}

func detectSale(local, server map[string]interface{}) []FieldConflict {
	var conflicts []FieldConflict

	for _, field := range []string{"total", "items", "paymentMethod"} {
		if fieldDiffers(local, server, field) {
			conflicts = append(conflicts, FieldConflict{
				Field:    field,
				Type:     TypeValueMismatch,
				Severity: SeverityHigh,
				Local:    local[field],
				Server:   server[field],
			})
		}
	}

	localItems, lok := local["items"].([]interface{})
	serverItems, sok := server["items"].([]interface{})
	if lok && sok {
		conflicts = append(conflicts, compareItems(localItems, serverItems)...)
	}

	return conflicts
}

// compareItems does a positional walk over both item arrays.
func compareItems(local, server []interface{}) []FieldConflict {
	var conflicts []FieldConflict

	if len(local) != len(server) {
		conflicts = append(conflicts, FieldConflict{
			Field:    "items",
			Type:     TypeArrayLengthMismatch,
			Severity: SeverityHigh,
			Local:    len(local),
			Server:   len(server),
		})
	}

	max := len(local)
	if len(server) > max {
		max = len(server)
	}

	for i := 0; i < max; i++ {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case i >= len(local):
			conflicts = append(conflicts, FieldConflict{
				Field:    field,
				Type:     TypeMissingLocalItem,
				Severity: SeverityHigh,
				Server:   server[i],
			})
		case i >= len(server):
			conflicts = append(conflicts, FieldConflict{
				Field:    field,
				Type:     TypeMissingServerItem,
				Severity: SeverityHigh,
				Local:    local[i],
			})
		case !jsonEqual(local[i], server[i]):
			conflicts = append(conflicts, FieldConflict{
				Field:    field,
				Type:     TypeItemMismatch,
				Severity: SeverityHigh,
				Local:    local[i],
				Server:   server[i],
			})
		}
	}

	return conflicts
}

func detectInventory(local, server map[string]interface{}) []FieldConflict {
	var conflicts []FieldConflict

	if fieldDiffers(local, server, "quantity") {
		conflicts = append(conflicts, FieldConflict{
			Field:    "quantity",
			Type:     TypeStockMismatch,
			Severity: SeverityHigh,
			Local:    local["quantity"],
			Server:   server["quantity"],
		})
	}

	// Two writers touching the same stock within a minute of each other is
	// suspicious even when the values happen to agree.
	lm, lok := toMillis(local["lastModified"])
	sm, sok := toMillis(server["lastModified"])
	if lok && sok {
		diff := lm - sm
		if diff < 0 {
			diff = -diff
		}
		if diff <= concurrentWindowMillis {
			conflicts = append(conflicts, FieldConflict{
				Field:    "lastModified",
				Type:     TypeConcurrentModification,
				Severity: SeverityHigh,
				Local:    local["lastModified"],
				Server:   server["lastModified"],
			})
		}
	}

	return conflicts
}

func detectProduct(local, server map[string]interface{}) []FieldConflict {
	var conflicts []FieldConflict

	for _, field := range []string{"name", "price", "barcode", "category"} {
		if !fieldDiffers(local, server, field) {
			continue
		}
		severity := SeverityMedium
		if field == "price" {
			severity = SeverityHigh
		}
		conflicts = append(conflicts, FieldConflict{
			Field:    field,
			Type:     TypeProductDataMismatch,
			Severity: severity,
			Local:    local[field],
			Server:   server[field],
		})
	}

	return conflicts
}

func timestampConflict(local, server map[string]interface{}) (FieldConflict, bool) {
	_, lok := local["updatedAt"]
	_, sok := server["updatedAt"]
	if !lok && !sok {
		return FieldConflict{}, false
	}
	if jsonEqual(local["updatedAt"], server["updatedAt"]) {
		return FieldConflict{}, false
	}

	return FieldConflict{
		Field:    "updatedAt",
		Type:     TypeTimestamp,
		Severity: SeverityMedium,
		Local:    local["updatedAt"],
		Server:   server["updatedAt"],
	}, true
}

// fieldDiffers reports whether the two snapshots disagree on a field. A field
// absent on both sides never differs; absent on one side does.
func fieldDiffers(local, server map[string]interface{}, key string) bool {
	lv, lok := local[key]
	sv, sok := server[key]
	if !lok && !sok {
		return false
	}
	if lok != sok {
		return true
	}
	return !jsonEqual(lv, sv)
}

// jsonEqual compares two values by canonical JSON encoding. This makes 1 and
// 1.0 equal and handles maps and slices, which is exactly the equality the
// JSON-shaped snapshots need.
func jsonEqual(a, b interface{}) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

// toMillis coerces the numeric shapes a JSON decode can produce into epoch
// millis.
func toMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
