package conflict

import (
	"context"
	"encoding/json"

	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/logging"
	"github.com/warungkita/possync/internal/models"
	"github.com/warungkita/possync/internal/offline"
)

// localAuthoritativeFields are overlaid from the local snapshot during a
// merge: they only ever originate on the device, the server copy is at best
// an echo.
var localAuthoritativeFields = []string{"notes", "localModifications", "offlineChanges"}

// SuggestResolution recommends a strategy for a detected conflict list.
// High-severity conflicts are never auto-resolved.
func SuggestResolution(conflicts []FieldConflict, entity EntityType) Suggestion {
	if len(conflicts) == 0 {
		return Suggestion{Strategy: StrategyNoConflict, Confidence: 100}
	}

	for _, c := range conflicts {
		if c.Severity == SeverityHigh {
			return Suggestion{Strategy: StrategyManual, Confidence: 90}
		}
	}

	if allTimestamps(conflicts) {
		strategy := StrategyServerWins
		for _, c := range conflicts {
			lv, lok := toMillis(c.Local)
			sv, sok := toMillis(c.Server)
			if lok && sok && lv > sv {
				strategy = StrategyClientWins
				break
			}
		}
		return Suggestion{Strategy: strategy, Confidence: 80}
	}

	switch ParseEntityType(string(entity)) {
	case EntitySale:
		// Offline sales are trusted over a possibly stale server snapshot.
		return Suggestion{Strategy: StrategyClientWins, Confidence: 70}
	case EntityInventory:
		// The server is the authority for concurrently updated stock.
		return Suggestion{Strategy: StrategyServerWins, Confidence: 70}
	default:
		return Suggestion{Strategy: StrategyManual, Confidence: 60}
	}
}

func allTimestamps(conflicts []FieldConflict) bool {
	for _, c := range conflicts {
		if c.Type != TypeTimestamp {
			return false
		}
	}
	return true
}

// Apply produces the resolved data for a strategy without touching storage.
func Apply(strategy Strategy, local, server, manual map[string]interface{}) (map[string]interface{}, error) {
	switch strategy {
	case StrategyClientWins:
		return local, nil
	case StrategyServerWins:
		return server, nil
	case StrategyMerge:
		return merge(local, server), nil
	case StrategyManual:
		if manual == nil {
			return nil, apperrors.New(apperrors.ErrMissingManualResolution,
				"manual strategy requires caller-supplied data")
		}
		return manual, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrUnknownStrategy, "unknown resolution strategy %q", strategy)
	}
}

// merge builds a field-level merge: the server snapshot is the base, locally
// authoritative fields are overlaid, array fields become the union of both
// sides, and updatedAt takes the larger value.
func merge(local, server map[string]interface{}) map[string]interface{} {
	resolved := deepCopy(server)

	for _, field := range localAuthoritativeFields {
		if v, ok := local[field]; ok {
			resolved[field] = v
		}
	}

	for key, sv := range server {
		sarr, sok := sv.([]interface{})
		larr, lok := local[key].([]interface{})
		if !sok || !lok {
			continue
		}
		resolved[key] = unionArrays(sarr, larr)
	}

	lv, lok := toMillis(local["updatedAt"])
	sv, sok := toMillis(server["updatedAt"])
	if lok && sok && lv > sv {
		resolved["updatedAt"] = local["updatedAt"]
	}

	return resolved
}

// unionArrays keeps server items in order and appends local items not already
// present, compared by deep equality.
func unionArrays(server, local []interface{}) []interface{} {
	out := make([]interface{}, len(server))
	copy(out, server)

	for _, lv := range local {
		found := false
		for _, sv := range server {
			if jsonEqual(lv, sv) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, lv)
		}
	}

	return out
}

func deepCopy(m map[string]interface{}) map[string]interface{} {
	data, err := json.Marshal(m)
	if err != nil {
		// Snapshots always originate from JSON, so this cannot fire for
		// well-formed input; fall back to a shallow copy.
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return m
	}
	return out
}

// Resolver settles stored conflicts through the offline data service.
type Resolver struct {
	svc *offline.Service
}

// NewResolver creates a Resolver over the offline data service.
func NewResolver(svc *offline.Service) *Resolver {
	return &Resolver{svc: svc}
}

// Resolve applies a strategy to a stored conflict, marks it resolved and
// returns the resolved data. Writing the resolved data back to the remote
// store is the caller's responsibility.
func (r *Resolver) Resolve(ctx context.Context, id string, strategy Strategy, manual map[string]interface{}) (map[string]interface{}, error) {
	stored, ok, err := r.svc.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "conflict %q not found", id)
	}

	resolved, err := Apply(strategy, stored.LocalData, stored.ServerData, manual)
	if err != nil {
		return nil, err
	}

	if err := r.svc.ResolveConflict(ctx, id, models.Resolution{
		Strategy: string(strategy),
		Data:     resolved,
	}); err != nil {
		return nil, err
	}

	logging.Info("conflict resolved", map[string]interface{}{
		"conflict_id": id,
		"strategy":    string(strategy),
	})

	return resolved, nil
}

// Suggest recommends a strategy for a stored conflict by re-running detection
// on its snapshots.
func (r *Resolver) Suggest(ctx context.Context, id string) (Suggestion, []FieldConflict, error) {
	stored, ok, err := r.svc.GetConflict(ctx, id)
	if err != nil {
		return Suggestion{}, nil, err
	}
	if !ok {
		return Suggestion{}, nil, apperrors.Newf(apperrors.ErrNotFound, "conflict %q not found", id)
	}

	entity := ParseEntityType(stored.EntityType)
	conflicts := Detect(entity, stored.LocalData, stored.ServerData)
	return SuggestResolution(conflicts, entity), conflicts, nil
}
