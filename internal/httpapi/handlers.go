package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/models"
	syncpkg "github.com/warungkita/possync/internal/sync"
	"github.com/warungkita/possync/internal/sync/conflict"
)

type createSaleRequest struct {
	Payload map[string]interface{} `json:"payload" validate:"required"`
}

type createInventoryRequest struct {
	ProductID string                 `json:"productId" validate:"required"`
	Type      string                 `json:"type" validate:"required,oneof=adjustment restock sale"`
	Payload   map[string]interface{} `json:"payload" validate:"required"`
}

type resolveConflictRequest struct {
	Strategy string                 `json:"strategy" validate:"required,oneof=client-wins server-wins merge manual"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type setOnlineRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// CreateSale handles POST /api/v1/sales.
func (s *Server) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	sale, err := s.svc.StorePendingSale(r.Context(), req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// ListPendingSales handles GET /api/v1/sales.
func (s *Server) ListPendingSales(w http.ResponseWriter, r *http.Request) {
	sales, err := s.svc.GetPendingSales(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": sales,
		"total": len(sales),
	})
}

// RetrySale handles POST /api/v1/sales/{id}/retry.
func (s *Server) RetrySale(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.RetrySale(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.SyncStatePending})
}

// CreateInventoryUpdate handles POST /api/v1/inventory.
func (s *Server) CreateInventoryUpdate(w http.ResponseWriter, r *http.Request) {
	var req createInventoryRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	update, err := s.svc.StorePendingInventoryUpdate(r.Context(), req.ProductID, models.InventoryUpdateType(req.Type), req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, update)
}

// ListPendingInventory handles GET /api/v1/inventory.
func (s *Server) ListPendingInventory(w http.ResponseWriter, r *http.Request) {
	updates, err := s.svc.GetPendingInventoryUpdates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": updates,
		"total": len(updates),
	})
}

// RetryInventory handles POST /api/v1/inventory/{id}/retry.
func (s *Server) RetryInventory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.RetryInventory(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": models.SyncStatePending})
}

// GetStats handles GET /api/v1/sync/stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetSyncStats(r.Context()))
}

// GetQueue handles GET /api/v1/sync/queue. The status query parameter
// defaults to pending.
func (s *Server) GetQueue(w http.ResponseWriter, r *http.Request) {
	status := models.QueueStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.QueueStatusPending
	}

	items, err := s.svc.GetSyncQueue(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// TriggerSync handles POST /api/v1/sync/{tag}. The pass runs synchronously
// and the result is returned; a pass already in flight reports skipped.
func (s *Server) TriggerSync(w http.ResponseWriter, r *http.Request) {
	tag := syncpkg.Tag(mux.Vars(r)["tag"])

	result, err := s.runner.Sync(r.Context(), tag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetOnline handles GET /api/v1/sync/online.
func (s *Server) GetOnline(w http.ResponseWriter, r *http.Request) {
	online := true
	if s.scheduler != nil {
		online = s.scheduler.Online()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": online})
}

// SetOnline handles PUT /api/v1/sync/online. The UI flips this when the
// device's connectivity changes; coming back online triggers a sync pass.
func (s *Server) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req setOnlineRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	if s.scheduler == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "background sync is not running"))
		return
	}
	s.scheduler.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": *req.Online})
}

// ListConflicts handles GET /api/v1/conflicts.
func (s *Server) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.svc.GetUnresolvedConflicts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": conflicts,
		"total": len(conflicts),
	})
}

// SuggestResolution handles GET /api/v1/conflicts/{id}/suggestion.
func (s *Server) SuggestResolution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	suggestion, fields, err := s.resolver.Suggest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestion": suggestion,
		"conflicts":  fields,
	})
}

// ResolveConflict handles POST /api/v1/conflicts/{id}/resolve.
func (s *Server) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req resolveConflictRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	resolved, err := s.resolver.Resolve(r.Context(), id, conflict.Strategy(req.Strategy), req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"strategy": req.Strategy,
		"data":     resolved,
	})
}

// RunCleanup handles POST /api/v1/maintenance/cleanup.
func (s *Server) RunCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CleanupSyncedData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "completed"})
}

// ClearPending handles DELETE /api/v1/pending. Destructive: drops every
// pending record, queue item and conflict.
func (s *Server) ClearPending(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearAllPendingData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "cleared"})
}
