// Package httpapi exposes the offline sync subsystem to the local UI over a
// REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	apperrors "github.com/warungkita/possync/internal/errors"
	"github.com/warungkita/possync/internal/logging"
	"github.com/warungkita/possync/internal/offline"
	syncpkg "github.com/warungkita/possync/internal/sync"
	"github.com/warungkita/possync/internal/sync/conflict"
	"github.com/warungkita/possync/internal/sync/scheduler"
)

// Server holds the handlers' dependencies and builds the route table.
type Server struct {
	svc       *offline.Service
	runner    *syncpkg.Runner
	resolver  *conflict.Resolver
	scheduler *scheduler.Scheduler
	validate  *validator.Validate
}

// NewServer creates a Server over the sync subsystem's components. The
// scheduler may be nil when the process runs storage-only.
func NewServer(svc *offline.Service, runner *syncpkg.Runner, resolver *conflict.Resolver, sched *scheduler.Scheduler) *Server {
	return &Server{
		svc:       svc,
		runner:    runner,
		resolver:  resolver,
		scheduler: sched,
		validate:  validator.New(),
	}
}

// Router builds the API route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sales", s.CreateSale).Methods(http.MethodPost)
	api.HandleFunc("/sales", s.ListPendingSales).Methods(http.MethodGet)
	api.HandleFunc("/sales/{id}/retry", s.RetrySale).Methods(http.MethodPost)

	api.HandleFunc("/inventory", s.CreateInventoryUpdate).Methods(http.MethodPost)
	api.HandleFunc("/inventory", s.ListPendingInventory).Methods(http.MethodGet)
	api.HandleFunc("/inventory/{id}/retry", s.RetryInventory).Methods(http.MethodPost)

	api.HandleFunc("/sync/stats", s.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/sync/queue", s.GetQueue).Methods(http.MethodGet)
	api.HandleFunc("/sync/online", s.GetOnline).Methods(http.MethodGet)
	api.HandleFunc("/sync/online", s.SetOnline).Methods(http.MethodPut)
	api.HandleFunc("/sync/{tag}", s.TriggerSync).Methods(http.MethodPost)

	api.HandleFunc("/conflicts", s.ListConflicts).Methods(http.MethodGet)
	api.HandleFunc("/conflicts/{id}/suggestion", s.SuggestResolution).Methods(http.MethodGet)
	api.HandleFunc("/conflicts/{id}/resolve", s.ResolveConflict).Methods(http.MethodPost)

	api.HandleFunc("/maintenance/cleanup", s.RunCleanup).Methods(http.MethodPost)
	api.HandleFunc("/pending", s.ClearPending).Methods(http.MethodDelete)

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

// writeError maps application error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.ErrInternal

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		switch appErr.Code {
		case apperrors.ErrNotFound:
			status = http.StatusNotFound
		case apperrors.ErrInvalid, apperrors.ErrValidation,
			apperrors.ErrMissingManualResolution, apperrors.ErrUnknownStrategy:
			status = http.StatusBadRequest
		case apperrors.ErrDuplicateKey:
			status = http.StatusConflict
		case apperrors.ErrStorageUnavailable:
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(code),
			"message": err.Error(),
		},
	})
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "request validation failed", err))
		return false
	}
	return true
}
