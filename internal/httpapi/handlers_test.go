package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/warungkita/possync/internal/db"
	"github.com/warungkita/possync/internal/models"
	"github.com/warungkita/possync/internal/offline"
	syncpkg "github.com/warungkita/possync/internal/sync"
	"github.com/warungkita/possync/internal/sync/conflict"
)

type fakeRemote struct {
	failIDs map[string]bool
}

func (f *fakeRemote) ReplaySale(ctx context.Context, sale *models.PendingSale) error {
	if f.failIDs[sale.ID] {
		return fmt.Errorf("upstream rejected %s", sale.ID)
	}
	return nil
}

func (f *fakeRemote) ReplayInventory(ctx context.Context, update *models.PendingInventoryUpdate) error {
	if f.failIDs[update.ID] {
		return fmt.Errorf("upstream rejected %s", update.ID)
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *offline.Service) {
	t.Helper()

	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := offline.NewService(store)
	runner := syncpkg.NewRunner(svc, &fakeRemote{}, nil)
	resolver := conflict.NewResolver(svc)
	return NewServer(svc, runner, resolver, nil), svc
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreateAndListSales(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sales", map[string]interface{}{
		"payload": map[string]interface{}{"total": 150.0, "items": []interface{}{}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	if created["id"] == "" || created["id"] == nil {
		t.Error("created sale has no id")
	}
	if created["syncStatus"] != "pending" {
		t.Errorf("syncStatus = %v, want pending", created["syncStatus"])
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sales", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sales status = %d", rec.Code)
	}
	listed := decodeBody(t, rec)
	if listed["total"] != float64(1) {
		t.Errorf("total = %v, want 1", listed["total"])
	}
}

func TestCreateSaleValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sales", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing payload status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader([]byte("{not json")))
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec2.Code)
	}
}

func TestCreateInventoryUpdate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/inventory", map[string]interface{}{
		"productId": "prod-1",
		"type":      "restock",
		"payload":   map[string]interface{}{"quantity": 20},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create inventory status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	if created["productId"] != "prod-1" {
		t.Errorf("productId = %v", created["productId"])
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/inventory", map[string]interface{}{
		"productId": "prod-1",
		"type":      "refund",
		"payload":   map[string]interface{}{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", rec.Code)
	}
}

func TestTriggerSyncPass(t *testing.T) {
	srv, svc := newTestServer(t)

	if _, err := svc.StorePendingSale(context.Background(), map[string]interface{}{"total": 10.0}); err != nil {
		t.Fatalf("failed to seed sale: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sync/sales", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, body %s", rec.Code, rec.Body.String())
	}
	result := decodeBody(t, rec)
	if result["completed"] != float64(1) {
		t.Errorf("completed = %v, want 1", result["completed"])
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sync/nonsense", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown tag status = %d, want 400", rec.Code)
	}
}

func TestRetrySaleEndpoint(t *testing.T) {
	srv, svc := newTestServer(t)

	ctx := context.Background()
	sale, err := svc.StorePendingSale(ctx, map[string]interface{}{"total": 10.0})
	if err != nil {
		t.Fatalf("failed to seed sale: %v", err)
	}
	if err := svc.UpdateSaleStatus(ctx, sale.ID, models.SyncStateFailed, "remote rejected"); err != nil {
		t.Fatalf("failed to fail sale: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sales/"+sale.ID+"/retry", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sales/missing/retry", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("retry missing status = %d, want 404", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, svc := newTestServer(t)

	ctx := context.Background()
	if _, err := svc.StorePendingSale(ctx, map[string]interface{}{"total": 10.0}); err != nil {
		t.Fatalf("failed to seed sale: %v", err)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/sync/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats := decodeBody(t, rec)
	if stats["pendingSales"] != float64(1) {
		t.Errorf("pendingSales = %v, want 1", stats["pendingSales"])
	}
}

func TestConflictEndpoints(t *testing.T) {
	srv, svc := newTestServer(t)

	ctx := context.Background()
	stored, err := svc.StoreConflict(ctx, "inventory", "prod-7",
		map[string]interface{}{"quantity": float64(5), "updatedAt": float64(100)},
		map[string]interface{}{"quantity": float64(9), "updatedAt": float64(200)},
		"stock_mismatch")
	if err != nil {
		t.Fatalf("failed to seed conflict: %v", err)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/conflicts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list conflicts status = %d", rec.Code)
	}
	if decodeBody(t, rec)["total"] != float64(1) {
		t.Fatal("expected one unresolved conflict")
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/conflicts/"+stored.ID+"/suggestion", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("suggestion status = %d, body %s", rec.Code, rec.Body.String())
	}
	suggestion := decodeBody(t, rec)["suggestion"].(map[string]interface{})
	if suggestion["strategy"] != "manual" {
		t.Errorf("suggested strategy = %v, want manual", suggestion["strategy"])
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/conflicts/"+stored.ID+"/resolve", map[string]interface{}{
		"strategy": "server-wins",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %s", rec.Code, rec.Body.String())
	}
	resolved := decodeBody(t, rec)["data"].(map[string]interface{})
	if resolved["quantity"] != float64(9) {
		t.Errorf("resolved quantity = %v, want 9", resolved["quantity"])
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/conflicts", nil)
	if decodeBody(t, rec)["total"] != float64(0) {
		t.Error("conflict still listed after resolution")
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/conflicts/missing/resolve", map[string]interface{}{
		"strategy": "server-wins",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("resolve missing status = %d, want 404", rec.Code)
	}
}

func TestResolveManualRequiresData(t *testing.T) {
	srv, svc := newTestServer(t)

	stored, err := svc.StoreConflict(context.Background(), "sale", "s-1",
		map[string]interface{}{"total": float64(1)},
		map[string]interface{}{"total": float64(2)},
		"value_mismatch")
	if err != nil {
		t.Fatalf("failed to seed conflict: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/conflicts/"+stored.ID+"/resolve", map[string]interface{}{
		"strategy": "manual",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("manual without data status = %d, want 400", rec.Code)
	}
}

func TestMaintenanceAndClear(t *testing.T) {
	srv, svc := newTestServer(t)

	ctx := context.Background()
	if _, err := svc.StorePendingSale(ctx, map[string]interface{}{"total": 10.0}); err != nil {
		t.Fatalf("failed to seed sale: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/maintenance/cleanup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sales", nil)
	if decodeBody(t, rec)["total"] != float64(0) {
		t.Error("pending sales remain after clear")
	}
}

func TestOnlineEndpointWithoutScheduler(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/sync/online", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get online status = %d", rec.Code)
	}
	if decodeBody(t, rec)["online"] != true {
		t.Error("expected online default true")
	}

	online := true
	rec = doJSON(t, srv, http.MethodPut, "/api/v1/sync/online", map[string]interface{}{"online": &online})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("set online without scheduler status = %d, want 400", rec.Code)
	}
}
