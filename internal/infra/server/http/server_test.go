package httpserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/indexbasket/basketcore/internal/app/coordinator"
	"github.com/indexbasket/basketcore/internal/app/router"
	"github.com/indexbasket/basketcore/internal/domain/basket"
	memstore "github.com/indexbasket/basketcore/internal/infra/persistence/memory"
)

func newTestServer(t *testing.T) (http.Handler, *router.MemoryDeadLetter) {
	t.Helper()
	coord, err := coordinator.New(memstore.NewStore(), nil, coordinator.Hooks{}, coordinator.Config{})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Close(ctx)
	})

	dead := router.NewMemoryDeadLetter(8)
	adapters := map[router.Channel]router.Adapter{}
	return NewHandler(coord, adapters, dead, nil), dead
}

func definitionJSON() map[string]any {
	return map[string]any{
		"code":          "TECH_BASKET",
		"name":          "Tech Basket",
		"type":          "EQUITY",
		"base_currency": "USD",
		"constituents": []map[string]any{
			{"symbol": "AAPL", "weight": "60.00"},
			{"symbol": "MSFT", "weight": "40.00"},
		},
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createBasket(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := postJSON(t, handler, "/baskets", map[string]any{
		"requester":  map[string]any{"id": "alice"},
		"definition": definitionJSON(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp coordinator.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != coordinator.StatusAccepted || resp.BasketState == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	return resp.BasketState.ID
}

func TestCreateAndGetBasket(t *testing.T) {
	handler, _ := newTestServer(t)
	id := createBasket(t, handler)

	rec := get(t, handler, "/baskets/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d: %s", rec.Code, rec.Body.String())
	}
	var snap basket.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Status != basket.StatusDraft || snap.Version != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSubmitCommandAndHistory(t *testing.T) {
	handler, _ := newTestServer(t)
	id := createBasket(t, handler)

	rec := postJSON(t, handler, "/baskets/"+id+"/commands", map[string]any{
		"operation":  "MODIFY",
		"requester":  map[string]any{"id": "alice"},
		"definition": definitionJSON(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("command returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = get(t, handler, "/baskets/"+id+"/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(payload.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(payload.Events))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	handler, _ := newTestServer(t)
	id := createBasket(t, handler)

	// Invalid transition from DRAFT.
	rec := postJSON(t, handler, "/baskets/"+id+"/commands", map[string]any{
		"operation": "SUBMIT",
		"requester": map[string]any{"id": "alice"},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition returned %d, want 409", rec.Code)
	}

	// Unknown basket.
	rec = get(t, handler, "/baskets/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing basket returned %d, want 404", rec.Code)
	}

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/baskets", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body returned %d, want 400", w.Code)
	}
}

func TestGuardRejectionReturnsForbidden(t *testing.T) {
	handler, _ := newTestServer(t)
	id := createBasket(t, handler)

	// Shrink the basket below the backtest minimum, then trigger one.
	rec := postJSON(t, handler, "/baskets/"+id+"/commands", map[string]any{
		"operation": "MODIFY",
		"requester": map[string]any{"id": "alice"},
		"definition": map[string]any{
			"code":          "TECH_BASKET",
			"name":          "Tech Basket",
			"type":          "EQUITY",
			"base_currency": "USD",
			"constituents": []map[string]any{
				{"symbol": "AAPL", "weight": "100.00"},
			},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("modify returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, handler, "/baskets/"+id+"/commands", map[string]any{
		"operation": "TRIGGER_BACKTEST",
		"requester": map[string]any{"id": "alice"},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("guard rejection returned %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestChannelsAndDeadLetters(t *testing.T) {
	handler, dead := newTestServer(t)

	rec := get(t, handler, "/channels")
	if rec.Code != http.StatusOK {
		t.Fatalf("channels returned %d", rec.Code)
	}

	dead.Sink(router.Notification{EventID: "evt-1", BasketID: "b-1"}, router.ChannelRPC, 3, nil)
	rec = get(t, handler, "/deadletters")
	if rec.Code != http.StatusOK {
		t.Fatalf("deadletters returned %d", rec.Code)
	}
	var payload struct {
		DeadLetters []router.DeadLetterEntry `json:"deadletters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode deadletters: %v", err)
	}
	if len(payload.DeadLetters) != 1 || payload.DeadLetters[0].Notification.EventID != "evt-1" {
		t.Fatalf("unexpected deadletters: %+v", payload.DeadLetters)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/baskets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow == "" {
		t.Fatal("Allow header missing")
	}
}
