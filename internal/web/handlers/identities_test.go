package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facein/facein/internal/face"
)

func TestIdentities_List(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})

	rec := httptest.NewRecorder()
	NewIdentitiesHandler(app).List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	assertStatusCode(t, rec, http.StatusOK)
	var resp struct {
		Count      int               `json:"count"`
		Identities []IdentitySummary `json:"identities"`
	}
	parseJSONResponse(t, rec, &resp)

	if resp.Count != 1 || len(resp.Identities) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	id := resp.Identities[0]
	if id.Name != "Alice" || id.EmbeddingCount != 1 || id.Class != "10" {
		t.Errorf("identity = %+v", id)
	}
	if id.MeanQuality <= 0 {
		t.Error("mean quality should be positive for an accepted enrollment")
	}
}

func TestIdentities_Get(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})
	handler := NewIdentitiesHandler(app)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/identities/alice", nil),
		map[string]string{"name": "alice"},
	)
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var id IdentitySummary
	parseJSONResponse(t, rec, &id)
	if id.Name != "Alice" {
		t.Errorf("normalized lookup returned %+v", id)
	}
}

func TestIdentities_GetUnknown(t *testing.T) {
	app := testApp(t, nil)
	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/identities/nobody", nil),
		map[string]string{"name": "nobody"},
	)
	rec := httptest.NewRecorder()
	NewIdentitiesHandler(app).Get(rec, req)
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestIdentities_DeleteRebuildsIndex(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})
	if app.Index.Count() != 1 {
		t.Fatalf("index count = %d before delete", app.Index.Count())
	}

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodDelete, "/api/v1/identities/Alice", nil),
		map[string]string{"name": "Alice"},
	)
	rec := httptest.NewRecorder()
	NewIdentitiesHandler(app).Delete(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	if app.Store.Count() != 0 {
		t.Error("identity still in store")
	}
	if _, ok := app.Roster.Get("Alice"); ok {
		t.Error("roster entry still present")
	}
	if app.Index.Count() != 0 {
		t.Errorf("index count = %d after delete, want 0 (rebuild)", app.Index.Count())
	}
}

func TestIdentities_DeleteUnknown(t *testing.T) {
	app := testApp(t, nil)
	req := requestWithChiParams(
		httptest.NewRequest(http.MethodDelete, "/api/v1/identities/nobody", nil),
		map[string]string{"name": "nobody"},
	)
	rec := httptest.NewRecorder()
	NewIdentitiesHandler(app).Delete(rec, req)
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestIdentities_ClearKeepsLedger(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})
	if _, err := app.Ledger.RecordIfNew("Alice", 0.9, app.now()); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	NewIdentitiesHandler(app).Clear(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/identities", nil))

	assertStatusCode(t, rec, http.StatusOK)
	var resp map[string]int
	parseJSONResponse(t, rec, &resp)
	if resp["removed"] != 1 {
		t.Errorf("removed = %d", resp["removed"])
	}
	if app.Store.Count() != 0 || app.Roster.Len() != 0 || app.Index.Count() != 0 {
		t.Error("clear left state behind")
	}
	if records, _ := app.Ledger.Records(ledgerFilterAll()); len(records) != 1 {
		t.Error("attendance history must survive an identity clear")
	}
}
