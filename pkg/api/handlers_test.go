package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/dgreene/pulse/pkg/analytics"
	"github.com/dgreene/pulse/pkg/cache"
	"github.com/dgreene/pulse/pkg/ingest"
	"github.com/dgreene/pulse/pkg/notify"
	"github.com/dgreene/pulse/pkg/observability"
)

// stubExecutor returns canned rows for every analytical query
type stubExecutor struct {
	rows []analytics.Row
	err  error
}

func (e *stubExecutor) Execute(ctx context.Context, query string, args []interface{}, timeout time.Duration) ([]analytics.Row, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.rows, nil
}

type testServer struct {
	server *Server
	mock   sqlmock.Sqlmock
	mr     *miniredis.Miniredis
	exec   *stubExecutor
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	store, err := cache.NewRedisStore(cache.Config{URL: "redis://" + mr.Addr(), DB: -1})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	catalog, err := analytics.NewCatalog(30 * time.Second)
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	exec := &stubExecutor{rows: []analytics.Row{{"event_count": float64(42)}}}
	svc := analytics.NewService(catalog, exec, store, logger, nil)
	hub := notify.NewHub(logger, nil)
	refresher := analytics.NewRefresher(db, store, hub, 5*time.Minute, logger, nil)
	ingestStore := ingest.NewStore(db, logger)

	server := NewServer(svc, refresher, ingestStore, hub, db, store, logger, nil)
	return &testServer{server: server, mock: mock, mr: mr, exec: exec}
}

func doRequest(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestRootEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "GET", "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["version"] != apiVersion {
		t.Errorf("Expected version %s, got %s", apiVersion, body["version"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %s", body["status"])
	}
}

func TestHealthReportsCacheOutage(t *testing.T) {
	ts := setupTestServer(t)

	ts.mr.Close()

	w := doRequest(t, ts.server, "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with cache down, got %d", w.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "GET", "/analytics/dashboard", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("Response is not a JSON array: %v", err)
	}
	if len(rows) != 1 || rows[0]["event_count"] != float64(42) {
		t.Errorf("Unexpected payload: %v", rows)
	}

	// Default hours populate the standard cache key
	if !ts.mr.Exists("dashboard_metrics:24") {
		t.Error("Expected default parameterization to be cached")
	}
}

func TestDashboardRejectsOutOfRangeHours(t *testing.T) {
	ts := setupTestServer(t)

	for _, path := range []string{
		"/analytics/dashboard?hours=0",
		"/analytics/dashboard?hours=169",
		"/analytics/dashboard?hours=abc",
	} {
		w := doRequest(t, ts.server, "GET", path, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestCohortEndpointPassesSourceFilter(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "GET", "/analytics/cohorts?weeks=8&source=google", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !ts.mr.Exists("cohort_analysis:8:google") {
		t.Error("Expected source-qualified cache key")
	}
}

func TestQueryTimeoutMapsTo504(t *testing.T) {
	ts := setupTestServer(t)
	ts.exec.err = context.DeadlineExceeded

	w := doRequest(t, ts.server, "GET", "/analytics/revenue", "")
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("Expected 504 for query timeout, got %d", w.Code)
	}
}

func TestCustomQueryEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "POST", "/analytics/custom-query", `{"query_type":"top_products"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &res)
	if res["query_type"] != "top_products" {
		t.Errorf("Expected query_type top_products, got %v", res["query_type"])
	}
}

func TestCustomQueryRejections(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "POST", "/analytics/custom-query", `{"query_type":"DROP TABLE users"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown query type, got %d", w.Code)
	}

	w = doRequest(t, ts.server, "POST", "/analytics/custom-query", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing query_type, got %d", w.Code)
	}

	w = doRequest(t, ts.server, "POST", "/analytics/custom-query", `{broken`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestRealtimeEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	ts.mr.Set("active_users:now", "7")

	w := doRequest(t, ts.server, "GET", "/analytics/realtime", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var m map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &m)
	if m["active_users_now"] != float64(7) {
		t.Errorf("Expected 7 active users, got %v", m["active_users_now"])
	}
	if m["orders_last_hour"] != float64(0) {
		t.Errorf("Expected zero default for absent counter, got %v", m["orders_last_hour"])
	}
}

func TestManualRefreshEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	ts.mr.Set("dashboard_metrics:24", "stale")
	ts.mock.ExpectExec("SELECT refresh_dashboard_views").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := doRequest(t, ts.server, "POST", "/admin/refresh-views", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ts.mr.Exists("dashboard_metrics:24") {
		t.Error("Expected manual refresh to invalidate dependent keys")
	}

	status := doRequest(t, ts.server, "GET", "/admin/refresh-status", "")
	var st map[string]interface{}
	json.Unmarshal(status.Body.Bytes(), &st)
	if st["state"] != "idle" {
		t.Errorf("Expected idle state, got %v", st["state"])
	}
	if st["run_count"] != float64(1) {
		t.Errorf("Expected run_count 1, got %v", st["run_count"])
	}
}

func TestCreateEventEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	sessionID := uuid.New()
	eventID := uuid.New()
	ts.mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(eventID, time.Now()))

	body := `{"session_id":"` + sessionID.String() + `","event_type":"page_view","page_path":"/pricing"}`
	w := doRequest(t, ts.server, "POST", "/events", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var receipt map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &receipt)
	if receipt["id"] != eventID.String() {
		t.Errorf("Expected event id %s, got %v", eventID, receipt["id"])
	}
}

func TestCreateEventValidation(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "POST", "/events", `{"event_type":"page_view"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing session_id, got %d", w.Code)
	}

	w = doRequest(t, ts.server, "POST", "/events", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	orderID := uuid.New()
	ts.mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(orderID, time.Now()))

	w := doRequest(t, ts.server, "POST", "/orders", `{"order_number":"ORD-7","amount":"19.99","items_count":1}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateOrderValidation(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(t, ts.server, "POST", "/orders", `{"order_number":"ORD-7","amount":"0"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-positive amount, got %d", w.Code)
	}
}
