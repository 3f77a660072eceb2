package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskward/taskward/internal/app/bulk"
	"github.com/taskward/taskward/internal/app/search"
	"github.com/taskward/taskward/internal/cache/memory"
	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/server"
	"github.com/taskward/taskward/internal/storage/sqlite"
)

func newTestServices(t *testing.T) (*bulk.Service, *search.Service) {
	t.Helper()

	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	memCache, err := memory.NewCache(memory.CacheConfig{})
	require.NoError(t, err)

	bulkSvc, err := bulk.NewService(bulk.ServiceConfig{
		TaskRepository:      repo,
		OperationRepository: repo,
		Cache:               memCache,
	})
	require.NoError(t, err)

	searchSvc, err := search.NewService(search.ServiceConfig{
		TaskRepository: repo,
		Cache:          memCache,
	})
	require.NoError(t, err)

	return bulkSvc, searchSvc
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	bulkSvc, searchSvc := newTestServices(t)
	srv, err := server.New(server.Config{
		BulkService:   bulkSvc,
		SearchService: searchSvc,
	})
	require.NoError(t, err)

	return srv.Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestHealthzDegraded(t *testing.T) {
	bulkSvc, searchSvc := newTestServices(t)
	srv, err := server.New(server.Config{
		BulkService:   bulkSvc,
		SearchService: searchSvc,
		HealthCheck: func(context.Context) error {
			return errors.New("cache down")
		},
	})
	require.NoError(t, err)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestIdentityRequired(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/search/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/search/tasks", "not-a-number", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/search/tasks", "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBulkCreateEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/bulk/create", "1", map[string]any{
		"tasks": []map[string]any{
			{"title": "first", "priority": "high"},
			{"title": "second"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "create", body["operation_type"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(2), body["processed_items"])
	assert.Equal(t, float64(100), body["progress_percentage"])
	assert.Equal(t, true, body["can_undo"])
	assert.Len(t, body["tasks"], 2)
}

func TestBulkCreateEndpointValidation(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/bulk/create", "1", map[string]any{
		"tasks": []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/api/bulk/create", "1", map[string]any{
		"tasks": []map[string]any{{"title": ""}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkLifecycleOverHTTP(t *testing.T) {
	handler := newTestServer(t)

	// Create.
	rec := doRequest(t, handler, http.MethodPost, "/api/bulk/create", "1", map[string]any{
		"tasks": []map[string]any{{"title": "a"}, {"title": "b"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	ids := make([]float64, 0, 2)
	for _, raw := range created["tasks"].([]any) {
		ids = append(ids, raw.(map[string]any)["id"].(float64))
	}

	// Complete both.
	rec = doRequest(t, handler, http.MethodPut, "/api/bulk/status", "1", map[string]any{
		"task_ids":  ids,
		"completed": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	statusOp := decode(t, rec)
	assert.Equal(t, float64(2), statusOp["processed_items"])

	// Operation status lookup.
	rec = doRequest(t, handler, http.MethodGet, "/api/bulk/status/"+statusOp["operation_id"].(string), "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Other users cannot see it.
	rec = doRequest(t, handler, http.MethodGet, "/api/bulk/status/"+statusOp["operation_id"].(string), "2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Undo the status change.
	rec = doRequest(t, handler, http.MethodPost, "/api/bulk/undo", "1", map[string]any{
		"operation_id": statusOp["operation_id"],
	})
	require.Equal(t, http.StatusOK, rec.Code)
	undone := decode(t, rec)
	assert.Equal(t, float64(2), undone["processed_items"])

	// A second undo of the same operation conflicts.
	rec = doRequest(t, handler, http.MethodPost, "/api/bulk/undo", "1", map[string]any{
		"operation_id": statusOp["operation_id"],
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// History lists both operations.
	rec = doRequest(t, handler, http.MethodGet, "/api/bulk/undo/history", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 2)
}

func TestSearchEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/bulk/create", "1", map[string]any{
		"tasks": []map[string]any{
			{"title": "Buy milk", "priority": "high"},
			{"title": "Call dentist"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/search/tasks?q=milk", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["total"])

	rec = doRequest(t, handler, http.MethodGet, "/api/search/tasks?priorities=high&page=1&size=10", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["total"])

	// POST body variant.
	rec = doRequest(t, handler, http.MethodPost, "/api/search/tasks", "1", map[string]any{
		"query": "dentist",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["total"])

	// Invalid filter values are rejected.
	rec = doRequest(t, handler, http.MethodGet, "/api/search/tasks?completed=maybe", "1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/search/tasks?priorities=urgent", "1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestionsAndStatsEndpoints(t *testing.T) {
	handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/bulk/create", "1", map[string]any{
		"tasks": []map[string]any{{"title": "Groceries run"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/search/suggestions?q=grocer", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["suggestions"], "Groceries run")

	rec = doRequest(t, handler, http.MethodGet, "/api/search/stats", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["total_tasks"])
	assert.Equal(t, float64(1), body["pending"])
}
