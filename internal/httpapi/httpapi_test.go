package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnexium/memory-substrate/internal/bus"
	"github.com/mnexium/memory-substrate/internal/claimorch"
	"github.com/mnexium/memory-substrate/internal/extraction"
	"github.com/mnexium/memory-substrate/internal/httpapi"
	"github.com/mnexium/memory-substrate/internal/llm"
	"github.com/mnexium/memory-substrate/internal/memoryorch"
	"github.com/mnexium/memory-substrate/internal/retrieval"
	"github.com/mnexium/memory-substrate/internal/storage/storagefake"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := storagefake.New()
	capability := llm.None()
	eventBus := bus.New()
	extractor := extraction.New(capability)
	claims := claimorch.New(store, capability)
	memories := memoryorch.New(store, capability, eventBus, extractor, claims)
	retrievalSvc := retrieval.New(store, capability, false)

	return httpapi.NewRouter(httpapi.Dependencies{
		Store:            store,
		Bus:              eventBus,
		Memories:         memories,
		Claims:           claims,
		Retrieval:        retrievalSvc,
		Extraction:       extractor,
		DefaultProjectID: "proj-default",
	})
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
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
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheckBypassesProjectMiddleware(t *testing.T) {
	handler := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingProjectIDDefaultsToConfigured(t *testing.T) {
	handler := newTestRouter(t)
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/memories", map[string]any{
		"subject_id": "alice",
		"text":       "likes coffee",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateMemoryThenGetRoundTrips(t *testing.T) {
	handler := newTestRouter(t)
	createRec := doRequest(t, handler, http.MethodPost, "/api/v1/memories", map[string]any{
		"subject_id": "alice",
		"text":       "likes coffee",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	id, ok := created["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	getRec := doRequest(t, handler, http.MethodGet, "/api/v1/memories/"+id, nil)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestCreateMemoryMissingTextReturns400(t *testing.T) {
	handler := newTestRouter(t)
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/memories", map[string]any{
		"subject_id": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownMemoryReturns404(t *testing.T) {
	handler := newTestRouter(t)
	rec := doRequest(t, handler, http.MethodGet, "/api/v1/memories/mem_nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteThenRestoreReportsMemoryDeleted(t *testing.T) {
	handler := newTestRouter(t)
	createRec := doRequest(t, handler, http.MethodPost, "/api/v1/memories", map[string]any{
		"subject_id": "bob",
		"text":       "works at acme",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	id := created["id"].(string)

	deleteRec := doRequest(t, handler, http.MethodDelete, "/api/v1/memories/"+id, nil)
	require.Equal(t, http.StatusOK, deleteRec.Code)

	// Restore undoes supersession, not soft-delete: a deleted memory is a
	// 400 memory_deleted, not a successful un-delete.
	restoreRec := doRequest(t, handler, http.MethodPost, "/api/v1/memories/"+id+"/restore", nil)
	require.Equal(t, http.StatusBadRequest, restoreRec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(restoreRec.Body.Bytes(), &body))
	assert.Equal(t, "memory_deleted", body["error"])
}

func TestClaimCreateRequiresPredicateAndObjectValue(t *testing.T) {
	handler := newTestRouter(t)
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/claims", map[string]any{
		"subject_id": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClaimCreateThenTruthShowsActiveClaim(t *testing.T) {
	handler := newTestRouter(t)
	createRec := doRequest(t, handler, http.MethodPost, "/api/v1/claims", map[string]any{
		"subject_id":   "alice",
		"predicate":    "favorite_color",
		"object_value": "blue",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)

	truthRec := doRequest(t, handler, http.MethodGet, "/api/v1/claims/subject/alice/truth", nil)
	require.Equal(t, http.StatusOK, truthRec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(truthRec.Body.Bytes(), &body))
	slots, ok := body["slots"].([]any)
	require.True(t, ok)
	require.Len(t, slots, 1)
}

func TestClaimRetractUnknownReturnsUnsuccessfulNot404(t *testing.T) {
	handler := newTestRouter(t)
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/claims/clm_missing/retract", map[string]any{"reason": "test"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestSearchRequiresQueryAndSubjectID(t *testing.T) {
	handler := newTestRouter(t)
	rec := doRequest(t, handler, http.MethodGet, "/api/v1/memories/search?subject_id=alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
