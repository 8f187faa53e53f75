package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsharda/pharmagenie/internal/agents"
	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/models"
	"github.com/rsharda/pharmagenie/internal/orchestrator"
)

type fakeAgent struct {
	id     string
	status models.SourceStatus
}

func (f fakeAgent) ID() string { return f.id }

func (f fakeAgent) Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult {
	res := models.SourceResult{SourceID: f.id, Status: f.status, FetchedAt: time.Now().UTC()}
	if f.status == models.StatusSuccess {
		res.Payload = map[string]any{"subject": subject}
	}
	return res
}

func newTestRouter(sources ...agents.SourceAgent) (*chi.Mux, *orchestrator.Orchestrator) {
	orch := orchestrator.New(cache.New[*models.AnalysisRecord](time.Minute), nil, nil, orchestrator.DefaultConfig())
	for _, s := range sources {
		orch.Register(s)
	}
	ctrl := NewAnalyzeController(orch, nil, nil)

	r := chi.NewRouter()
	r.Post("/api/analyze", ctrl.PostAnalyze)
	r.Get("/api/analysis/{key}", ctrl.GetAnalysis)
	r.Get("/api/sources", ctrl.GetSources)
	return r, orch
}

func TestPostAnalyze(t *testing.T) {
	router, _ := newTestRouter(
		fakeAgent{id: "safety_events", status: models.StatusSuccess},
		fakeAgent{id: "literature", status: models.StatusEmpty},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"subject": "Metformin", "context": {"therapeutic_area": "diabetes"}}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var rec models.AnalysisRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "metformin", rec.Query.Subject)
	assert.Equal(t, models.RecordComplete, rec.OverallStatus)
	assert.Len(t, rec.Results, 2)
	assert.NotEmpty(t, rec.CacheKey)
}

func TestPostAnalyzeBlankSubject(t *testing.T) {
	router, _ := newTestRouter(fakeAgent{id: "a", status: models.StatusSuccess})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"subject": "   "}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "subject")
}

func TestPostAnalyzeMalformedBody(t *testing.T) {
	router, _ := newTestRouter(fakeAgent{id: "a", status: models.StatusSuccess})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{not json`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetAnalysis(t *testing.T) {
	router, orch := newTestRouter(fakeAgent{id: "a", status: models.StatusSuccess})

	rec, err := orch.RunAnalysis(context.Background(), "metformin", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/"+rec.CacheKey, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got models.AnalysisRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, rec.CacheKey, got.CacheKey)
}

func TestGetAnalysisMiss(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/nothing-here", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetSources(t *testing.T) {
	router, _ := newTestRouter(
		fakeAgent{id: "safety_events", status: models.StatusSuccess},
		fakeAgent{id: "trials_registry", status: models.StatusSuccess},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"safety_events", "trials_registry"}, resp.Sources)
}

func TestHistoryEndpointsWithoutDatabase(t *testing.T) {
	ctrl := NewHistoryController(nil, nil)
	r := chi.NewRouter()
	r.Get("/api/history", ctrl.GetHistory)
	r.Get("/api/history/stats", ctrl.GetStats)

	for _, path := range []string{"/api/history", "/api/history/stats"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	ctrl := NewHealthController(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	ctrl.GetHealth(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}
