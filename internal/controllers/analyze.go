package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/models"
	"github.com/rsharda/pharmagenie/internal/orchestrator"
)

// AnalyzeController handles analysis runs and cached record lookups.
type AnalyzeController struct {
	orchestrator *orchestrator.Orchestrator
	history      *models.HistoryService
	logger       *zap.SugaredLogger
}

// NewAnalyzeController creates a new AnalyzeController. history may be nil
// when no database is configured.
func NewAnalyzeController(orch *orchestrator.Orchestrator, history *models.HistoryService, logger *zap.SugaredLogger) *AnalyzeController {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AnalyzeController{
		orchestrator: orch,
		history:      history,
		logger:       logger,
	}
}

// analyzeRequest is the POST /api/analyze body.
type analyzeRequest struct {
	Subject string            `json:"subject"`
	Context map[string]string `json:"context,omitempty"`
	// ClientID ties progress events to an open websocket.
	ClientID string `json:"client_id,omitempty"`
}

// PostAnalyze runs a full multi-source analysis for a subject.
func (c *AnalyzeController) PostAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if req.ClientID != "" {
		ctx = orchestrator.WithClientID(ctx, req.ClientID)
	}

	rec, err := c.orchestrator.RunAnalysis(ctx, req.Subject, req.Context)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSubject) {
			writeError(w, http.StatusUnprocessableEntity, "subject must not be blank")
			return
		}
		c.logger.Errorw("analysis run failed", "subject", req.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	c.recordHistory(ctx, rec)

	writeJSON(w, http.StatusOK, rec)
}

// GetAnalysis returns a still-cached record by its cache key.
func (c *AnalyzeController) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing cache key")
		return
	}

	rec, ok := c.orchestrator.Record(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no cached analysis for key")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetSources lists the registered source agents.
func (c *AnalyzeController) GetSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": c.orchestrator.Sources(),
	})
}

// recordHistory persists a completed run. Failures are logged, never
// surfaced; the analysis itself already succeeded.
func (c *AnalyzeController) recordHistory(ctx context.Context, rec *models.AnalysisRecord) {
	if c.history == nil {
		return
	}
	if _, err := c.history.Record(ctx, rec); err != nil {
		if errors.Is(err, models.ErrDuplicateRun) {
			return
		}
		c.logger.Warnw("failed to record analysis history", "cache_key", rec.CacheKey, "error", err)
	}
}
