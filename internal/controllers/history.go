package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/models"
)

// HistoryController serves persisted analysis runs.
type HistoryController struct {
	history *models.HistoryService
	logger  *zap.SugaredLogger
}

func NewHistoryController(history *models.HistoryService, logger *zap.SugaredLogger) *HistoryController {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HistoryController{history: history, logger: logger}
}

// GetHistory returns recent analysis runs, newest first.
// Accepts ?limit=N, clamped by the service.
func (c *HistoryController) GetHistory(w http.ResponseWriter, r *http.Request) {
	if c.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := c.history.Recent(r.Context(), limit)
	if err != nil {
		c.logger.Errorw("failed to load history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  entries,
		"count": len(entries),
	})
}

// GetBySubject returns the most recent run for one subject.
func (c *HistoryController) GetBySubject(w http.ResponseWriter, r *http.Request) {
	if c.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	subject := chi.URLParam(r, "subject")
	entry, err := c.history.BySubject(r.Context(), subject)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "no runs for subject")
			return
		}
		c.logger.Errorw("failed to load run", "subject", subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// GetStats returns aggregate run counts grouped by overall status.
func (c *HistoryController) GetStats(w http.ResponseWriter, r *http.Request) {
	if c.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	counts, err := c.history.CountByStatus(r.Context())
	if err != nil {
		c.logger.Errorw("failed to load stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"by_status": counts})
}
