package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/config"
	"github.com/rsharda/pharmagenie/internal/controllers"
	"github.com/rsharda/pharmagenie/internal/middleware"
	"github.com/rsharda/pharmagenie/internal/models"
	"github.com/rsharda/pharmagenie/internal/orchestrator"
	"github.com/rsharda/pharmagenie/internal/progress"
)

func buildRouter(
	cfg *config.Config,
	logger *zap.SugaredLogger,
	orch *orchestrator.Orchestrator,
	history *models.HistoryService,
	hub *progress.Hub,
	db *models.Database,
) http.Handler {
	analyzeCtrl := controllers.NewAnalyzeController(orch, history, logger)
	historyCtrl := controllers.NewHistoryController(history, logger)
	progressCtrl := controllers.NewProgressController(hub)
	healthCtrl := controllers.NewHealthController(db)

	authMw := middleware.NewAuthMiddleware(cfg.Security.APIKeyHash)
	if !authMw.Enabled() {
		logger.Infow("API key auth disabled")
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// ---- Public Routes ----
	r.Group(func(r chi.Router) {
		r.Get("/healthz", healthCtrl.GetHealth)
		r.Get("/ws/{clientID}", progressCtrl.Connect)
	})

	// ---- API Routes ----
	r.Group(func(r chi.Router) {
		r.Use(authMw.RequireAPIKey)
		// Analysis runs fan out to slow upstreams; give them room.
		r.Use(chimiddleware.Timeout(cfg.Analysis.Timeout + 30*time.Second))

		r.Post("/api/analyze", analyzeCtrl.PostAnalyze)
		r.Get("/api/analysis/{key}", analyzeCtrl.GetAnalysis)
		r.Get("/api/sources", analyzeCtrl.GetSources)

		r.Get("/api/history", historyCtrl.GetHistory)
		r.Get("/api/history/stats", historyCtrl.GetStats)
		r.Get("/api/history/{subject}", historyCtrl.GetBySubject)
	})

	return r
}
