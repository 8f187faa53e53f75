package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rsharda/pharmagenie/internal/agents"
	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/client"
	"github.com/rsharda/pharmagenie/internal/config"
	"github.com/rsharda/pharmagenie/internal/models"
	"github.com/rsharda/pharmagenie/internal/orchestrator"
	"github.com/rsharda/pharmagenie/internal/progress"
	"github.com/rsharda/pharmagenie/migrations"
)

func main() {
	cfg := config.MustLoad()

	logger, err := buildLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Fatalw("server exited", "error", err)
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stdout"}
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database is optional; without it the service still runs, just
	// without persisted history.
	var db *models.Database
	var history *models.HistoryService
	if cfg.Database.URL != "" {
		logger.Infow("connecting to database")
		if err := models.MigrateFS(cfg.Database.URL, migrations.FS, "."); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}

		var err error
		db, err = models.NewDatabase(ctx, models.DefaultDatabaseConfig(cfg.Database.URL))
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		history = models.NewHistoryService(db.Pool)
		logger.Infow("database connected")
	} else {
		logger.Infow("no DATABASE_URL set, history persistence disabled")
	}

	// Per-source payload cache, shared across agents.
	sourceCache := cache.New[agents.Payload](cfg.Cache.SourceTTL)

	safetyClient := client.New(client.Config{
		BaseURL:     cfg.Sources.SafetyBaseURL,
		MinInterval: cfg.Client.MinInterval,
		MaxRetries:  cfg.Client.MaxRetries,
		BackoffBase: cfg.Client.BackoffBase,
		Timeout:     cfg.Client.RequestTimeout,
	}, logger)

	trialsClient := client.New(client.Config{
		BaseURL:     cfg.Sources.TrialsBaseURL,
		MinInterval: cfg.Client.TrialsMinInterval,
		MaxRetries:  cfg.Client.MaxRetries,
		BackoffBase: cfg.Client.BackoffBase,
		Timeout:     cfg.Client.RequestTimeout,
	}, logger)

	literatureClient := client.New(client.Config{
		BaseURL:     cfg.Sources.LiteratureBaseURL,
		MinInterval: cfg.Client.MinInterval,
		MaxRetries:  cfg.Client.MaxRetries,
		BackoffBase: cfg.Client.BackoffBase,
		Timeout:     cfg.Client.RequestTimeout,
	}, logger)

	// A market client only exists when an endpoint is configured;
	// otherwise the agent serves deterministic simulated data.
	var marketClient *client.Client
	if cfg.Sources.MarketBaseURL != "" {
		oauthCfg := clientcredentials.Config{
			ClientID:     "pharmagenie",
			ClientSecret: cfg.Sources.MarketAPIToken,
			TokenURL:     cfg.Sources.MarketBaseURL + "/oauth/token",
		}
		marketClient = client.New(client.Config{
			BaseURL:     cfg.Sources.MarketBaseURL,
			MinInterval: cfg.Client.MinInterval,
			MaxRetries:  cfg.Client.MaxRetries,
			BackoffBase: cfg.Client.BackoffBase,
			Timeout:     cfg.Client.RequestTimeout,
			HTTPClient:  oauthCfg.Client(ctx),
		}, logger)
	}

	hub := progress.NewHub(logger)

	records := cache.New[*models.AnalysisRecord](cfg.Cache.RecordTTL)
	orch := orchestrator.New(records, hub, logger, orchestrator.Config{
		Timeout:         cfg.Analysis.Timeout,
		FailedRecordTTL: cfg.Cache.FailedRecordTTL,
	})

	orch.Register(agents.NewSafetyEventsAgent(safetyClient, sourceCache, logger))
	orch.Register(agents.NewTrialsRegistryAgent(trialsClient, sourceCache, logger))
	orch.Register(agents.NewMarketIntelligenceAgent(marketClient, sourceCache, logger))
	orch.Register(agents.NewPatentLandscapeAgent(sourceCache, logger))
	orch.Register(agents.NewLiteratureAgent(literatureClient, sourceCache, cfg.Sources.NewsFeedURL, logger))
	orch.Register(agents.NewInternalKnowledgeAgent(sourceCache, logger))

	router := buildRouter(cfg, logger, orch, history, hub, db)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "address", cfg.Server.Address, "sources", orch.Sources())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
