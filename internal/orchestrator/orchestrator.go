// Package orchestrator runs one aggregation pass: fan out to every
// registered source agent concurrently, wait for all of them, and fold the
// per-source envelopes into a single AnalysisRecord. Individual source
// failures never escape this boundary; the record's overall status is the
// only aggregate health signal callers see.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rsharda/pharmagenie/internal/agents"
	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/models"
	"github.com/rsharda/pharmagenie/internal/progress"
)

type ctxKey int

const clientIDKey ctxKey = iota

// WithClientID returns a context naming the progress channel client the
// run should report to. Carried on the context, not the query, so it never
// leaks into cache keys. Without it events go to a throwaway run id.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

func clientIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey).(string)
	return id
}

// Config holds orchestrator settings.
type Config struct {
	// Timeout is the overall deadline applied to a run whose caller
	// context carries none. Zero means no implicit deadline.
	Timeout time.Duration
	// FailedRecordTTL bounds how long an all-sources-failed record is
	// served from cache. Short on purpose: it shields a dead source set
	// from being hammered while letting recovery show up quickly.
	FailedRecordTTL time.Duration
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		Timeout:         2 * time.Minute,
		FailedRecordTTL: 30 * time.Second,
	}
}

// Orchestrator coordinates the registered source agents and the
// record-level cache.
type Orchestrator struct {
	agents   []agents.SourceAgent
	records  *cache.Cache[*models.AnalysisRecord]
	reporter progress.Reporter
	logger   *zap.SugaredLogger
	cfg      Config
}

// New creates an Orchestrator. reporter may be nil, in which case events
// are discarded.
func New(records *cache.Cache[*models.AnalysisRecord], reporter progress.Reporter, logger *zap.SugaredLogger, cfg Config) *Orchestrator {
	if reporter == nil {
		reporter = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.FailedRecordTTL <= 0 {
		cfg.FailedRecordTTL = DefaultConfig().FailedRecordTTL
	}
	return &Orchestrator{
		records:  records,
		reporter: reporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// Register adds a source agent. Not safe to call concurrently with
// RunAnalysis; register everything during wiring.
func (o *Orchestrator) Register(a agents.SourceAgent) {
	o.agents = append(o.agents, a)
}

// Record returns a still-cached analysis record by its cache key.
func (o *Orchestrator) Record(key string) (*models.AnalysisRecord, bool) {
	return o.records.Get(key)
}

// Sources returns the ids of the registered agents.
func (o *Orchestrator) Sources() []string {
	ids := make([]string, 0, len(o.agents))
	for _, a := range o.agents {
		ids = append(ids, a.ID())
	}
	return ids
}

// RunAnalysis aggregates every registered source for the subject. The only
// error it returns is ErrInvalidSubject; every other failure mode is folded
// into the returned record. Within the record TTL, repeat calls are served
// from cache without touching any source.
func (o *Orchestrator) RunAnalysis(ctx context.Context, subject string, qctx map[string]string) (rec *models.AnalysisRecord, err error) {
	q := models.NewQuery(subject, qctx)
	if !q.IsValid() {
		return nil, models.ErrInvalidSubject
	}
	key := q.CacheKey()

	// Failures outside the per-source contract still yield a record
	// rather than propagating; the caller learns about them through
	// OverallStatus and Note.
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorw("orchestration fault", "subject", q.Subject, "panic", r)
			rec = models.NewAnalysisRecord(q, nil)
			rec.OverallStatus = models.RecordFailed
			rec.Note = fmt.Sprintf("orchestration fault: %v", r)
			err = nil
		}
	}()

	if cached, ok := o.records.Get(key); ok {
		o.logger.Infow("serving cached analysis", "subject", q.Subject, "cache_key", key)
		return cached, nil
	}

	clientID := clientIDFrom(ctx)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	if o.cfg.Timeout > 0 {
		if _, has := ctx.Deadline(); !has {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
			defer cancel()
		}
	}

	o.publish(clientID, 10, progress.StageStarted, fmt.Sprintf("Starting analysis for %s", q.Subject))
	o.logger.Infow("starting analysis", "subject", q.Subject, "sources", len(o.agents))
	start := time.Now()

	results := make(map[string]models.SourceResult, len(o.agents))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	for _, a := range o.agents {
		a := a
		eg.Go(func() error {
			res := o.dispatch(egCtx, a, q)
			mu.Lock()
			results[res.SourceID] = res
			mu.Unlock()
			return nil
		})
	}
	// Tasks never return errors; Wait is purely a barrier. No source
	// completes early on another's failure.
	_ = eg.Wait()

	o.publish(clientID, 60, progress.StageFanOutComplete, "Gathered data from all sources")
	o.publish(clientID, 80, progress.StageFinalizing, "Assembling analysis record")

	rec = models.NewAnalysisRecord(q, results)

	if rec.IsFailed() {
		o.records.SetTTL(key, rec, o.cfg.FailedRecordTTL)
	} else {
		o.records.Set(key, rec)
	}

	o.publish(clientID, 100, progress.StageDone, "Analysis complete")
	o.logger.Infow("analysis complete",
		"subject", q.Subject,
		"status", rec.OverallStatus,
		"successes", rec.SuccessCount(),
		"elapsed", time.Since(start),
	)
	return rec, nil
}

// dispatch runs one agent with panic containment and deadline mapping.
// Agents are contractually panic-free and deadline-aware; this is the
// defensive boundary for the ones that are not.
func (o *Orchestrator) dispatch(ctx context.Context, a agents.SourceAgent, q models.Query) models.SourceResult {
	done := make(chan models.SourceResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Errorw("agent escaped its panic guard", "source", a.ID(), "panic", r)
				done <- models.SourceResult{
					SourceID:     a.ID(),
					Status:       models.StatusError,
					FetchedAt:    time.Now().UTC(),
					ErrorMessage: fmt.Sprintf("internal fault: %v", r),
				}
			}
		}()
		done <- a.Fetch(ctx, q.Subject, q.Context)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		// The run's deadline expired; abandon the in-flight fetch and
		// record the source as timed out. The goroutine drains into the
		// buffered channel once its client notices the cancellation.
		return models.SourceResult{
			SourceID:     a.ID(),
			Status:       models.StatusTimeout,
			FetchedAt:    time.Now().UTC(),
			ErrorMessage: ctx.Err().Error(),
		}
	}
}

func (o *Orchestrator) publish(clientID string, percent int, status, message string) {
	o.reporter.Publish(clientID, progress.NewEvent(percent, status, message))
}
