// Package agents holds the per-provider source agents. Every agent wraps
// exactly one upstream data provider behind the same contract: Fetch takes
// a subject and free-form context and returns a SourceResult, always. An
// agent never panics and never returns an error; failures are folded into
// the result envelope.
package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/client"
	"github.com/rsharda/pharmagenie/internal/models"
)

// Source ids, one per registered agent.
const (
	SourceSafetyEvents       = "safety_events"
	SourceTrialsRegistry     = "trials_registry"
	SourceMarketIntelligence = "market_intelligence"
	SourcePatentLandscape    = "patent_landscape"
	SourceLiterature         = "literature"
	SourceInternalKnowledge  = "internal_knowledge"
)

// ContextTherapeuticArea is the query-context key agents consult to narrow
// a lookup to one therapeutic area.
const ContextTherapeuticArea = "therapeutic_area"

// SourceAgent is the uniform contract the orchestrator dispatches against.
type SourceAgent interface {
	// ID returns the stable source id used as the result map key.
	ID() string
	// Fetch collects data about subject. It must honor ctx cancellation
	// and must not panic; any failure is reported through the result's
	// Status and ErrorMessage.
	Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult
}

// Payload is the opaque per-provider result shape.
type Payload = map[string]any

// fetch is the shared envelope logic all agents run through: cache lookup,
// panic containment, and error-to-status mapping. lookup does the actual
// provider call and may return models.ErrNoData for an empty upstream
// answer.
func fetch(ctx context.Context, id string, store *cache.Cache[Payload], logger *zap.SugaredLogger,
	subject string, qctx map[string]string, lookup func(context.Context) (Payload, error)) (res models.SourceResult) {

	res = models.SourceResult{SourceID: id, FetchedAt: time.Now().UTC()}

	// The store may be shared across agents; the id prefix keeps each
	// agent's namespace to itself.
	key := id + ":" + models.NewQuery(subject, qctx).CacheKey()
	if payload, ok := store.Get(key); ok {
		res.Status = models.StatusSuccess
		res.Payload = payload
		return res
	}

	// The contract says Fetch never raises; a panicking parser or provider
	// bug becomes an Error result.
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("source agent panicked", "source", id, "subject", subject, "panic", r)
			res.Status = models.StatusError
			res.Payload = nil
			res.ErrorMessage = fmt.Sprintf("internal fault: %v", r)
		}
	}()

	payload, err := lookup(ctx)
	switch {
	case err == nil:
		res.Status = models.StatusSuccess
		res.Payload = payload
		store.Set(key, payload)
	case errors.Is(err, models.ErrNoData):
		res.Status = models.StatusEmpty
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		res.Status = models.StatusTimeout
		res.ErrorMessage = err.Error()
	default:
		logger.Warnw("source fetch failed", "source", id, "subject", subject, "error", err)
		res.Status = models.StatusError
		res.ErrorMessage = err.Error()
	}
	return res
}

// notFound reports whether err is an upstream 404. Some providers (openFDA
// among them) signal "no matching records" that way, which is Empty in our
// taxonomy, not Error.
func notFound(err error) bool {
	var ce *client.ClientError
	return errors.As(err, &ce) && ce.Status == http.StatusNotFound
}
