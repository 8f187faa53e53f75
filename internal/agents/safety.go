package agents

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/client"
	"github.com/rsharda/pharmagenie/internal/models"
)

// SafetyEventsAgent queries the openFDA drug event and enforcement
// endpoints for adverse reaction frequencies and recall notices.
type SafetyEventsAgent struct {
	client *client.Client
	store  *cache.Cache[Payload]
	logger *zap.SugaredLogger
	limit  int
}

// NewSafetyEventsAgent creates the agent. The client should point at the
// openFDA root (https://api.fda.gov).
func NewSafetyEventsAgent(c *client.Client, store *cache.Cache[Payload], logger *zap.SugaredLogger) *SafetyEventsAgent {
	return &SafetyEventsAgent{client: c, store: store, logger: logger, limit: 25}
}

func (a *SafetyEventsAgent) ID() string { return SourceSafetyEvents }

func (a *SafetyEventsAgent) Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult {
	subject = models.NormalizeSubject(subject)
	return fetch(ctx, a.ID(), a.store, a.logger, subject, qctx, func(ctx context.Context) (Payload, error) {
		return a.lookup(ctx, subject)
	})
}

type fdaCountResponse struct {
	Results []struct {
		Term  string `json:"term"`
		Count int    `json:"count"`
	} `json:"results"`
}

type fdaEnforcementResponse struct {
	Results []struct {
		RecallNumber    string `json:"recall_number"`
		ReasonForRecall string `json:"reason_for_recall"`
		Status          string `json:"status"`
		Classification  string `json:"classification"`
		RecallingFirm   string `json:"recalling_firm"`
		ReportDate      string `json:"report_date"`
	} `json:"results"`
}

func (a *SafetyEventsAgent) lookup(ctx context.Context, subject string) (Payload, error) {
	// Reaction frequencies across adverse event reports mentioning the drug.
	params := url.Values{}
	params.Set("search", fmt.Sprintf(`patient.drug.medicinalproduct:"%s"`, subject))
	params.Set("count", "patient.reaction.reactionmeddrapt.exact")
	params.Set("limit", fmt.Sprint(a.limit))

	var events fdaCountResponse
	err := a.client.RequestJSON(ctx, "/drug/event.json", params, &events)
	if err != nil && !notFound(err) {
		return nil, fmt.Errorf("adverse events: %w", err)
	}

	// Recall notices are optional color; a miss here never fails the agent.
	recallParams := url.Values{}
	recallParams.Set("search", fmt.Sprintf(`product_description:"%s"`, subject))
	recallParams.Set("limit", "10")

	var enforcement fdaEnforcementResponse
	if rerr := a.client.RequestJSON(ctx, "/drug/enforcement.json", recallParams, &enforcement); rerr != nil && !notFound(rerr) {
		a.logger.Warnw("enforcement lookup failed", "subject", subject, "error", rerr)
	}

	if len(events.Results) == 0 && len(enforcement.Results) == 0 {
		return nil, models.ErrNoData
	}

	reactions := make([]map[string]any, 0, len(events.Results))
	total := 0
	for _, r := range events.Results {
		reactions = append(reactions, map[string]any{"term": r.Term, "count": r.Count})
		total += r.Count
	}

	recalls := make([]map[string]any, 0, len(enforcement.Results))
	for _, r := range enforcement.Results {
		recalls = append(recalls, map[string]any{
			"recall_number":  r.RecallNumber,
			"reason":         r.ReasonForRecall,
			"status":         r.Status,
			"classification": r.Classification,
			"recalling_firm": r.RecallingFirm,
			"report_date":    r.ReportDate,
		})
	}

	return Payload{
		"reactions":     reactions,
		"total_reports": total,
		"recalls":       recalls,
	}, nil
}
