package agents

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/client"
	"github.com/rsharda/pharmagenie/internal/models"
)

// TrialsRegistryAgent queries the ClinicalTrials.gov v2 studies API.
type TrialsRegistryAgent struct {
	client   *client.Client
	store    *cache.Cache[Payload]
	logger   *zap.SugaredLogger
	pageSize int
}

// NewTrialsRegistryAgent creates the agent. The client should point at the
// registry root (https://clinicaltrials.gov).
func NewTrialsRegistryAgent(c *client.Client, store *cache.Cache[Payload], logger *zap.SugaredLogger) *TrialsRegistryAgent {
	return &TrialsRegistryAgent{client: c, store: store, logger: logger, pageSize: 20}
}

func (a *TrialsRegistryAgent) ID() string { return SourceTrialsRegistry }

func (a *TrialsRegistryAgent) Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult {
	subject = models.NormalizeSubject(subject)
	return fetch(ctx, a.ID(), a.store, a.logger, subject, qctx, func(ctx context.Context) (Payload, error) {
		return a.lookup(ctx, subject, qctx[ContextTherapeuticArea])
	})
}

type trialsResponse struct {
	TotalCount int `json:"totalCount"`
	Studies    []struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			StatusModule struct {
				OverallStatus  string `json:"overallStatus"`
				StartDateInfo  struct{ Date string `json:"date"` } `json:"startDateStruct"`
				CompletionInfo struct{ Date string `json:"date"` } `json:"completionDateStruct"`
			} `json:"statusModule"`
			DesignModule struct {
				Phases    []string `json:"phases"`
				StudyType string   `json:"studyType"`
			} `json:"designModule"`
			ConditionsModule struct {
				Conditions []string `json:"conditions"`
			} `json:"conditionsModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

func (a *TrialsRegistryAgent) lookup(ctx context.Context, subject, area string) (Payload, error) {
	params := url.Values{}
	params.Set("query.term", subject)
	if area != "" {
		params.Set("query.cond", area)
	}
	params.Set("pageSize", fmt.Sprint(a.pageSize))
	params.Set("countTotal", "true")

	var resp trialsResponse
	if err := a.client.RequestJSON(ctx, "/api/v2/studies", params, &resp); err != nil {
		if notFound(err) {
			return nil, models.ErrNoData
		}
		return nil, fmt.Errorf("studies search: %w", err)
	}
	if len(resp.Studies) == 0 {
		return nil, models.ErrNoData
	}

	trials := make([]map[string]any, 0, len(resp.Studies))
	phaseCounts := map[string]int{}
	for _, s := range resp.Studies {
		p := s.ProtocolSection
		phase := "N/A"
		if len(p.DesignModule.Phases) > 0 {
			phase = p.DesignModule.Phases[0]
		}
		phaseCounts[phase]++

		trials = append(trials, map[string]any{
			"nct_id":          p.IdentificationModule.NCTID,
			"title":           p.IdentificationModule.BriefTitle,
			"status":          p.StatusModule.OverallStatus,
			"phase":           phase,
			"study_type":      p.DesignModule.StudyType,
			"conditions":      strings.Join(p.ConditionsModule.Conditions, ", "),
			"start_date":      p.StatusModule.StartDateInfo.Date,
			"completion_date": p.StatusModule.CompletionInfo.Date,
			"url":             "https://clinicaltrials.gov/study/" + p.IdentificationModule.NCTID,
		})
	}

	return Payload{
		"trials":       trials,
		"total_count":  resp.TotalCount,
		"phase_counts": phaseCounts,
	}, nil
}
