package agents

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/models"
)

// InternalKnowledgeAgent answers from the org's own R&D memory: previous
// research projects touching the drug and a strategic-fit assessment.
// There is no external upstream yet; profiles are generated once per
// subject, deterministically, and held in memory so repeated queries are
// consistent within a process. A real knowledge-base backend would replace
// profileFor without touching the contract.
type InternalKnowledgeAgent struct {
	store  *cache.Cache[Payload]
	logger *zap.SugaredLogger

	mu       sync.Mutex
	profiles map[string]Payload
}

// NewInternalKnowledgeAgent creates the agent.
func NewInternalKnowledgeAgent(store *cache.Cache[Payload], logger *zap.SugaredLogger) *InternalKnowledgeAgent {
	return &InternalKnowledgeAgent{store: store, logger: logger, profiles: make(map[string]Payload)}
}

func (a *InternalKnowledgeAgent) ID() string { return SourceInternalKnowledge }

func (a *InternalKnowledgeAgent) Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult {
	subject = models.NormalizeSubject(subject)
	return fetch(ctx, a.ID(), a.store, a.logger, subject, qctx, func(context.Context) (Payload, error) {
		return a.profileFor(subject), nil
	})
}

func (a *InternalKnowledgeAgent) profileFor(subject string) Payload {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.profiles[subject]; ok {
		return p
	}

	rng := seededRand(subject)
	teams := []string{"Oncology", "Cardiology", "Neurology", "Immunology"}
	states := []string{"Completed", "On-Hold", "Pitched", "In-Progress"}

	numProjects := rng.IntN(5)
	projects := make([]map[string]any, 0, numProjects)
	for i := 0; i < numProjects; i++ {
		team := teams[rng.IntN(len(teams))]
		status := states[rng.IntN(len(states))]
		projects = append(projects, map[string]any{
			"title":   fmt.Sprintf("%s Research Project #%d", team, 100+rng.IntN(900)),
			"date":    fmt.Sprintf("%d-Q%d", 2018+rng.IntN(6), 1+rng.IntN(4)),
			"status":  status,
			"summary": fmt.Sprintf("Project in %s exploring %s for a novel indication. Status: %s.", team, subject, status),
		})
	}

	score := 30 + rng.IntN(66)
	level, rationale := "Low", "Does not align with our primary therapeutic areas. Represents a diversification opportunity."
	switch {
	case score > 75:
		level = "High"
		rationale = fmt.Sprintf("Strongly aligns with our current focus on the %s pipeline.", teams[rng.IntN(len(teams))])
	case score > 50:
		level = "Medium"
		rationale = "Potential alignment with future strategic interests, but not a current top priority."
	}

	p := Payload{
		"previous_research": projects,
		"strategic_fit": map[string]any{
			"level":     level,
			"score":     score,
			"rationale": rationale,
		},
		"key_insights": []string{
			fmt.Sprintf("A total of %d internal projects related to %s have been identified.", numProjects, subject),
			fmt.Sprintf("Strategic fit score of %d/100 suggests a %s priority for further investment.", score, level),
		},
	}
	a.profiles[subject] = p
	return p
}
