package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/models"
)

// PatentLandscapeAgent produces a patent timeline and freedom-to-operate
// assessment. No public registry offers this as a single query, so the
// agent generates a deterministic landscape seeded from the subject; all
// figures for a given drug are stable across runs. A real registry backend
// would slot in behind the same Fetch contract.
type PatentLandscapeAgent struct {
	store  *cache.Cache[Payload]
	logger *zap.SugaredLogger
}

// NewPatentLandscapeAgent creates the agent.
func NewPatentLandscapeAgent(store *cache.Cache[Payload], logger *zap.SugaredLogger) *PatentLandscapeAgent {
	return &PatentLandscapeAgent{store: store, logger: logger}
}

func (a *PatentLandscapeAgent) ID() string { return SourcePatentLandscape }

func (a *PatentLandscapeAgent) Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult {
	subject = models.NormalizeSubject(subject)
	return fetch(ctx, a.ID(), a.store, a.logger, subject, qctx, func(context.Context) (Payload, error) {
		return a.landscape(subject), nil
	})
}

func (a *PatentLandscapeAgent) landscape(subject string) Payload {
	rng := seededRand(subject)
	now := time.Now()

	count := 2 + rng.IntN(14)
	timeline := make([]map[string]any, 0, count)
	active := 0
	var nextExpiry time.Time

	for i := 0; i < count; i++ {
		filed := time.Date(2005+rng.IntN(18), time.Month(1+rng.IntN(12)), 1+rng.IntN(28), 0, 0, 0, 0, time.UTC)
		expiry := filed.AddDate(20, 0, 0) // patents run 20 years from filing

		status := "Active"
		if expiry.Before(now) {
			status = "Expired"
		} else {
			active++
			if nextExpiry.IsZero() || expiry.Before(nextExpiry) {
				nextExpiry = expiry
			}
		}

		title := fmt.Sprintf("Composition and method for %s formulation", subject)
		if i%2 == 1 {
			title = fmt.Sprintf("Method of treating disease using %s", subject)
		}

		timeline = append(timeline, map[string]any{
			"patent_number": fmt.Sprintf("US%d%03d%03dB%d", 7+rng.IntN(5), rng.IntN(900)+100, rng.IntN(900)+100, 1+rng.IntN(2)),
			"filing_date":   filed.Format("2006-01-02"),
			"expiry_date":   expiry.Format("2006-01-02"),
			"status":        status,
			"title":         title,
		})
	}

	fto := a.freedomToOperate(timeline, nextExpiry, now)

	insights := []string{}
	if !nextExpiry.IsZero() {
		insights = append(insights, fmt.Sprintf("Key composition patent expires in %d, opening opportunities for generics.", nextExpiry.Year()))
	}
	switch fto {
	case "Low":
		insights = append(insights, "Low freedom to operate suggests high litigation risk for new market entrants.")
	case "Moderate":
		insights = append(insights, "Moderate freedom to operate indicates potential for licensing or partnerships.")
	default:
		insights = append(insights, "High freedom to operate suggests a favorable environment for new product development.")
	}

	payload := Payload{
		"active_patents":     active,
		"freedom_to_operate": fto,
		"patent_timeline":    timeline,
		"key_insights":       insights,
	}
	if !nextExpiry.IsZero() {
		payload["next_expiry"] = nextExpiry.Year()
	}
	return payload
}

func (a *PatentLandscapeAgent) freedomToOperate(timeline []map[string]any, nextExpiry time.Time, now time.Time) string {
	activeCore := 0
	for _, p := range timeline {
		if p["status"] == "Active" && strings.Contains(strings.ToLower(p["title"].(string)), "composition") {
			activeCore++
		}
	}
	switch {
	case activeCore == 0:
		return "High"
	case activeCore <= 2 && !nextExpiry.IsZero() && nextExpiry.Year()-now.Year() < 3:
		return "Moderate"
	default:
		return "Low"
	}
}
