package agents

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/client"
	"github.com/rsharda/pharmagenie/internal/models"
)

// MarketIntelligenceAgent reports commercial signals for a drug. When a
// live provider client is supplied it queries that upstream; without one it
// falls back to a deterministic simulation seeded from the subject, so the
// same drug always yields the same figures. The real upstream contract is
// undefined; swapping the backend only means passing a different client.
type MarketIntelligenceAgent struct {
	client *client.Client // nil means simulate
	store  *cache.Cache[Payload]
	logger *zap.SugaredLogger
}

// NewMarketIntelligenceAgent creates the agent. c may be nil.
func NewMarketIntelligenceAgent(c *client.Client, store *cache.Cache[Payload], logger *zap.SugaredLogger) *MarketIntelligenceAgent {
	return &MarketIntelligenceAgent{client: c, store: store, logger: logger}
}

func (a *MarketIntelligenceAgent) ID() string { return SourceMarketIntelligence }

func (a *MarketIntelligenceAgent) Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult {
	subject = models.NormalizeSubject(subject)
	return fetch(ctx, a.ID(), a.store, a.logger, subject, qctx, func(ctx context.Context) (Payload, error) {
		if a.client != nil {
			return a.lookupLive(ctx, subject, qctx[ContextTherapeuticArea])
		}
		return a.simulate(subject, qctx[ContextTherapeuticArea]), nil
	})
}

func (a *MarketIntelligenceAgent) lookupLive(ctx context.Context, subject, area string) (Payload, error) {
	params := url.Values{}
	params.Set("drug", subject)
	if area != "" {
		params.Set("therapeutic_area", area)
	}

	var payload Payload
	if err := a.client.RequestJSON(ctx, "/v1/market/insights", params, &payload); err != nil {
		if notFound(err) {
			return nil, models.ErrNoData
		}
		return nil, fmt.Errorf("market insights: %w", err)
	}
	if len(payload) == 0 {
		return nil, models.ErrNoData
	}
	return payload, nil
}

// seededRand returns a generator whose sequence depends only on the subject.
func seededRand(subject string) *rand.Rand {
	var seed uint64
	for _, c := range subject {
		seed += uint64(c)
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func (a *MarketIntelligenceAgent) simulate(subject, area string) Payload {
	rng := seededRand(subject)

	size := 0.3 + rng.Float64()*9.5 // billions USD
	cagr := 1.5 + rng.Float64()*9.0
	trend := [...]string{"growing", "stable", "declining"}[rng.IntN(3)]

	regions := []string{"North America", "Europe", "Asia-Pacific", "Latin America"}
	keyMarkets := make([]map[string]any, 0, 3)
	for i := 0; i < 3; i++ {
		keyMarkets = append(keyMarkets, map[string]any{
			"region": regions[(rng.IntN(len(regions)))],
			"share":  fmt.Sprintf("%.1f%%", 10+rng.Float64()*35),
		})
	}

	if area == "" {
		area = "various therapeutic areas"
	}
	insights := []string{
		fmt.Sprintf("Demand for %s in %s is %s.", subject, area, trend),
		fmt.Sprintf("Projected CAGR of %.1f%% through the forecast window.", cagr),
		fmt.Sprintf("Generic competition expected around %d.", time.Now().Year()+1+rng.IntN(6)),
	}

	return Payload{
		"market_size_usd_bn": fmt.Sprintf("%.1f", size),
		"cagr":               fmt.Sprintf("%.1f%%", cagr),
		"market_trend":       trend,
		"key_markets":        keyMarkets,
		"key_insights":       insights,
		"data_source":        "simulated",
	}
}
