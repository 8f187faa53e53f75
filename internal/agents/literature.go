package agents

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/client"
	"github.com/rsharda/pharmagenie/internal/models"
)

// LiteratureAgent gathers open literature signals: PubMed articles via the
// NCBI E-utilities, plus recent news headlines from a configurable RSS
// search feed. News is best-effort color; PubMed is the primary source.
type LiteratureAgent struct {
	client  *client.Client // NCBI eutils root
	store   *cache.Cache[Payload]
	logger  *zap.SugaredLogger
	parser  *gofeed.Parser
	feedURL string // e.g. "https://news.google.com/rss/search?q=%s", empty disables news
	maxHits int
}

// NewLiteratureAgent creates the agent. feedURL must contain one %s verb
// for the query term, or be empty to skip the news lookup.
func NewLiteratureAgent(c *client.Client, store *cache.Cache[Payload], feedURL string, logger *zap.SugaredLogger) *LiteratureAgent {
	return &LiteratureAgent{
		client:  c,
		store:   store,
		logger:  logger,
		parser:  gofeed.NewParser(),
		feedURL: feedURL,
		maxHits: 5,
	}
}

func (a *LiteratureAgent) ID() string { return SourceLiterature }

func (a *LiteratureAgent) Fetch(ctx context.Context, subject string, qctx map[string]string) models.SourceResult {
	subject = models.NormalizeSubject(subject)
	return fetch(ctx, a.ID(), a.store, a.logger, subject, qctx, func(ctx context.Context) (Payload, error) {
		return a.lookup(ctx, subject, qctx[ContextTherapeuticArea])
	})
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (a *LiteratureAgent) lookup(ctx context.Context, subject, area string) (Payload, error) {
	term := subject + " efficacy safety"
	if area != "" {
		term = subject + " " + area
	}

	articles, err := a.searchPubMed(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("pubmed: %w", err)
	}

	news := a.searchNews(ctx, subject)

	if len(articles) == 0 && len(news) == 0 {
		return nil, models.ErrNoData
	}

	findings := make([]string, 0, len(articles))
	for _, art := range articles {
		findings = append(findings, fmt.Sprintf("%s (PubMed)", art["title"]))
	}
	if len(findings) == 0 {
		findings = append(findings, "No recent scientific literature found on PubMed.")
	}

	return Payload{
		"articles": articles,
		"news":     news,
		"findings": findings,
	}, nil
}

func (a *LiteratureAgent) searchPubMed(ctx context.Context, term string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", fmt.Sprint(a.maxHits))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	var search esearchResponse
	if err := a.client.RequestJSON(ctx, "/entrez/eutils/esearch.fcgi", params, &search); err != nil {
		return nil, err
	}
	if len(search.Result.IDList) == 0 {
		return nil, nil
	}

	sumParams := url.Values{}
	sumParams.Set("db", "pubmed")
	sumParams.Set("id", strings.Join(search.Result.IDList, ","))
	sumParams.Set("retmode", "json")

	// esummary keys each article by its uid next to a "uids" index entry,
	// so the result object has to be decoded loosely.
	var summary struct {
		Result map[string]any `json:"result"`
	}
	if err := a.client.RequestJSON(ctx, "/entrez/eutils/esummary.fcgi", sumParams, &summary); err != nil {
		return nil, err
	}

	articles := make([]map[string]any, 0, len(search.Result.IDList))
	for _, uid := range search.Result.IDList {
		raw, ok := summary.Result[uid].(map[string]any)
		if !ok {
			continue
		}
		article := map[string]any{
			"title":   str(raw["title"]),
			"journal": str(raw["source"]),
			"date":    str(raw["pubdate"]),
			"url":     "https://pubmed.ncbi.nlm.nih.gov/" + uid + "/",
		}
		if authors, ok := raw["authors"].([]any); ok {
			names := make([]string, 0, len(authors))
			for _, entry := range authors {
				if m, ok := entry.(map[string]any); ok {
					if name := str(m["name"]); name != "" {
						names = append(names, name)
					}
				}
			}
			article["authors"] = strings.Join(names, ", ")
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// searchNews pulls recent headlines from the configured RSS search feed.
// Any failure is logged and swallowed.
func (a *LiteratureAgent) searchNews(ctx context.Context, subject string) []map[string]any {
	if a.feedURL == "" {
		return nil
	}
	feedURL := fmt.Sprintf(a.feedURL, url.QueryEscape(subject+" pharmaceutical"))

	feed, err := a.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		a.logger.Warnw("news feed lookup failed", "subject", subject, "error", err)
		return nil
	}

	items := feed.Items
	if len(items) > a.maxHits {
		items = items[:a.maxHits]
	}
	news := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"title": item.Title,
			"url":   item.Link,
			"date":  item.Published,
		}
		if item.Description != "" {
			entry["snippet"] = item.Description
		}
		news = append(news, entry)
	}
	return news
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
