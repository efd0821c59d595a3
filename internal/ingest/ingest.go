// Package ingest fills the news feed the weekly digest reads from.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultQueries are searched on every run.
var DefaultQueries = []string{
	"XRP Ripple",
	"XRP Ledger",
	"Ripple RLUSD stablecoin",
}

const (
	defaultDays       = 7
	defaultMaxResults = 10
)

// Searcher runs one news search. *TavilyClient implements it.
type Searcher interface {
	SearchNews(ctx context.Context, query string, days, maxResults int) (*TavilySearchResponse, error)
}

// NewsSink stores articles, skipping URLs already present, and reports how
// many were new.
type NewsSink interface {
	SaveNews(ctx context.Context, articles []models.NewsArticle) (int, error)
}

// Config tunes an ingestion run.
type Config struct {
	Queries    []string
	Days       int
	MaxResults int
}

// Ingester searches for recent XRP news and stores the results.
type Ingester struct {
	search Searcher
	sink   NewsSink
	cfg    Config
	now    func() time.Time
}

// NewIngester creates a news ingester.
func NewIngester(search Searcher, sink NewsSink, cfg Config) *Ingester {
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	if cfg.Days <= 0 {
		cfg.Days = defaultDays
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	return &Ingester{search: search, sink: sink, cfg: cfg, now: time.Now}
}

// Run searches every query and stores the deduplicated results. A failing
// query is logged and skipped; Run fails only when every query fails or the
// store rejects the batch.
func (i *Ingester) Run(ctx context.Context) (int, error) {
	seen := make(map[string]bool)
	var articles []models.NewsArticle
	var errs []error

	for _, q := range i.cfg.Queries {
		resp, err := i.search.SearchNews(ctx, q, i.cfg.Days, i.cfg.MaxResults)
		if err != nil {
			log.Warn().Err(err).Str("query", q).Msg("News search failed")
			errs = append(errs, err)
			continue
		}
		for _, r := range resp.Results {
			a, ok := i.article(r)
			if !ok || seen[a.URL] {
				continue
			}
			seen[a.URL] = true
			articles = append(articles, a)
		}
	}

	if len(errs) == len(i.cfg.Queries) {
		return 0, fmt.Errorf("all news searches failed: %w", errors.Join(errs...))
	}
	if len(articles) == 0 {
		log.Info().Msg("No news articles found")
		return 0, nil
	}

	added, err := i.sink.SaveNews(ctx, articles)
	if err != nil {
		return 0, fmt.Errorf("save news: %w", err)
	}

	log.Info().
		Int("found", len(articles)).
		Int("added", added).
		Msg("News ingestion completed")
	return added, nil
}

func (i *Ingester) article(r TavilyResult) (models.NewsArticle, bool) {
	title := strings.TrimSpace(r.Title)
	if title == "" || r.URL == "" {
		return models.NewsArticle{}, false
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" {
		return models.NewsArticle{}, false
	}

	published, ok := parsePublished(r.Published)
	if !ok {
		published = i.now().UTC()
	}

	return models.NewsArticle{
		Title:       title,
		Source:      strings.TrimPrefix(u.Hostname(), "www."),
		URL:         r.URL,
		Summary:     strings.TrimSpace(r.Content),
		Score:       r.Score,
		PublishedAt: published,
	}, true
}

var publishedLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC3339,
	time.DateTime,
	time.DateOnly,
}

func parsePublished(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
