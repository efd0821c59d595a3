package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	TavilyAPIURL = "https://api.tavily.com"
)

// TavilyClient provides news search via the Tavily API.
type TavilyClient struct {
	client *resty.Client
	apiKey string
}

// TavilySearchRequest represents a search request.
type TavilySearchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth,omitempty"` // "basic" or "advanced"
	Topic          string   `json:"topic,omitempty"`        // "general" or "news"
	Days           int      `json:"days,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

// TavilySearchResponse represents a search response.
type TavilySearchResponse struct {
	Query   string         `json:"query"`
	Results []TavilyResult `json:"results"`
}

// TavilyResult represents a single search result.
type TavilyResult struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Published string  `json:"published_date,omitempty"`
}

// NewTavilyClient creates a new Tavily client. An empty baseURL uses TavilyAPIURL.
func NewTavilyClient(apiKey, baseURL string) *TavilyClient {
	if baseURL == "" {
		baseURL = TavilyAPIURL
	}
	return &TavilyClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
		apiKey: apiKey,
	}
}

// SearchNews runs a news-topic search over the last days.
func (c *TavilyClient) SearchNews(ctx context.Context, query string, days, maxResults int) (*TavilySearchResponse, error) {
	return c.Search(ctx, TavilySearchRequest{
		Query:       query,
		SearchDepth: "basic",
		Topic:       "news",
		Days:        days,
		MaxResults:  maxResults,
	})
}

// Search performs a search with custom parameters.
func (c *TavilyClient) Search(ctx context.Context, req TavilySearchRequest) (*TavilySearchResponse, error) {
	log.Debug().
		Str("query", req.Query).
		Int("max_results", req.MaxResults).
		Msg("Tavily search")

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/search")

	if err != nil {
		return nil, fmt.Errorf("tavily search failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("tavily API returned %d: %s", resp.StatusCode(), resp.String())
	}

	var result TavilySearchResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse tavily response: %w", err)
	}

	log.Debug().
		Int("results", len(result.Results)).
		Msg("Tavily search complete")

	return &result, nil
}
