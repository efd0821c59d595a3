// Package source provides the fetchers for every digest data category.
// Each fetcher applies its own timeout and returns the provider's native payload
// or an error tagged with the provider label. There are no retries.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// Default provider endpoints
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	DefaultFearGreedURL = "https://api.alternative.me"
	DefaultXRPScanURL   = "https://api.xrpscan.com/api/v1"

	// Default asset identifiers
	CoinXRP           = "ripple"
	CoinBTC           = "bitcoin"
	CoinETH           = "ethereum"
	DefaultStablecoin = "ripple-usd"

	// Lookback window for every source
	Window = 7 * 24 * time.Hour

	// Row bounds for internal datastore queries
	NewsLimit   = 15
	SocialLimit = 20
)

// Provider labels, used in logs and in the digest's source map.
const (
	LabelXRPPrice   = "xrp_price"
	LabelBTCPrice   = "btc_price"
	LabelETHPrice   = "eth_price"
	LabelFearGreed  = "fear_greed"
	LabelNetwork    = "network_metrics"
	LabelEscrows    = "escrows"
	LabelRichList   = "rich_list"
	LabelStablecoin = "stablecoin"
	LabelNews       = "news"
	LabelSocial     = "social"
)

// FeedStore is the internal datastore holding news and social posts.
type FeedStore interface {
	RecentNews(ctx context.Context, since time.Time, limit int) ([]models.NewsArticle, error)
	RecentSocialPosts(ctx context.Context, since time.Time, limit int) ([]models.SocialPost, error)
}

// Config holds provider endpoints and per-provider timeouts.
type Config struct {
	CoinGeckoURL    string
	CoinGeckoAPIKey string
	FearGreedURL    string
	XRPScanURL      string
	StablecoinID    string

	MarketTimeout    time.Duration
	SentimentTimeout time.Duration
	LedgerTimeout    time.Duration
	StoreTimeout     time.Duration
}

// Client fetches every source category.
type Client struct {
	coingecko *resty.Client
	fng       *resty.Client
	xrpscan   *resty.Client
	store     FeedStore

	stablecoinID string
	storeTimeout time.Duration
	now          func() time.Time
}

// NewClient creates a new source client. A nil store makes the news and social
// fetchers report absence.
func NewClient(cfg Config, store FeedStore) *Client {
	if cfg.CoinGeckoURL == "" {
		cfg.CoinGeckoURL = DefaultCoinGeckoURL
	}
	if cfg.FearGreedURL == "" {
		cfg.FearGreedURL = DefaultFearGreedURL
	}
	if cfg.XRPScanURL == "" {
		cfg.XRPScanURL = DefaultXRPScanURL
	}
	if cfg.StablecoinID == "" {
		cfg.StablecoinID = DefaultStablecoin
	}
	if cfg.MarketTimeout <= 0 {
		cfg.MarketTimeout = 15 * time.Second
	}
	if cfg.SentimentTimeout <= 0 {
		cfg.SentimentTimeout = 10 * time.Second
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 15 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}

	coingecko := resty.New().
		SetBaseURL(cfg.CoinGeckoURL).
		SetTimeout(cfg.MarketTimeout).
		SetHeader("Accept", "application/json")
	if cfg.CoinGeckoAPIKey != "" {
		coingecko.SetHeader("x-cg-demo-api-key", cfg.CoinGeckoAPIKey)
	}

	return &Client{
		coingecko: coingecko,
		fng: resty.New().
			SetBaseURL(cfg.FearGreedURL).
			SetTimeout(cfg.SentimentTimeout).
			SetHeader("Accept", "application/json"),
		xrpscan: resty.New().
			SetBaseURL(cfg.XRPScanURL).
			SetTimeout(cfg.LedgerTimeout).
			SetHeader("Accept", "application/json"),
		store:        store,
		stablecoinID: cfg.StablecoinID,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// ============================================================================
// MARKET DATA
// ============================================================================

// XRPHistory returns the trailing 7-day XRP price and volume series.
func (c *Client) XRPHistory(ctx context.Context) (*MarketChart, error) {
	return c.marketChart(ctx, LabelXRPPrice, CoinXRP)
}

// BTCHistory returns the trailing 7-day BTC price and volume series.
func (c *Client) BTCHistory(ctx context.Context) (*MarketChart, error) {
	return c.marketChart(ctx, LabelBTCPrice, CoinBTC)
}

// ETHHistory returns the trailing 7-day ETH price and volume series.
func (c *Client) ETHHistory(ctx context.Context) (*MarketChart, error) {
	return c.marketChart(ctx, LabelETHPrice, CoinETH)
}

func (c *Client) marketChart(ctx context.Context, label, coin string) (*MarketChart, error) {
	var chart MarketChart
	err := getJSON(ctx, c.coingecko, label, "/coins/"+coin+"/market_chart", map[string]string{
		"vs_currency": "usd",
		"days":        "7",
	}, &chart)
	if err != nil {
		return nil, err
	}
	return &chart, nil
}

// Stablecoin returns the market snapshot of the tracked stable asset.
func (c *Client) Stablecoin(ctx context.Context) (*Stablecoin, error) {
	var coin Stablecoin
	err := getJSON(ctx, c.coingecko, LabelStablecoin, "/coins/"+c.stablecoinID, map[string]string{
		"localization":   "false",
		"tickers":        "false",
		"community_data": "false",
		"developer_data": "false",
	}, &coin)
	if err != nil {
		return nil, err
	}
	return &coin, nil
}

// ============================================================================
// SENTIMENT
// ============================================================================

// FearGreed returns the last 7 daily fear & greed readings.
func (c *Client) FearGreed(ctx context.Context) (*FearGreed, error) {
	var fg FearGreed
	if err := getJSON(ctx, c.fng, LabelFearGreed, "/fng/", map[string]string{"limit": "7"}, &fg); err != nil {
		return nil, err
	}
	return &fg, nil
}

// ============================================================================
// LEDGER
// ============================================================================

// NetworkMetrics returns the current network statistics.
func (c *Client) NetworkMetrics(ctx context.Context) (NetworkMetrics, error) {
	var metrics NetworkMetrics
	if err := getJSON(ctx, c.xrpscan, LabelNetwork, "/metrics", nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// Escrows returns the open escrow listing.
func (c *Client) Escrows(ctx context.Context) ([]Escrow, error) {
	var escrows []Escrow
	if err := getJSON(ctx, c.xrpscan, LabelEscrows, "/escrows", nil, &escrows); err != nil {
		return nil, err
	}
	return escrows, nil
}

// RichList returns the top holder snapshot.
func (c *Client) RichList(ctx context.Context) ([]Holder, error) {
	var holders []Holder
	if err := getJSON(ctx, c.xrpscan, LabelRichList, "/balances", nil, &holders); err != nil {
		return nil, err
	}
	return holders, nil
}

// ============================================================================
// INTERNAL DATASTORE
// ============================================================================

// News returns the week's top news articles from the internal store.
func (c *Client) News(ctx context.Context) ([]models.NewsArticle, error) {
	if c.store == nil {
		return nil, fmt.Errorf("%s: store not configured", LabelNews)
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	articles, err := c.store.RecentNews(ctx, c.now().Add(-Window), NewsLimit)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", LabelNews, err)
	}
	return articles, nil
}

// Social returns the week's top social posts from the internal store.
func (c *Client) Social(ctx context.Context) ([]models.SocialPost, error) {
	if c.store == nil {
		return nil, fmt.Errorf("%s: store not configured", LabelSocial)
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	posts, err := c.store.RecentSocialPosts(ctx, c.now().Add(-Window), SocialLimit)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", LabelSocial, err)
	}
	return posts, nil
}

// getJSON performs a GET and decodes a 200 response into out.
func getJSON(ctx context.Context, rc *resty.Client, label, path string, params map[string]string, out any) error {
	req := rc.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	log.Debug().Str("source", label).Str("path", path).Msg("Fetching source")

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", label, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", label, resp.StatusCode(), truncate(resp.String(), 200))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", label, err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
