// Package config provides configuration management for the digest engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Storage backends.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// ErrMissingAPIKey is returned by Validate when no model credentials are set.
var ErrMissingAPIKey = errors.New("LLM_API_KEY is required")

// Config holds all application configuration.
type Config struct {
	// LLM settings
	LLMAPIKey   string
	LLMEndpoint string
	LLMModel    string
	LLMTimeout  time.Duration

	// Storage
	StoreBackend string
	MongoURI     string
	MongoDB      string
	DatabaseURL  string

	// Providers
	CoinGeckoURL     string
	CoinGeckoAPIKey  string
	FearGreedURL     string
	XRPScanURL       string
	StablecoinID     string
	MarketTimeout    time.Duration
	SentimentTimeout time.Duration
	LedgerTimeout    time.Duration
	StoreTimeout     time.Duration

	// Prompt template override; empty uses the embedded one
	PromptFile string

	// News ingestion, disabled without an API key
	TavilyAPIKey string
	TavilyURL    string
	NewsSchedule string

	// Trigger
	CronSecret     string
	TriggerRPM     float64
	TriggerTimeout time.Duration

	// Scheduler
	EnableScheduler bool
	DigestSchedule  string

	// Server settings
	HTTPAddr string
	Debug    bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Try to load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg := &Config{
		// LLM
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMEndpoint: getEnv("LLM_ENDPOINT", "https://api.openai.com/v1"),
		LLMModel:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:  getEnvDuration("LLM_TIMEOUT", 120*time.Second),

		// Storage
		StoreBackend: getEnv("STORE_BACKEND", BackendMongo),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "xrpdigest"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		// Providers
		CoinGeckoURL:     getEnv("COINGECKO_URL", ""),
		CoinGeckoAPIKey:  getEnv("COINGECKO_API_KEY", ""),
		FearGreedURL:     getEnv("FEAR_GREED_URL", ""),
		XRPScanURL:       getEnv("XRPSCAN_URL", ""),
		StablecoinID:     getEnv("STABLECOIN_ID", ""),
		MarketTimeout:    getEnvDuration("MARKET_TIMEOUT", 10*time.Second),
		SentimentTimeout: getEnvDuration("SENTIMENT_TIMEOUT", 10*time.Second),
		LedgerTimeout:    getEnvDuration("LEDGER_TIMEOUT", 15*time.Second),
		StoreTimeout:     getEnvDuration("STORE_TIMEOUT", 10*time.Second),

		PromptFile: getEnv("PROMPT_FILE", ""),

		// News ingestion
		TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),
		TavilyURL:    getEnv("TAVILY_URL", ""),
		NewsSchedule: getEnv("NEWS_SCHEDULE", ""),

		// Trigger
		CronSecret:     getEnv("CRON_SECRET", ""),
		TriggerRPM:     getEnvFloat("TRIGGER_RPM", 6),
		TriggerTimeout: getEnvDuration("TRIGGER_TIMEOUT", 10*time.Minute),

		// Scheduler
		EnableScheduler: getEnvBool("ENABLE_SCHEDULER", false),
		DigestSchedule:  getEnv("DIGEST_SCHEDULE", "0 10 * * 1"),

		// Server
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Debug:    getEnvBool("DEBUG", false),
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoURI == "" || c.MongoDB == "" {
			return errors.New("MONGO_URI and MONGO_DB are required for the mongo backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.LLMAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.TriggerRPM <= 0 {
		return fmt.Errorf("TRIGGER_RPM must be positive, got %v", c.TriggerRPM)
	}

	if c.TavilyAPIKey == "" {
		log.Warn().Msg("TAVILY_API_KEY not set, news ingestion will be disabled")
	}
	if c.CronSecret == "" {
		log.Warn().Msg("CRON_SECRET not set, the HTTP trigger will reject every request")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
