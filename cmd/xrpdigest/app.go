package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/leeaandrob/xrpdigest/internal/config"
	"github.com/leeaandrob/xrpdigest/internal/content"
	"github.com/leeaandrob/xrpdigest/internal/ingest"
	"github.com/leeaandrob/xrpdigest/internal/llm"
	"github.com/leeaandrob/xrpdigest/internal/prompt"
	"github.com/leeaandrob/xrpdigest/internal/source"
	"github.com/leeaandrob/xrpdigest/internal/storage"
	"github.com/leeaandrob/xrpdigest/internal/storage/postgres"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg       *config.Config
	store     storage.Repository
	generator *content.Generator
	ingester  *ingest.Ingester // nil without TAVILY_API_KEY
}

// loadConfig reads and validates configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if cfg.Debug || verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp connects storage and builds the digest generator.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tmpl, err := prompt.LoadTemplate(cfg.PromptFile)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("load prompt template: %w", err)
	}
	assembler, err := prompt.NewAssembler(tmpl)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("prompt template: %w", err)
	}

	sources := source.NewClient(source.Config{
		CoinGeckoURL:     cfg.CoinGeckoURL,
		CoinGeckoAPIKey:  cfg.CoinGeckoAPIKey,
		FearGreedURL:     cfg.FearGreedURL,
		XRPScanURL:       cfg.XRPScanURL,
		StablecoinID:     cfg.StablecoinID,
		MarketTimeout:    cfg.MarketTimeout,
		SentimentTimeout: cfg.SentimentTimeout,
		LedgerTimeout:    cfg.LedgerTimeout,
		StoreTimeout:     cfg.StoreTimeout,
	}, store)
	log.Info().Msg("Source client initialized")

	llmClient := llm.NewClient(llm.Config{
		APIKey:   cfg.LLMAPIKey,
		Endpoint: cfg.LLMEndpoint,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout,
	})
	log.Info().Str("model", llmClient.Model()).Msg("LLM client initialized")

	generator := content.NewGenerator(sources, llmClient, assembler, store)
	log.Info().Msg("Content generator initialized")

	a := &app{cfg: cfg, store: store, generator: generator}
	if cfg.TavilyAPIKey != "" {
		a.ingester = ingest.NewIngester(ingest.NewTavilyClient(cfg.TavilyAPIKey, cfg.TavilyURL), store, ingest.Config{})
		log.Info().Msg("News ingester initialized")
	}
	return a, nil
}

// openStore connects the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close(ctx)
			return nil, fmt.Errorf("migrate PostgreSQL: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		return store, nil
	}
}

// ingestNews runs one news ingestion pass.
func (a *app) ingestNews(ctx context.Context) error {
	if a.ingester == nil {
		return errors.New("news ingestion requires TAVILY_API_KEY")
	}
	_, err := a.ingester.Run(ctx)
	return err
}

func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to close storage")
	}
}
