package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leeaandrob/xrpdigest/internal/api"
	"github.com/leeaandrob/xrpdigest/internal/content"
	"github.com/leeaandrob/xrpdigest/internal/period"
	"github.com/leeaandrob/xrpdigest/internal/scheduler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool

	// Period flags
	periodAt string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xrpdigest",
	Short: "Weekly XRP market digest engine",
	Long: `xrpdigest collects a week of XRP market, ledger and sentiment data,
asks a language model to write the digest and stores one article per week.

Examples:
  xrpdigest serve
  xrpdigest generate
  xrpdigest ingest
  xrpdigest period --at 2026-02-18`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the optional scheduler",
	RunE:  runServe,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the digest for the previous week once",
	RunE:  runGenerate,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Refresh the news feed once",
	RunE:  runIngest,
}

var periodCmd = &cobra.Command{
	Use:   "period",
	Short: "Print the reporting period a run would cover",
	RunE:  runPeriod,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	periodCmd.Flags().StringVar(&periodAt, "at", "", "reference date (YYYY-MM-DD), defaults to now")

	rootCmd.AddCommand(serveCmd, generateCmd, ingestCmd, periodCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().Msg("xrpdigest - Starting digest engine")

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var sched *scheduler.Scheduler
	if cfg.EnableScheduler {
		sched, err = scheduler.NewScheduler(a.generator, cfg.DigestSchedule, cfg.TriggerTimeout)
		if err != nil {
			return err
		}
		if a.ingester != nil {
			spec := cfg.NewsSchedule
			if spec == "" {
				spec = scheduler.DefaultNewsSchedule
			}
			if err := sched.AddJob(scheduler.JobNewsIngest, spec, a.ingestNews); err != nil {
				return err
			}
		}
		log.Info().Msg("Scheduler initialized")
	}

	apiServer := api.NewServer(api.Config{
		Addr:           cfg.HTTPAddr,
		CronSecret:     cfg.CronSecret,
		TriggerRPM:     cfg.TriggerRPM,
		TriggerTimeout: cfg.TriggerTimeout,
	}, a.generator, a.store, sched)

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start all services
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	if sched != nil {
		sched.Start()
	}

	log.Info().
		Str("api", cfg.HTTPAddr).
		Bool("scheduler", sched != nil).
		Msg("Digest engine running")

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop()
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown")
	}

	log.Info().Msg("Digest engine stopped")
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	runCtx, cancel := context.WithTimeout(ctx, cfg.TriggerTimeout)
	defer cancel()

	res, err := a.generator.GenerateWeeklyDigest(runCtx)
	var conflict *content.ConflictError
	if errors.As(err, &conflict) {
		fmt.Fprintf(cmd.OutOrStdout(), "Digest for %s already exists, nothing to do\n", conflict.Slug)
		return nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"run_id":     res.RunID,
		"slug":       res.Digest.Slug,
		"title":      res.Digest.Title,
		"week_range": res.Digest.WeekRange,
		"sources":    res.Sources,
	})
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return a.ingestNews(ctx)
}

func runPeriod(cmd *cobra.Command, args []string) error {
	now := time.Now()
	if periodAt != "" {
		at, err := time.Parse(time.DateOnly, periodAt)
		if err != nil {
			return fmt.Errorf("invalid --at date: %w", err)
		}
		now = at
	}

	p := period.Previous(now)
	fmt.Fprintf(cmd.OutOrStdout(), "slug:  %s\nrange: %s\nstart: %s\nend:   %s\n",
		p.Slug, p.WeekRange(), p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	return nil
}
