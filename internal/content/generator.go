// Package content runs the weekly digest pipeline: fetch every source, format
// the blocks, synthesize, validate, render and persist.
package content

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leeaandrob/xrpdigest/internal/aggregate"
	"github.com/leeaandrob/xrpdigest/internal/extract"
	"github.com/leeaandrob/xrpdigest/internal/format"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/leeaandrob/xrpdigest/internal/period"
	"github.com/leeaandrob/xrpdigest/internal/prompt"
	"github.com/leeaandrob/xrpdigest/internal/render"
	"github.com/leeaandrob/xrpdigest/internal/source"
	"github.com/rs/zerolog/log"
)

// Source categories reported in Result.Sources and stored with the digest.
const (
	CategoryNews        = "news"
	CategoryPrice       = "price"
	CategoryCorrelation = "correlation"
	CategoryFearGreed   = "fear_greed"
	CategoryOnChain     = "onchain"
	CategoryRichList    = "richlist"
	CategorySocial      = "social"
	CategoryStablecoin  = "stablecoin"
)

// Sources fetches every data category. *source.Client implements it.
type Sources interface {
	XRPHistory(ctx context.Context) (*source.MarketChart, error)
	BTCHistory(ctx context.Context) (*source.MarketChart, error)
	ETHHistory(ctx context.Context) (*source.MarketChart, error)
	FearGreed(ctx context.Context) (*source.FearGreed, error)
	NetworkMetrics(ctx context.Context) (source.NetworkMetrics, error)
	Escrows(ctx context.Context) ([]source.Escrow, error)
	RichList(ctx context.Context) ([]source.Holder, error)
	Stablecoin(ctx context.Context) (*source.Stablecoin, error)
	News(ctx context.Context) ([]models.NewsArticle, error)
	Social(ctx context.Context) ([]models.SocialPost, error)
}

// Synthesizer turns the assembled prompt into the model's raw reply.
type Synthesizer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Generator creates weekly digests.
type Generator struct {
	sources   Sources
	llm       Synthesizer
	assembler *prompt.Assembler
	gate      *Gate
	now       func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the clock used to compute the reporting period.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a new digest generator.
func NewGenerator(sources Sources, llm Synthesizer, assembler *prompt.Assembler, store DigestStore, opts ...Option) *Generator {
	g := &Generator{
		sources:   sources,
		llm:       llm,
		assembler: assembler,
		gate:      NewGate(store),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CurrentPeriod returns the period a run started now would cover.
func (g *Generator) CurrentPeriod() models.Period {
	return period.Previous(g.now())
}

// GenerateWeeklyDigest produces and stores the digest for the previous week.
// It returns a *ConflictError when that week is already stored.
func (g *Generator) GenerateWeeklyDigest(ctx context.Context) (*Result, error) {
	p := g.CurrentPeriod()
	runID := uuid.NewString()

	logger := log.With().Str("run_id", runID).Str("slug", p.Slug).Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	logger.Info().Str("week_range", p.WeekRange()).Msg("Generating weekly digest")

	if err := g.gate.Check(ctx, p.Slug); err != nil {
		return nil, err
	}

	outcomes := aggregate.Settle(ctx, g.tasks())
	blocks, truth := buildBlocks(outcomes, p)
	sources := presence(blocks)

	available := 0
	for _, ok := range sources {
		if ok {
			available++
		}
	}
	logger.Info().
		Int("available", available).
		Int("categories", len(sources)).
		Msg("Sources collected")

	reply, err := g.llm.Complete(ctx, g.assembler.Assemble(blocks), g.assembler.Task())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	parsed, err := extract.Parse(reply)
	if err != nil {
		logger.Warn().Err(err).Int("reply_chars", len(reply)).Msg("Rejected synthesis output")
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}

	digest := extract.Reconcile(parsed, truth, p.WeekRange())
	digest.Slug = p.Slug
	digest.Start = p.Start
	digest.End = p.End
	digest.Sources = sources
	digest.HTML = render.HTML(digest)
	digest.CreatedAt = g.now().UTC()

	if err := g.gate.Commit(ctx, &digest); err != nil {
		return nil, err
	}

	logger.Info().
		Str("title", digest.Title).
		Dur("took", time.Since(start)).
		Msg("Weekly digest generated")

	return &Result{RunID: runID, Digest: &digest, Sources: sources}, nil
}

// Task order is fixed; buildBlocks reads outcomes by these indexes.
const (
	idxXRP = iota
	idxBTC
	idxETH
	idxFearGreed
	idxNetwork
	idxEscrows
	idxRichList
	idxStablecoin
	idxNews
	idxSocial
)

func (g *Generator) tasks() []aggregate.Task {
	return []aggregate.Task{
		idxXRP:        task(source.LabelXRPPrice, g.sources.XRPHistory),
		idxBTC:        task(source.LabelBTCPrice, g.sources.BTCHistory),
		idxETH:        task(source.LabelETHPrice, g.sources.ETHHistory),
		idxFearGreed:  task(source.LabelFearGreed, g.sources.FearGreed),
		idxNetwork:    task(source.LabelNetwork, g.sources.NetworkMetrics),
		idxEscrows:    task(source.LabelEscrows, g.sources.Escrows),
		idxRichList:   task(source.LabelRichList, g.sources.RichList),
		idxStablecoin: task(source.LabelStablecoin, g.sources.Stablecoin),
		idxNews:       task(source.LabelNews, g.sources.News),
		idxSocial:     task(source.LabelSocial, g.sources.Social),
	}
}

func task[T any](label string, fetch func(context.Context) (T, error)) aggregate.Task {
	return aggregate.Task{
		Label: label,
		Fetch: func(ctx context.Context) (any, error) { return fetch(ctx) },
	}
}

// buildBlocks formats every outcome and returns the XRP price statistics
// when the series supports them.
func buildBlocks(o []aggregate.Outcome, p models.Period) (prompt.Blocks, *format.PriceStats) {
	xrp := aggregate.Take[*source.MarketChart](o[idxXRP])

	var truth *format.PriceStats
	if stats, ok := format.StatsFor(xrp); ok {
		truth = &stats
	}

	return prompt.Blocks{
		News:        format.News(aggregate.Take[[]models.NewsArticle](o[idxNews])),
		Price:       format.Price(xrp),
		Correlation: format.Correlation(aggregate.Take[*source.MarketChart](o[idxBTC]), aggregate.Take[*source.MarketChart](o[idxETH]), truth),
		FearGreed:   format.FearGreed(aggregate.Take[*source.FearGreed](o[idxFearGreed])),
		OnChain:     format.OnChain(aggregate.Take[source.NetworkMetrics](o[idxNetwork]), aggregate.Take[[]source.Escrow](o[idxEscrows])),
		RichList:    format.RichList(aggregate.Take[[]source.Holder](o[idxRichList])),
		Social:      format.Social(aggregate.Take[[]models.SocialPost](o[idxSocial])),
		Stablecoin:  format.Stablecoin(aggregate.Take[*source.Stablecoin](o[idxStablecoin])),
		WeekRange:   p.WeekRange(),
	}, truth
}

// presence reports which categories produced real data rather than a placeholder.
func presence(b prompt.Blocks) map[string]bool {
	return map[string]bool{
		CategoryNews:        b.News != format.NewsUnavailable,
		CategoryPrice:       b.Price != format.PriceUnavailable,
		CategoryCorrelation: b.Correlation != format.CorrelationUnavailable,
		CategoryFearGreed:   b.FearGreed != format.FearGreedUnavailable,
		CategoryOnChain:     b.OnChain != format.OnChainUnavailable,
		CategoryRichList:    b.RichList != format.RichListUnavailable,
		CategorySocial:      b.Social != format.SocialUnavailable,
		CategoryStablecoin:  b.Stablecoin != format.StablecoinUnavailable,
	}
}
