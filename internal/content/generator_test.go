package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leeaandrob/xrpdigest/internal/extract"
	"github.com/leeaandrob/xrpdigest/internal/format"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/leeaandrob/xrpdigest/internal/prompt"
	"github.com/leeaandrob/xrpdigest/internal/source"
	"github.com/leeaandrob/xrpdigest/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 2026-02-18; the previous week is Feb 9 - Feb 15.
var runTime = time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)

const (
	t0 = 1770595200000.0 // 2026-02-09 00:00 UTC
	t1 = t0 + 6*24*3600000.0
)

var errDown = errors.New("provider down")

// fakeSources fails every category listed in fail.
type fakeSources struct {
	fail  map[string]bool
	calls atomic.Int32
}

func (f *fakeSources) check(category string) error {
	f.calls.Add(1)
	if f.fail[category] {
		return errDown
	}
	return nil
}

func (f *fakeSources) XRPHistory(context.Context) (*source.MarketChart, error) {
	if err := f.check(CategoryPrice); err != nil {
		return nil, err
	}
	return &source.MarketChart{Prices: [][2]float64{{t0, 1.40}, {t1, 1.50}}}, nil
}

func (f *fakeSources) BTCHistory(context.Context) (*source.MarketChart, error) {
	if err := f.check(CategoryCorrelation); err != nil {
		return nil, err
	}
	return &source.MarketChart{Prices: [][2]float64{{t0, 100000}, {t1, 102000}}}, nil
}

func (f *fakeSources) ETHHistory(context.Context) (*source.MarketChart, error) {
	if err := f.check(CategoryCorrelation); err != nil {
		return nil, err
	}
	return &source.MarketChart{Prices: [][2]float64{{t0, 3000}, {t1, 2900}}}, nil
}

func (f *fakeSources) FearGreed(context.Context) (*source.FearGreed, error) {
	if err := f.check(CategoryFearGreed); err != nil {
		return nil, err
	}
	return &source.FearGreed{Data: []source.FearGreedPoint{{Value: "72", Classification: "Greed"}}}, nil
}

func (f *fakeSources) NetworkMetrics(context.Context) (source.NetworkMetrics, error) {
	if err := f.check(CategoryOnChain); err != nil {
		return nil, err
	}
	return source.NetworkMetrics{"transactions": 1500000.0}, nil
}

func (f *fakeSources) Escrows(context.Context) ([]source.Escrow, error) {
	if err := f.check(CategoryOnChain); err != nil {
		return nil, err
	}
	return []source.Escrow{{Destination: "rDest", Amount: json.Number("1000000000")}}, nil
}

func (f *fakeSources) RichList(context.Context) ([]source.Holder, error) {
	if err := f.check(CategoryRichList); err != nil {
		return nil, err
	}
	return []source.Holder{{Account: "rHolder", Balance: json.Number("1000000")}}, nil
}

func (f *fakeSources) Stablecoin(context.Context) (*source.Stablecoin, error) {
	if err := f.check(CategoryStablecoin); err != nil {
		return nil, err
	}
	price := 1.0
	return &source.Stablecoin{Name: "Ripple USD", MarketData: &source.StableMarketData{
		CurrentPrice: &source.CurrencyValue{USD: &price},
	}}, nil
}

func (f *fakeSources) News(context.Context) ([]models.NewsArticle, error) {
	if err := f.check(CategoryNews); err != nil {
		return nil, err
	}
	return []models.NewsArticle{{Title: "ETF filing", Source: "Reuters"}}, nil
}

func (f *fakeSources) Social(context.Context) ([]models.SocialPost, error) {
	if err := f.check(CategorySocial); err != nil {
		return nil, err
	}
	return []models.SocialPost{{Handle: "whale", Content: "busy ledger"}}, nil
}

// fakeLLM returns a fixed reply, or derives one from the prompt when reply is empty.
type fakeLLM struct {
	reply  string
	err    error
	calls  int
	system string
}

func (f *fakeLLM) Complete(_ context.Context, system, _ string) (string, error) {
	f.calls++
	f.system = system
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return replyFor(system), nil
}

// replyFor writes a section only when its data reached the prompt.
func replyFor(system string) string {
	section := func(placeholder, body string) string {
		if strings.Contains(system, placeholder) {
			return "null"
		}
		return body
	}
	return fmt.Sprintf(`Digest below.
{"title":"Week in review","week_range":"","xrp_open":0,"xrp_close":0,"xrp_change_pct":0,
"what_happened":%s,"price_action":%s,"onchain_intel":%s,"sentiment":%s,"stablecoin_watch":%s,
"week_ahead":{"bias":"neutral","analysis":"a","scenarios":"s","watchlist":["CPI print"]},"signoff":"Bye."}`,
		section(format.NewsUnavailable, `{"summary":"News recap."}`),
		section(format.PriceUnavailable, `{"summary":"Price recap."}`),
		section(format.OnChainUnavailable, `{"summary":"Ledger recap."}`),
		section(format.FearGreedUnavailable, `{"summary":"Mood recap."}`),
		section(format.StablecoinUnavailable, `{"summary":"RLUSD recap."}`),
	)
}

// memStore is an in-memory DigestStore with a unique slug constraint.
type memStore struct {
	mu         sync.Mutex
	digests    map[string]models.Digest
	inserts    int
	hideExists bool
	existsErr  error
	insertErr  error
}

func newMemStore() *memStore {
	return &memStore{digests: map[string]models.Digest{}}
}

func (m *memStore) DigestExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	if m.hideExists {
		return false, nil
	}
	_, ok := m.digests[slug]
	return ok, nil
}

func (m *memStore) InsertDigest(_ context.Context, d *models.Digest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.digests[d.Slug]; ok {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateSlug, d.Slug)
	}
	m.inserts++
	m.digests[d.Slug] = *d
	return nil
}

func newTestGenerator(t *testing.T, src Sources, llm Synthesizer, store DigestStore) *Generator {
	t.Helper()
	tmpl, err := prompt.DefaultTemplate()
	require.NoError(t, err)
	a, err := prompt.NewAssembler(tmpl)
	require.NoError(t, err)
	return NewGenerator(src, llm, a, store, WithClock(func() time.Time { return runTime }))
}

func TestGenerateWeeklyDigest(t *testing.T) {
	store := newMemStore()
	llm := &fakeLLM{}
	g := newTestGenerator(t, &fakeSources{}, llm, store)

	res, err := g.GenerateWeeklyDigest(context.Background())
	require.NoError(t, err)

	d := res.Digest
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "2026-02-09", d.Slug)
	assert.Equal(t, "Feb 9 - Feb 15, 2026", d.WeekRange)
	assert.Equal(t, time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), d.Start)
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), d.End)
	assert.Equal(t, 1.40, d.XRPOpen)
	assert.Equal(t, 1.50, d.XRPClose)
	assert.InDelta(t, 7.14, d.XRPChangePct, 0.005)
	assert.Contains(t, d.HTML, "Week in review")
	assert.NotNil(t, d.WhatHappened)
	for category, ok := range res.Sources {
		assert.True(t, ok, category)
	}
	assert.Len(t, res.Sources, 8)

	assert.NotRegexp(t, `\{\{[A-Z_]+\}\}`, llm.system)
	assert.Equal(t, 1, store.inserts)
	assert.Equal(t, d.Title, store.digests["2026-02-09"].Title)
}

func TestGenerateWeeklyDigest_SecondRunConflicts(t *testing.T) {
	store := newMemStore()
	src := &fakeSources{}
	llm := &fakeLLM{}
	g := newTestGenerator(t, src, llm, store)

	first, err := g.GenerateWeeklyDigest(context.Background())
	require.NoError(t, err)
	fetches := src.calls.Load()

	second := newTestGenerator(t, src, &fakeLLM{reply: `{"title":"Different","week_ahead":{}}`}, store)
	res, err := second.GenerateWeeklyDigest(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrPeriodConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "2026-02-09", conflict.Slug)

	assert.Equal(t, 1, store.inserts)
	assert.Equal(t, first.Digest.Title, store.digests["2026-02-09"].Title)
	assert.Equal(t, fetches, src.calls.Load(), "no source should be fetched for a stored period")
	assert.Equal(t, 1, llm.calls)
}

func TestGenerateWeeklyDigest_InsertRaceIsConflict(t *testing.T) {
	store := newMemStore()
	store.digests["2026-02-09"] = models.Digest{Slug: "2026-02-09", Title: "Winner"}
	store.hideExists = true

	g := newTestGenerator(t, &fakeSources{}, &fakeLLM{}, store)
	_, err := g.GenerateWeeklyDigest(context.Background())

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "2026-02-09", conflict.Slug)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "Winner", store.digests["2026-02-09"].Title)
}

func TestGenerateWeeklyDigest_ConcurrentRunsWriteOnce(t *testing.T) {
	store := newMemStore()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	gens := make([]*Generator, 8)
	for i := range gens {
		gens[i] = newTestGenerator(t, &fakeSources{}, &fakeLLM{}, store)
	}
	for _, g := range gens {
		wg.Add(1)
		go func(g *Generator) {
			defer wg.Done()
			_, err := g.GenerateWeeklyDigest(context.Background())
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrPeriodConflict):
				conflicts.Add(1)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(7), conflicts.Load())
	assert.Equal(t, 1, store.inserts)
}

func TestGenerateWeeklyDigest_PartialSourceResilience(t *testing.T) {
	categories := []string{
		CategoryNews, CategoryPrice, CategoryCorrelation, CategoryFearGreed,
		CategoryOnChain, CategoryRichList, CategorySocial, CategoryStablecoin,
	}

	for mask := 0; mask < 1<<len(categories); mask++ {
		fail := map[string]bool{}
		for i, c := range categories {
			if mask&(1<<i) != 0 {
				fail[c] = true
			}
		}

		store := newMemStore()
		g := newTestGenerator(t, &fakeSources{fail: fail}, &fakeLLM{}, store)
		res, err := g.GenerateWeeklyDigest(context.Background())
		require.NoError(t, err, "mask %08b", mask)
		require.Equal(t, 1, store.inserts, "mask %08b", mask)

		d := res.Digest
		for _, c := range categories {
			assert.Equal(t, !fail[c], res.Sources[c], "mask %08b category %s", mask, c)
		}
		assert.Equal(t, fail[CategoryNews], d.WhatHappened == nil, "mask %08b", mask)
		assert.Equal(t, fail[CategoryPrice], d.PriceAction == nil, "mask %08b", mask)
		assert.Equal(t, fail[CategoryOnChain], d.OnchainIntel == nil, "mask %08b", mask)
		assert.Equal(t, fail[CategoryFearGreed], d.Sentiment == nil, "mask %08b", mask)
		assert.Equal(t, fail[CategoryStablecoin], d.StablecoinWatch == nil, "mask %08b", mask)

		if !fail[CategoryPrice] {
			assert.Equal(t, 1.40, d.XRPOpen, "mask %08b", mask)
			assert.Equal(t, 1.50, d.XRPClose, "mask %08b", mask)
		} else {
			assert.Zero(t, d.XRPOpen, "mask %08b", mask)
		}
		assert.Equal(t, d.Sources, res.Sources)
	}
}

func TestGenerateWeeklyDigest_SynthesisFailure(t *testing.T) {
	store := newMemStore()
	g := newTestGenerator(t, &fakeSources{}, &fakeLLM{err: errors.New("503 from endpoint")}, store)

	_, err := g.GenerateWeeklyDigest(context.Background())
	assert.ErrorIs(t, err, ErrSynthesis)
	assert.Contains(t, err.Error(), "503 from endpoint")
	assert.Zero(t, store.inserts)
}

func TestGenerateWeeklyDigest_MalformedOutput(t *testing.T) {
	for _, reply := range []string{
		"I'm sorry, I can't produce that.",
		`{"title": "unterminated"`,
		`{"week_ahead":{"bias":"neutral"}}`,
	} {
		store := newMemStore()
		g := newTestGenerator(t, &fakeSources{}, &fakeLLM{reply: reply}, store)

		_, err := g.GenerateWeeklyDigest(context.Background())
		assert.ErrorIs(t, err, ErrMalformedOutput, reply)
		assert.ErrorIs(t, err, extract.ErrMalformed, reply)
		assert.Zero(t, store.inserts, reply)
	}
}

func TestGenerateWeeklyDigest_PersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.insertErr = errors.New("disk full")
	g := newTestGenerator(t, &fakeSources{}, &fakeLLM{}, store)

	_, err := g.GenerateWeeklyDigest(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrPeriodConflict)
	assert.Contains(t, err.Error(), "disk full")
}

func TestGenerateWeeklyDigest_ExistsCheckFailure(t *testing.T) {
	store := newMemStore()
	store.existsErr = errors.New("timeout")
	src := &fakeSources{}
	g := newTestGenerator(t, src, &fakeLLM{}, store)

	_, err := g.GenerateWeeklyDigest(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, src.calls.Load())
}

func TestGenerateWeeklyDigest_AllSourcesDown(t *testing.T) {
	fail := map[string]bool{}
	for _, c := range []string{CategoryNews, CategoryPrice, CategoryCorrelation, CategoryFearGreed, CategoryOnChain, CategoryRichList, CategorySocial, CategoryStablecoin} {
		fail[c] = true
	}
	llm := &fakeLLM{}
	g := newTestGenerator(t, &fakeSources{fail: fail}, llm, newMemStore())

	_, err := g.GenerateWeeklyDigest(context.Background())
	require.NoError(t, err)
	for _, placeholder := range []string{
		format.NewsUnavailable, format.PriceUnavailable, format.CorrelationUnavailable, format.FearGreedUnavailable,
		format.OnChainUnavailable, format.RichListUnavailable, format.SocialUnavailable, format.StablecoinUnavailable,
	} {
		assert.Contains(t, llm.system, placeholder)
	}
}

func TestCurrentPeriod(t *testing.T) {
	g := newTestGenerator(t, &fakeSources{}, &fakeLLM{}, newMemStore())
	assert.Equal(t, "2026-02-09", g.CurrentPeriod().Slug)
}
