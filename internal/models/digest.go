package models

import (
	"strings"
	"time"
)

// Bias represents the directional outlook of a digest.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// ParseBias normalizes a model-supplied bias. Unknown values fall back to neutral.
func ParseBias(s string) (Bias, bool) {
	switch Bias(strings.ToLower(strings.TrimSpace(s))) {
	case BiasBullish:
		return BiasBullish, true
	case BiasBearish:
		return BiasBearish, true
	case BiasNeutral:
		return BiasNeutral, true
	}
	return BiasNeutral, false
}

// Digest is the persisted weekly artifact, one per reporting period.
type Digest struct {
	// Identifiers
	Slug      string `bson:"slug" json:"slug"`
	Title     string `bson:"title" json:"title"`
	WeekRange string `bson:"week_range" json:"week_range"`

	// Price summary
	XRPOpen      float64 `bson:"xrp_open" json:"xrp_open"`
	XRPClose     float64 `bson:"xrp_close" json:"xrp_close"`
	XRPChangePct float64 `bson:"xrp_change_pct" json:"xrp_change_pct"`

	// Optional sections. Nil means not applicable this period.
	WhatHappened    *WhatHappened    `bson:"what_happened,omitempty" json:"what_happened,omitempty"`
	PriceAction     *PriceAction     `bson:"price_action,omitempty" json:"price_action,omitempty"`
	OnchainIntel    *OnchainIntel    `bson:"onchain_intel,omitempty" json:"onchain_intel,omitempty"`
	Sentiment       *Sentiment       `bson:"sentiment,omitempty" json:"sentiment,omitempty"`
	StablecoinWatch *StablecoinWatch `bson:"stablecoin_watch,omitempty" json:"stablecoin_watch,omitempty"`

	WeekAhead WeekAhead `bson:"week_ahead" json:"week_ahead"`
	Signoff   string    `bson:"signoff,omitempty" json:"signoff,omitempty"`

	// Rendered markup
	HTML string `bson:"html" json:"html"`

	// Period
	Start time.Time `bson:"start" json:"start"`
	End   time.Time `bson:"end" json:"end"`

	// Source categories that were available for this run
	Sources map[string]bool `bson:"sources" json:"sources"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// WhatHappened summarizes the week's main events.
type WhatHappened struct {
	Summary string   `bson:"summary" json:"summary"`
	Bullets []string `bson:"bullets,omitempty" json:"bullets,omitempty"`
}

// PriceAction covers XRP price behaviour and its relation to majors.
type PriceAction struct {
	Summary     string   `bson:"summary" json:"summary"`
	KeyLevels   []string `bson:"key_levels,omitempty" json:"key_levels,omitempty"`
	Correlation string   `bson:"correlation,omitempty" json:"correlation,omitempty"`
}

// OnchainIntel covers ledger activity, escrow and whale movements.
type OnchainIntel struct {
	Summary    string   `bson:"summary" json:"summary"`
	Highlights []string `bson:"highlights,omitempty" json:"highlights,omitempty"`
}

// Sentiment covers the fear/greed index and social mood.
type Sentiment struct {
	Summary   string `bson:"summary" json:"summary"`
	FearGreed string `bson:"fear_greed,omitempty" json:"fear_greed,omitempty"`
	Social    string `bson:"social,omitempty" json:"social,omitempty"`
}

// StablecoinWatch covers the tracked stable asset.
type StablecoinWatch struct {
	Summary string `bson:"summary" json:"summary"`
}

// WeekAhead is the mandatory outlook section.
type WeekAhead struct {
	Bias      Bias     `bson:"bias" json:"bias"`
	Analysis  string   `bson:"analysis" json:"analysis"`
	Scenarios string   `bson:"scenarios" json:"scenarios"`
	Watchlist []string `bson:"watchlist" json:"watchlist"`
}
