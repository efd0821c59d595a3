// Package extract locates, parses and validates the JSON digest inside a
// model reply, and reconciles its numbers against computed price statistics.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/leeaandrob/xrpdigest/internal/format"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrMalformed is returned when a reply has no usable digest object.
var ErrMalformed = errors.New("malformed synthesis output")

// Number is a numeric field supplied by the model. Valid is false when the
// field was omitted, null, or not a number.
type Number struct {
	Value float64
	Valid bool
}

// UnmarshalJSON accepts plain numbers as well as quoted ones like "1.40",
// "$1.40" or "7.14%". NaN and infinities count as absent.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = Number{}
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*n = Number{}
		return nil
	}
	*n = Number{Value: f, Valid: true}
	return nil
}

// Reply is the model's structured output as parsed, before reconciliation.
type Reply struct {
	Title        string `json:"title"`
	WeekRange    string `json:"week_range"`
	XRPOpen      Number `json:"xrp_open"`
	XRPClose     Number `json:"xrp_close"`
	XRPChangePct Number `json:"xrp_change_pct"`

	// Optional sections are decoded one by one; see decodeSection.
	WhatHappened    *models.WhatHappened    `json:"-"`
	PriceAction     *models.PriceAction     `json:"-"`
	OnchainIntel    *models.OnchainIntel    `json:"-"`
	Sentiment       *models.Sentiment       `json:"-"`
	StablecoinWatch *models.StablecoinWatch `json:"-"`

	WeekAhead *WeekAhead `json:"week_ahead"`
	Signoff   string     `json:"signoff"`
}

// WeekAhead is the outlook section as the model wrote it.
type WeekAhead struct {
	Bias      string   `json:"bias"`
	Analysis  string   `json:"analysis"`
	Scenarios string   `json:"scenarios"`
	Watchlist []string `json:"watchlist"`
}

// FindObject returns the first balanced {...} substring of text that parses
// as a JSON object. Braces inside JSON strings are ignored.
func FindObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			candidate := text[start : end+1]
			if isObject(candidate) {
				return candidate, true
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func isObject(s string) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil
}

// Parse extracts and validates the digest object in a model reply.
func Parse(text string) (*Reply, error) {
	obj, ok := FindObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}

	var r Reply
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if strings.TrimSpace(r.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrMalformed)
	}
	if r.WeekAhead == nil {
		return nil, fmt.Errorf("%w: missing week_ahead", ErrMalformed)
	}

	var sections struct {
		WhatHappened    json.RawMessage `json:"what_happened"`
		PriceAction     json.RawMessage `json:"price_action"`
		OnchainIntel    json.RawMessage `json:"onchain_intel"`
		Sentiment       json.RawMessage `json:"sentiment"`
		StablecoinWatch json.RawMessage `json:"stablecoin_watch"`
	}
	if err := json.Unmarshal([]byte(obj), &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r.WhatHappened = decodeSection[models.WhatHappened]("what_happened", sections.WhatHappened)
	r.PriceAction = decodeSection[models.PriceAction]("price_action", sections.PriceAction)
	r.OnchainIntel = decodeSection[models.OnchainIntel]("onchain_intel", sections.OnchainIntel)
	r.Sentiment = decodeSection[models.Sentiment]("sentiment", sections.Sentiment)
	r.StablecoinWatch = decodeSection[models.StablecoinWatch]("stablecoin_watch", sections.StablecoinWatch)

	return &r, nil
}

// decodeSection decodes an optional section. A section of the wrong shape is
// dropped rather than failing the reply.
func decodeSection[T any](name string, raw json.RawMessage) *T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn().Err(err).Str("section", name).Msg("Dropping malformed section")
		return nil
	}
	return &v
}

// Reconcile builds a digest from a parsed reply. Computed price statistics,
// when available, always replace the model's open, close and change figures.
// An empty week range falls back to weekRange.
func Reconcile(r *Reply, truth *format.PriceStats, weekRange string) models.Digest {
	d := models.Digest{
		Title:     strings.TrimSpace(r.Title),
		WeekRange: strings.TrimSpace(r.WeekRange),
		Signoff:   strings.TrimSpace(r.Signoff),
	}
	if d.WeekRange == "" {
		d.WeekRange = weekRange
	}

	if truth != nil {
		logDrift("xrp_open", r.XRPOpen, truth.Open)
		logDrift("xrp_close", r.XRPClose, truth.Close)
		logDrift("xrp_change_pct", r.XRPChangePct, truth.ChangePct)

		d.XRPOpen = truth.Open
		d.XRPClose = truth.Close
		d.XRPChangePct = truth.ChangePct
	} else {
		d.XRPOpen = r.XRPOpen.Value
		d.XRPClose = r.XRPClose.Value
		d.XRPChangePct = r.XRPChangePct.Value
	}

	d.WhatHappened = whatHappened(r.WhatHappened)
	d.PriceAction = priceAction(r.PriceAction)
	d.OnchainIntel = onchainIntel(r.OnchainIntel)
	d.Sentiment = sentiment(r.Sentiment)
	d.StablecoinWatch = stablecoinWatch(r.StablecoinWatch)
	d.WeekAhead = weekAhead(r.WeekAhead)

	return d
}

func logDrift(field string, model Number, truth float64) {
	if !model.Valid || model.Value == truth {
		return
	}
	log.Debug().
		Str("field", field).
		Float64("model", model.Value).
		Float64("computed", truth).
		Msg("Replacing model figure with computed value")
}

func weekAhead(w *WeekAhead) models.WeekAhead {
	bias, ok := models.ParseBias(w.Bias)
	if !ok {
		log.Warn().Str("bias", w.Bias).Msg("Unknown outlook bias, using neutral")
	}
	watchlist := clean(w.Watchlist)
	if watchlist == nil {
		watchlist = []string{}
	}
	return models.WeekAhead{
		Bias:      bias,
		Analysis:  strings.TrimSpace(w.Analysis),
		Scenarios: strings.TrimSpace(w.Scenarios),
		Watchlist: watchlist,
	}
}

func whatHappened(s *models.WhatHappened) *models.WhatHappened {
	if s == nil {
		return nil
	}
	out := &models.WhatHappened{Summary: strings.TrimSpace(s.Summary), Bullets: clean(s.Bullets)}
	if out.Summary == "" && len(out.Bullets) == 0 {
		return nil
	}
	return out
}

func priceAction(s *models.PriceAction) *models.PriceAction {
	if s == nil {
		return nil
	}
	out := &models.PriceAction{
		Summary:     strings.TrimSpace(s.Summary),
		KeyLevels:   clean(s.KeyLevels),
		Correlation: strings.TrimSpace(s.Correlation),
	}
	if out.Summary == "" && len(out.KeyLevels) == 0 && out.Correlation == "" {
		return nil
	}
	return out
}

func onchainIntel(s *models.OnchainIntel) *models.OnchainIntel {
	if s == nil {
		return nil
	}
	out := &models.OnchainIntel{Summary: strings.TrimSpace(s.Summary), Highlights: clean(s.Highlights)}
	if out.Summary == "" && len(out.Highlights) == 0 {
		return nil
	}
	return out
}

func sentiment(s *models.Sentiment) *models.Sentiment {
	if s == nil {
		return nil
	}
	out := &models.Sentiment{
		Summary:   strings.TrimSpace(s.Summary),
		FearGreed: strings.TrimSpace(s.FearGreed),
		Social:    strings.TrimSpace(s.Social),
	}
	if out.Summary == "" && out.FearGreed == "" && out.Social == "" {
		return nil
	}
	return out
}

func stablecoinWatch(s *models.StablecoinWatch) *models.StablecoinWatch {
	if s == nil || strings.TrimSpace(s.Summary) == "" {
		return nil
	}
	return &models.StablecoinWatch{Summary: strings.TrimSpace(s.Summary)}
}

// clean trims items and drops empty ones.
func clean(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
