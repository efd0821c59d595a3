// Package format turns source snapshots into the fixed-shape text blocks that
// are embedded in the digest prompt. Every formatter is pure and never fails:
// absent or structurally empty input yields the category's placeholder.
package format

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Placeholders emitted when a category has no usable data.
const (
	NewsUnavailable        = "News data unavailable this week."
	PriceUnavailable       = "Price data unavailable this week."
	CorrelationUnavailable = "Correlation data unavailable this week."
	FearGreedUnavailable   = "Fear & Greed data unavailable this week."
	OnChainUnavailable     = "On-chain data unavailable this week."
	RichListUnavailable    = "Rich list data unavailable this week."
	SocialUnavailable      = "Social data unavailable this week."
	StablecoinUnavailable  = "Stablecoin data unavailable this week."
)

const unavailable = "unavailable"

// missing renders a labelled placeholder for one metric.
func missing(label string) string {
	return fmt.Sprintf("- %s: %s", label, unavailable)
}

// formatAmount renders large amounts with a B/M/K suffix.
func formatAmount(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.2fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", v/1_000)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

func formatUSD(v float64) string {
	return "$" + formatAmount(v)
}

func formatPrice(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

func formatPct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// clip shortens s to at most n runes, appending an ellipsis when cut.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}

func dayOf(ms float64) string {
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02")
}

func block(lines []string) string {
	return strings.Join(lines, "\n")
}
