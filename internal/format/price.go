package format

import (
	"fmt"

	"github.com/leeaandrob/xrpdigest/internal/aggregate"
	"github.com/leeaandrob/xrpdigest/internal/source"
	"github.com/shopspring/decimal"
)

// PriceStats are the statistics derived from one price/volume series.
type PriceStats struct {
	Open         float64
	Close        float64
	ChangePct    float64
	High         float64
	Low          float64
	DailyVolumes []DayVolume
}

// DayVolume is the average reported volume for one UTC calendar day.
type DayVolume struct {
	Day string
	Avg float64
}

// ComputePriceStats derives open/close/change/high/low and per-day volume
// averages. It reports false for series with fewer than two points or a
// non-positive opening price.
func ComputePriceStats(prices, volumes [][2]float64) (PriceStats, bool) {
	if len(prices) < 2 {
		return PriceStats{}, false
	}

	open := prices[0][1]
	closing := prices[len(prices)-1][1]
	if open <= 0 {
		return PriceStats{}, false
	}

	high, low := open, open
	for _, p := range prices[1:] {
		if p[1] > high {
			high = p[1]
		}
		if p[1] < low {
			low = p[1]
		}
	}

	return PriceStats{
		Open:         open,
		Close:        closing,
		ChangePct:    ChangePct(open, closing),
		High:         high,
		Low:          low,
		DailyVolumes: dailyVolumes(volumes),
	}, true
}

// ChangePct returns (close-open)/open*100 rounded to two decimals.
func ChangePct(open, closing float64) float64 {
	if open == 0 {
		return 0
	}
	o := decimal.NewFromFloat(open)
	c := decimal.NewFromFloat(closing)
	return c.Sub(o).Div(o).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// dailyVolumes buckets volume points by UTC day, in chronological order.
func dailyVolumes(volumes [][2]float64) []DayVolume {
	if len(volumes) == 0 {
		return nil
	}

	var (
		days   []string
		sums   = map[string]float64{}
		counts = map[string]int{}
	)
	for _, v := range volumes {
		day := dayOf(v[0])
		if _, seen := counts[day]; !seen {
			days = append(days, day)
		}
		sums[day] += v[1]
		counts[day]++
	}

	out := make([]DayVolume, 0, len(days))
	for _, day := range days {
		out = append(out, DayVolume{Day: day, Avg: sums[day] / float64(counts[day])})
	}
	return out
}

// StatsFor computes price statistics from a chart snapshot.
func StatsFor(chart aggregate.Snapshot[*source.MarketChart]) (PriceStats, bool) {
	if !chart.OK || chart.Value == nil {
		return PriceStats{}, false
	}
	return ComputePriceStats(chart.Value.Prices, chart.Value.TotalVolumes)
}

// Price formats the XRP price block.
func Price(chart aggregate.Snapshot[*source.MarketChart]) string {
	stats, ok := StatsFor(chart)
	if !ok {
		return PriceUnavailable
	}

	lines := []string{
		"XRP 7-day price (USD):",
		fmt.Sprintf("- Open: %s", formatPrice(stats.Open)),
		fmt.Sprintf("- Close: %s", formatPrice(stats.Close)),
		fmt.Sprintf("- Change: %s", formatPct(stats.ChangePct)),
		fmt.Sprintf("- High: %s", formatPrice(stats.High)),
		fmt.Sprintf("- Low: %s", formatPrice(stats.Low)),
	}

	if len(stats.DailyVolumes) == 0 {
		lines = append(lines, missing("Daily average volume"))
	} else {
		lines = append(lines, "- Daily average volume:")
		for _, dv := range stats.DailyVolumes {
			lines = append(lines, fmt.Sprintf("  - %s: %s", dv.Day, formatUSD(dv.Avg)))
		}
	}
	return block(lines)
}

// Correlation formats BTC and ETH performance against XRP.
func Correlation(btc, eth aggregate.Snapshot[*source.MarketChart], xrp *PriceStats) string {
	btcStats, btcOK := StatsFor(btc)
	ethStats, ethOK := StatsFor(eth)
	if !btcOK && !ethOK {
		return CorrelationUnavailable
	}

	lines := []string{"Majors over the same 7 days (USD):"}
	lines = append(lines, assetLine("BTC", btcStats, btcOK)...)
	lines = append(lines, assetLine("ETH", ethStats, ethOK)...)

	if xrp != nil {
		if btcOK {
			lines = append(lines, relativeLine("BTC", xrp.ChangePct, btcStats.ChangePct))
		}
		if ethOK {
			lines = append(lines, relativeLine("ETH", xrp.ChangePct, ethStats.ChangePct))
		}
	} else {
		lines = append(lines, missing("XRP relative performance"))
	}
	return block(lines)
}

func assetLine(name string, stats PriceStats, ok bool) []string {
	if !ok {
		return []string{missing(name)}
	}
	return []string{fmt.Sprintf("- %s: %s (open %s, close %s, high %s, low %s)",
		name,
		formatPct(stats.ChangePct),
		formatUSD(stats.Open),
		formatUSD(stats.Close),
		formatUSD(stats.High),
		formatUSD(stats.Low),
	)}
}

func relativeLine(name string, xrpPct, otherPct float64) string {
	diff := decimal.NewFromFloat(xrpPct).Sub(decimal.NewFromFloat(otherPct)).Round(2).InexactFloat64()
	return fmt.Sprintf("- XRP vs %s: %+.2f pp", name, diff)
}
