package format

import (
	"fmt"
	"strings"

	"github.com/leeaandrob/xrpdigest/internal/aggregate"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/leeaandrob/xrpdigest/internal/source"
	"github.com/shopspring/decimal"
)

// FearGreed formats the fear & greed index block. Input is most-recent-first.
func FearGreed(snap aggregate.Snapshot[*source.FearGreed]) string {
	if !snap.OK || snap.Value == nil || len(snap.Value.Data) == 0 {
		return FearGreedUnavailable
	}
	points := snap.Value.Data

	var (
		readings []string
		sum      int
		n        int
	)
	for _, p := range points {
		v, ok := p.Int()
		if !ok {
			readings = append(readings, "n/a")
			continue
		}
		readings = append(readings, fmt.Sprintf("%d", v))
		sum += v
		n++
	}
	if n == 0 {
		return FearGreedUnavailable
	}

	lines := []string{"Crypto Fear & Greed Index (0-100):"}
	lines = append(lines, reading("Current", points[0]))
	lines = append(lines, reading("Week start", points[len(points)-1]))

	avg := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(n))).Round(1)
	lines = append(lines, fmt.Sprintf("- 7-day average: %s", avg.StringFixed(1)))
	lines = append(lines, fmt.Sprintf("- Daily readings (newest first): %s", strings.Join(readings, ", ")))
	return block(lines)
}

func reading(label string, p source.FearGreedPoint) string {
	v, ok := p.Int()
	if !ok {
		return missing(label)
	}
	class := strings.TrimSpace(p.Classification)
	if class == "" {
		class = "unclassified"
	}
	return fmt.Sprintf("- %s: %d (%s)", label, v, class)
}

// Social formats the week's top social posts.
func Social(snap aggregate.Snapshot[[]models.SocialPost]) string {
	if !snap.OK || len(snap.Value) == 0 {
		return SocialUnavailable
	}

	lines := []string{fmt.Sprintf("Top %d community posts this week:", len(snap.Value))}
	for _, p := range snap.Value {
		who := p.Handle
		if who == "" {
			who = p.Author
		}
		if who == "" {
			who = "anonymous"
		}
		who = "@" + strings.TrimPrefix(who, "@")
		lines = append(lines, fmt.Sprintf("- %s (%d likes, %d reposts): %s",
			who, p.Likes, p.Reposts, clip(p.Content, 200)))
	}
	return block(lines)
}
