// Package render turns a validated digest into its HTML fragment.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown is built once; goldmark.Markdown is safe for concurrent use.
// Raw HTML in model text is omitted since WithUnsafe is never set.
var (
	markdown     goldmark.Markdown
	markdownOnce sync.Once
)

func converter() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.Linkify,
			),
		)
	})
	return markdown
}

// HTML renders d. Sections appear in a fixed order and absent optional
// sections produce no markup. Output depends only on d.
func HTML(d models.Digest) string {
	var b strings.Builder

	b.WriteString(`<article class="xrp-digest">` + "\n")
	header(&b, d)

	if s := d.WhatHappened; s != nil {
		open(&b, "what-happened", "What Happened")
		prose(&b, s.Summary)
		list(&b, "", s.Bullets)
		closeSection(&b)
	}

	if s := d.PriceAction; s != nil {
		open(&b, "price-action", "Price Action")
		prose(&b, s.Summary)
		list(&b, "Key levels", s.KeyLevels)
		labelled(&b, "Versus the majors", s.Correlation)
		closeSection(&b)
	}

	if s := d.OnchainIntel; s != nil {
		open(&b, "onchain-intel", "On-Chain Intel")
		prose(&b, s.Summary)
		list(&b, "", s.Highlights)
		closeSection(&b)
	}

	if s := d.Sentiment; s != nil {
		open(&b, "sentiment", "Sentiment")
		prose(&b, s.Summary)
		labelled(&b, "Fear &amp; Greed", s.FearGreed)
		labelled(&b, "Community", s.Social)
		closeSection(&b)
	}

	if s := d.StablecoinWatch; s != nil {
		open(&b, "stablecoin-watch", "Stablecoin Watch")
		prose(&b, s.Summary)
		closeSection(&b)
	}

	weekAhead(&b, d.WeekAhead)

	if d.Signoff != "" {
		fmt.Fprintf(&b, "<footer><p class=\"signoff\">%s</p></footer>\n", html.EscapeString(d.Signoff))
	}
	b.WriteString("</article>\n")
	return b.String()
}

func header(b *strings.Builder, d models.Digest) {
	b.WriteString("<header>\n")
	fmt.Fprintf(b, "<h1>%s</h1>\n", html.EscapeString(d.Title))
	if d.WeekRange != "" {
		fmt.Fprintf(b, "<p class=\"week-range\">%s</p>\n", html.EscapeString(d.WeekRange))
	}

	direction := "flat"
	switch {
	case d.XRPChangePct > 0:
		direction = "up"
	case d.XRPChangePct < 0:
		direction = "down"
	}
	fmt.Fprintf(b, "<p class=\"price-summary %s\">XRP $%.4f &rarr; $%.4f (%+.2f%%)</p>\n",
		direction, d.XRPOpen, d.XRPClose, d.XRPChangePct)
	b.WriteString("</header>\n")
}

func weekAhead(b *strings.Builder, w models.WeekAhead) {
	open(b, "week-ahead", "Week Ahead")
	bias := string(w.Bias)
	if bias == "" {
		bias = string(models.BiasNeutral)
	}
	fmt.Fprintf(b, "<p class=\"bias bias-%s\">Bias: %s</p>\n", bias, strings.ToUpper(bias[:1])+bias[1:])
	prose(b, w.Analysis)
	labelled(b, "Scenarios", w.Scenarios)
	list(b, "Watchlist", w.Watchlist)
	closeSection(b)
}

func open(b *strings.Builder, class, title string) {
	fmt.Fprintf(b, "<section class=%q>\n<h2>%s</h2>\n", class, title)
}

func closeSection(b *strings.Builder) {
	b.WriteString("</section>\n")
}

// prose converts markdown narrative to HTML.
func prose(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	var buf bytes.Buffer
	if err := converter().Convert([]byte(text), &buf); err != nil {
		fmt.Fprintf(b, "<p>%s</p>\n", html.EscapeString(text))
		return
	}
	b.Write(buf.Bytes())
}

// labelled renders a titled paragraph. label is trusted markup.
func labelled(b *strings.Builder, label, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "<h3>%s</h3>\n", label)
	prose(b, text)
}

func list(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	if label != "" {
		fmt.Fprintf(b, "<h3>%s</h3>\n", label)
	}
	b.WriteString("<ul>\n")
	for _, it := range items {
		fmt.Fprintf(b, "<li>%s</li>\n", inline(it))
	}
	b.WriteString("</ul>\n")
}

// inline renders a single line of markdown without the wrapping paragraph.
func inline(text string) string {
	var buf bytes.Buffer
	if err := converter().Convert([]byte(text), &buf); err != nil {
		return html.EscapeString(text)
	}
	out := strings.TrimSpace(buf.String())
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		return strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
	}
	return html.EscapeString(text)
}
