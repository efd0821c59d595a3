package format

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/leeaandrob/xrpdigest/internal/aggregate"
	"github.com/leeaandrob/xrpdigest/internal/models"
)

// News formats the week's top news articles.
func News(snap aggregate.Snapshot[[]models.NewsArticle]) string {
	if !snap.OK || len(snap.Value) == 0 {
		return NewsUnavailable
	}

	lines := []string{fmt.Sprintf("Top %d XRP news stories this week:", len(snap.Value))}
	for _, a := range snap.Value {
		title := strings.TrimSpace(a.Title)
		if title == "" {
			title = "Untitled"
		}

		head := "- " + title
		if a.Source != "" {
			head = fmt.Sprintf("- [%s] %s", a.Source, title)
		}
		if !a.PublishedAt.IsZero() {
			head += fmt.Sprintf(" (%s)", a.PublishedAt.UTC().Format("Jan 2"))
		}

		if summary := plainText(a.Summary); summary != "" {
			head += ": " + clip(summary, 240)
		}
		lines = append(lines, head)
	}
	return block(lines)
}

// plainText strips markup from stored summaries.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
