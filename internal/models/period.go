package models

import (
	"fmt"
	"time"
)

// SlugLayout is the date layout used for period slugs.
const SlugLayout = "2006-01-02"

// Period is the Monday–Sunday week a digest summarizes.
type Period struct {
	Start time.Time
	End   time.Time
	Slug  string
}

// WeekRange returns the display string for the period, e.g. "Feb 9 - Feb 15, 2026".
func (p Period) WeekRange() string {
	if p.Start.Year() != p.End.Year() {
		return fmt.Sprintf("%s - %s", p.Start.Format("Jan 2, 2006"), p.End.Format("Jan 2, 2006"))
	}
	return fmt.Sprintf("%s - %s", p.Start.Format("Jan 2"), p.End.Format("Jan 2, 2006"))
}
