// Package period computes the reporting period for the weekly digest.
package period

import (
	"time"

	"github.com/leeaandrob/xrpdigest/internal/models"
)

// Previous returns the last complete Monday–Sunday week before the week containing now.
// Dates are computed in UTC so the slug does not depend on the host time zone.
func Previous(now time.Time) models.Period {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Days since Monday (Monday=0 ... Sunday=6)
	sinceMonday := (int(today.Weekday()) + 6) % 7
	thisMonday := today.AddDate(0, 0, -sinceMonday)

	start := thisMonday.AddDate(0, 0, -7)
	end := start.AddDate(0, 0, 6)

	return models.Period{
		Start: start,
		End:   end,
		Slug:  start.Format(models.SlugLayout),
	}
}
