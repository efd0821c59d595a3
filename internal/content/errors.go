package content

import (
	"errors"
	"fmt"

	"github.com/leeaandrob/xrpdigest/internal/models"
)

// Run-level failure classes. Source failures never surface here; they degrade
// to placeholders inside the run.
var (
	ErrSynthesis       = errors.New("synthesis failed")
	ErrMalformedOutput = errors.New("malformed synthesis output")
	ErrPeriodConflict  = errors.New("digest already exists for period")
	ErrPersistence     = errors.New("persistence failed")
)

// ConflictError reports that the period's digest is already stored.
type ConflictError struct {
	Slug string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPeriodConflict, e.Slug)
}

// Is makes errors.Is(err, ErrPeriodConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrPeriodConflict
}

// Result is the outcome of a successful run.
type Result struct {
	RunID   string
	Digest  *models.Digest
	Sources map[string]bool
}
