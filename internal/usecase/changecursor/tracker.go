package changecursor

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// Tracker owns the change cursor during the diff phase of a run.
// After the diff phase the cursor is handed read-only to the scheduler.
type Tracker struct {
	cursor *domain.ChangeCursor
	log    zerolog.Logger
}

// NewTracker starts from the previously stored cursor, or from "nothing
// pending as of now" when there is none
func NewTracker(stored *domain.ChangeCursor, now time.Time, perPool bool, log zerolog.Logger) *Tracker {
	var cursor *domain.ChangeCursor
	if stored == nil {
		cursor = domain.NewChangeCursor(now, perPool)
	} else {
		cursor = stored.Clone()
		cursor.Active = perPool
	}
	return &Tracker{
		cursor: cursor,
		log:    log.With().Str("component", "cursor_tracker").Logger(),
	}
}

// Apply lowers the cursors for every difference and removal of a diff
func (t *Tracker) Apply(result DiffResult) {
	for _, d := range result.Differences {
		t.cursor.Lower(d.New.Pool, d.New.Date)
	}
	for _, r := range result.Removed {
		t.cursor.Lower(r.Pool, r.Date)
	}
	if result.HasChanges() {
		t.log.Info().
			Str("table", result.Table).
			Time("earliest", result.Earliest).
			Time("global", t.cursor.Global).
			Msg("change cursor lowered")
	}
}

// Cursor returns the current cursor
func (t *Tracker) Cursor() *domain.ChangeCursor {
	return t.cursor
}
