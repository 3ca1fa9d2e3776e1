package scheduler

import (
	"sort"
	"time"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// Assignment is the work of one pool for a run
type Assignment struct {
	Pool      string
	Since     time.Time            // Pool's change cursor
	NewMonths []domain.MonthWindow // Months to recompute, ascending
}

// Plan computes, per pool, the months whose window end is on or after the
// pool's change cursor. When hasPrior is false every month is recomputed.
// Pools are returned sorted by name.
func Plan(pools []string, cursor *domain.ChangeCursor, months []domain.MonthWindow, hasPrior bool, now time.Time) []Assignment {
	sorted := make([]string, len(pools))
	copy(sorted, pools)
	sort.Strings(sorted)

	assignments := make([]Assignment, 0, len(sorted))
	for _, pool := range sorted {
		a := Assignment{Pool: pool}
		if !hasPrior || cursor == nil {
			a.NewMonths = months
			if len(months) > 0 {
				a.Since = months[0].ID
			}
			assignments = append(assignments, a)
			continue
		}

		a.Since = cursor.Since(pool, now)
		for i, m := range months {
			if !m.End.Before(a.Since) {
				a.NewMonths = months[i:]
				break
			}
		}
		assignments = append(assignments, a)
	}
	return assignments
}
