package scheduler

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// intent is a pending write of one pool month produced by a worker
type intent struct {
	runID uuid.UUID
	pool  string
	month time.Time
	rows  []domain.CalculationRow
}

// intentCollector is the single consumer of persistence intents.
// Intents are buffered and only written once the whole run succeeded.
type intentCollector struct {
	runID   uuid.UUID
	pending map[string]map[time.Time][]domain.CalculationRow
}

func newIntentCollector(runID uuid.UUID) *intentCollector {
	return &intentCollector{
		runID:   runID,
		pending: make(map[string]map[time.Time][]domain.CalculationRow),
	}
}

// consume reads intents until the channel is closed or stop is closed.
// Intents of other runs are ignored.
func (c *intentCollector) consume(intents <-chan intent, stop <-chan struct{}) {
	for {
		select {
		case in, ok := <-intents:
			if !ok {
				return
			}
			if in.runID != c.runID {
				continue
			}
			byMonth, exists := c.pending[in.pool]
			if !exists {
				byMonth = make(map[time.Time][]domain.CalculationRow)
				c.pending[in.pool] = byMonth
			}
			// A month is replaced as a whole, never blended
			byMonth[in.month] = in.rows
		case <-stop:
			return
		}
	}
}

// rows returns every buffered row in deterministic order
func (c *intentCollector) rows() []domain.CalculationRow {
	var out []domain.CalculationRow
	for _, byMonth := range c.pending {
		for _, rows := range byMonth {
			out = append(out, rows...)
		}
	}
	sortRows(out)
	return out
}

// sortRows orders rows by pool, path and month
func sortRows(rows []domain.CalculationRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Pool != b.Pool {
			return a.Pool < b.Pool
		}
		pa, pb := a.Path(), b.Path()
		if pa != pb {
			return pa < pb
		}
		return a.Month.Before(b.Month)
	})
}
