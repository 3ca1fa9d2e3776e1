package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// worker recomputes the pending months of a single pool
type worker struct {
	runID    uuid.UUID
	calc     PoolCalculator
	metrics  Collector
	log      zerolog.Logger
	cancel   context.CancelCauseFunc
	status   chan<- domain.WorkerStatus
	intents  chan<- intent
	assign   Assignment
	cache    domain.PoolCache
	funds    domain.FundLookup
	priorRow []domain.CalculationRow
}

// run iterates the pool's months, checking for a halt between months.
// It posts Running with a monotonic completed count after every month and
// exactly one terminal Completed or Failed.
func (w *worker) run(ctx context.Context) (err error) {
	if ctx.Err() != nil {
		// Halted before this pool was scheduled
		return nil
	}

	started := time.Now()
	total := len(w.assign.NewMonths)
	log := w.log.With().Str("pool", w.assign.Pool).Int("months", total).Logger()

	var current time.Time
	completed := 0
	defer func() {
		if r := recover(); r != nil {
			err = w.fail(ctx, current, fmt.Errorf("panic: %v", r), completed, log)
		}
	}()

	if !w.post(ctx, domain.WorkerStatus{Pool: w.assign.Pool, Total: total, State: domain.WorkerStateRunning}) {
		return nil
	}

	previous := w.priorMonth(w.assign.NewMonths[0].ID)
	for i, month := range w.assign.NewMonths {
		if ctx.Err() != nil {
			log.Debug().Int("completed", i).Msg("worker observed halt")
			return nil
		}
		current = month.ID

		rows, calcErr := w.calc.CalculateMonth(ctx, MonthInput{
			Pool:     w.assign.Pool,
			Month:    month,
			Cache:    w.cache,
			Funds:    w.funds,
			Previous: previous,
		})
		if calcErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return w.fail(ctx, month.ID, calcErr, i, log)
		}

		select {
		case w.intents <- intent{runID: w.runID, pool: w.assign.Pool, month: month.ID, rows: rows}:
		case <-ctx.Done():
			return nil
		}
		w.metrics.MonthComputed(w.assign.Pool)
		previous = rows
		completed = i + 1

		st := domain.WorkerStatus{Pool: w.assign.Pool, Completed: i + 1, Total: total, State: domain.WorkerStateRunning}
		if i+1 == total {
			st.State = domain.WorkerStateCompleted
		}
		if !w.post(ctx, st) {
			return nil
		}
	}

	w.metrics.PoolFinished(w.assign.Pool, domain.WorkerStateCompleted, time.Since(started))
	log.Debug().Dur("elapsed", time.Since(started)).Msg("pool completed")
	return nil
}

// fail records the failure as the run's cancellation cause and posts the
// Failed status. No further status is posted afterwards.
func (w *worker) fail(ctx context.Context, month time.Time, cause error, completed int, log zerolog.Logger) error {
	poolErr := &domain.PoolComputeError{Pool: w.assign.Pool, Month: month, Err: cause}
	w.cancel(poolErr)

	select {
	case w.status <- domain.WorkerStatus{Pool: w.assign.Pool, Completed: completed, Total: len(w.assign.NewMonths), State: domain.WorkerStateFailed}:
	default:
		// The watcher also observes the cancellation cause
	}
	w.metrics.PoolFinished(w.assign.Pool, domain.WorkerStateFailed, 0)
	log.Error().Err(cause).Time("month", month).Msg("pool computation failed")
	return poolErr
}

func (w *worker) post(ctx context.Context, st domain.WorkerStatus) bool {
	select {
	case w.status <- st:
		return true
	case <-ctx.Done():
		return false
	}
}

// priorMonth returns the persisted rows of the month preceding first
func (w *worker) priorMonth(first time.Time) []domain.CalculationRow {
	want := first.AddDate(0, -1, 0)
	var rows []domain.CalculationRow
	for _, r := range w.priorRow {
		if r.Month.Equal(want) {
			rows = append(rows, r)
		}
	}
	return rows
}
