package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// watcher aggregates worker statuses into an overall percent complete.
// It never waits on workers directly; completion is inferred from statuses.
type watcher struct {
	interval time.Duration
	limit    int
	status   <-chan domain.WorkerStatus
	latest   map[string]domain.WorkerStatus
	progress ProgressFunc
	log      zerolog.Logger

	failure error
	last    float64
}

// watch runs until every pool completed, a pool failed or ctx is done.
// A failure observed in the same drain as the final completion still halts the run.
func (w *watcher) watch(ctx context.Context) domain.RunState {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.last = -2
	w.emit(w.percent())
	if w.allCompleted() {
		w.emit(100)
		return domain.RunStateCompleted
	}

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			// Consume what is already queued so a Failed status is not lost
			w.drain()
		}

		w.drain()
		if w.failure != nil {
			w.emit(HaltSentinel)
			return domain.RunStateFailed
		}
		if ctx.Err() != nil {
			w.emit(HaltSentinel)
			if _, ok := context.Cause(ctx).(*domain.PoolComputeError); ok {
				return domain.RunStateFailed
			}
			return domain.RunStateCancelled
		}
		if w.allCompleted() {
			w.emit(100)
			return domain.RunStateCompleted
		}
		w.emit(w.percent())
	}
}

// drain consumes at most limit queued statuses without blocking
func (w *watcher) drain() {
	for i := 0; i < w.limit; i++ {
		select {
		case st := <-w.status:
			w.apply(st)
		default:
			return
		}
	}
}

func (w *watcher) apply(st domain.WorkerStatus) {
	prev, ok := w.latest[st.Pool]
	if ok && prev.State == domain.WorkerStateFailed {
		return
	}
	if ok && st.Completed < prev.Completed {
		// Out-of-contract regression; keep the higher count
		st.Completed = prev.Completed
	}
	if st.Total == 0 && ok {
		st.Total = prev.Total
	}
	w.latest[st.Pool] = st

	if st.State == domain.WorkerStateFailed && w.failure == nil {
		w.failure = &domain.PoolComputeError{Pool: st.Pool, Err: domain.ErrPoolComputeFailure}
		w.log.Warn().Str("pool", st.Pool).Int("completed", st.Completed).Msg("worker reported failure")
	}
}

func (w *watcher) allCompleted() bool {
	for _, st := range w.latest {
		if st.State != domain.WorkerStateCompleted {
			return false
		}
	}
	return true
}

// percent returns sum(completed) / sum(total) across the latest statuses
func (w *watcher) percent() float64 {
	completed, total := 0, 0
	for _, st := range w.latest {
		completed += st.Completed
		total += st.Total
	}
	if total == 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

// emit forwards a progress value when it changed since the last emission
func (w *watcher) emit(p float64) {
	if p == w.last {
		return
	}
	w.last = p
	w.progress(p)
}
