package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

func newTestWatcher(status chan domain.WorkerStatus, rec *progressRecorder, pools ...string) *watcher {
	latest := make(map[string]domain.WorkerStatus)
	for _, p := range pools {
		latest[p] = domain.WorkerStatus{Pool: p, Total: 2, State: domain.WorkerStateInitialization}
	}
	return &watcher{
		interval: time.Millisecond,
		limit:    16,
		status:   status,
		latest:   latest,
		progress: rec.record,
		log:      zerolog.Nop(),
	}
}

func TestWatcher_FailureWinsOverCompletion(t *testing.T) {
	status := make(chan domain.WorkerStatus, 8)
	rec := &progressRecorder{}
	w := newTestWatcher(status, rec, "A", "B")

	status <- domain.WorkerStatus{Pool: "A", Completed: 2, Total: 2, State: domain.WorkerStateCompleted}
	status <- domain.WorkerStatus{Pool: "B", Completed: 1, Total: 2, State: domain.WorkerStateFailed}
	status <- domain.WorkerStatus{Pool: "B", Completed: 2, Total: 2, State: domain.WorkerStateCompleted}

	outcome := w.watch(context.Background())

	assert.Equal(t, domain.RunStateFailed, outcome)
	values := rec.snapshot()
	assert.Equal(t, HaltSentinel, values[len(values)-1])
	assert.Equal(t, domain.WorkerStateFailed, w.latest["B"].State, "no status is accepted after Failed")
}

func TestWatcher_AggregatePercent(t *testing.T) {
	status := make(chan domain.WorkerStatus, 8)
	rec := &progressRecorder{}
	w := newTestWatcher(status, rec, "A", "B")

	w.apply(domain.WorkerStatus{Pool: "A", Completed: 1, Total: 2, State: domain.WorkerStateRunning})
	assert.Equal(t, 25.0, w.percent())

	// Out-of-order regression keeps the higher count
	w.apply(domain.WorkerStatus{Pool: "A", Completed: 0, Total: 2, State: domain.WorkerStateRunning})
	assert.Equal(t, 25.0, w.percent())

	w.apply(domain.WorkerStatus{Pool: "B", Completed: 2, Total: 2, State: domain.WorkerStateCompleted})
	assert.Equal(t, 75.0, w.percent())
	assert.False(t, w.allCompleted())
}

func TestWatcher_CancelledContext(t *testing.T) {
	status := make(chan domain.WorkerStatus, 8)
	rec := &progressRecorder{}
	w := newTestWatcher(status, rec, "A")

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(domain.ErrRunCancelled)

	assert.Equal(t, domain.RunStateCancelled, w.watch(ctx))
	values := rec.snapshot()
	assert.Equal(t, HaltSentinel, values[len(values)-1])
}
