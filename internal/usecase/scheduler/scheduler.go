package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// HaltSentinel is the progress value emitted when a run halts on failure or cancellation
const HaltSentinel = -1.0

// ProgressFunc receives aggregate percent complete (0-100) or HaltSentinel
type ProgressFunc func(percent float64)

// MonthInput is everything a calculator needs to compute one pool month
type MonthInput struct {
	Pool     string
	Month    domain.MonthWindow
	Cache    domain.PoolCache // Read-only
	Funds    domain.FundLookup
	Previous []domain.CalculationRow // Rows of the preceding month, computed or reused
}

// PoolCalculator computes the flat rows of one pool for one month.
// Implementations must be safe for concurrent use by different pools.
type PoolCalculator interface {
	CalculateMonth(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error)
}

// Options tunes the worker pool and the watcher
type Options struct {
	Parallelism   int           // Concurrent pool workers; defaults to runtime.NumCPU()
	StatusBuffer  int           // Capacity of the status channel
	IntentBuffer  int           // Capacity of the persistence intent channel
	PollInterval  time.Duration // Watcher tick
	DrainLimit    int           // Max status messages consumed per tick
	HardStopAfter time.Duration // Wait for halted workers before abandoning them
}

// DefaultOptions returns the options used when a field is left zero
func DefaultOptions() Options {
	return Options{
		Parallelism:   runtime.NumCPU(),
		StatusBuffer:  256,
		IntentBuffer:  64,
		PollInterval:  100 * time.Millisecond,
		DrainLimit:    512,
		HardStopAfter: 5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	if o.StatusBuffer <= 0 {
		o.StatusBuffer = d.StatusBuffer
	}
	if o.IntentBuffer <= 0 {
		o.IntentBuffer = d.IntentBuffer
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.DrainLimit <= 0 {
		o.DrainLimit = d.DrainLimit
	}
	if o.HardStopAfter <= 0 {
		o.HardStopAfter = d.HardStopAfter
	}
	return o
}

// RunInput is the hand-off from the diff phase into the scheduler
type RunInput struct {
	Assignments []Assignment
	Cache       domain.Cache
	Funds       domain.FundLookup
	Prior       []domain.CalculationRow // Previously persisted rows of every pool
	Progress    ProgressFunc
}

// Result is the outcome of a successful run
type Result struct {
	RunID    uuid.UUID
	State    domain.RunState
	Computed []domain.CalculationRow // Rows recomputed in this run
	Rows     []domain.CalculationRow // Computed rows merged with reused prior rows
}

// Scheduler recomputes pools in parallel with live progress, cooperative
// cancellation and fail-fast semantics. One run is active at a time.
type Scheduler struct {
	calc    PoolCalculator
	store   domain.CalculationRepository
	opts    Options
	log     zerolog.Logger
	metrics Collector

	mu     sync.Mutex
	state  domain.RunState
	runID  uuid.UUID
	cancel context.CancelCauseFunc
}

// New creates a Scheduler. store may be nil, in which case nothing is persisted
// and the caller owns persistence of Result.Computed.
func New(calc PoolCalculator, store domain.CalculationRepository, opts Options, log zerolog.Logger, metrics Collector) *Scheduler {
	if metrics == nil {
		metrics = NopCollector{}
	}
	return &Scheduler{
		calc:    calc,
		store:   store,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "scheduler").Logger(),
		metrics: metrics,
		state:   domain.RunStateIdle,
	}
}

// State returns the state of the current or last run
func (s *Scheduler) State() domain.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel requests cooperative cancellation of the active run.
// Returns domain.ErrRunNotFound when no run with that ID is active.
func (s *Scheduler) Cancel(runID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil || (runID != uuid.Nil && runID != s.runID) {
		return domain.ErrRunNotFound
	}
	s.cancel(domain.ErrRunCancelled)
	return nil
}

func (s *Scheduler) setState(state domain.RunState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run executes one calculation run.
// Logic:
//  1. Register an Initialization status for every pool before any worker starts
//  2. Dispatch one task per pool with pending months to a bounded errgroup
//  3. The watcher aggregates progress until all pools complete or one fails/the run is cancelled
//  4. On success, merge computed rows with reused prior rows and persist the computed months
//
// On halt nothing is persisted and the error is domain.ErrRunCancelled or a
// *domain.PoolComputeError.
func (s *Scheduler) Run(ctx context.Context, in RunInput) (*Result, error) {
	runID := uuid.New()
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil, domain.ErrRunInProgress
	}
	s.runID = runID
	s.cancel = cancel
	s.state = domain.RunStateInitializing
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	log := s.log.With().Str("run_id", runID.String()).Logger()
	started := time.Now()
	s.metrics.RunStarted(len(in.Assignments))

	progress := in.Progress
	if progress == nil {
		progress = func(float64) {}
	}

	statusCh := make(chan domain.WorkerStatus, s.opts.StatusBuffer)
	intentCh := make(chan intent, s.opts.IntentBuffer)

	initial := make(map[string]domain.WorkerStatus, len(in.Assignments))
	for _, a := range in.Assignments {
		st := domain.WorkerStatus{Pool: a.Pool, Total: len(a.NewMonths), State: domain.WorkerStateInitialization}
		if len(a.NewMonths) == 0 {
			st.State = domain.WorkerStateCompleted
		}
		initial[a.Pool] = st
	}

	priorByPool := groupByPool(in.Prior)

	collector := newIntentCollector(runID)
	collectorDone := make(chan struct{})
	stopCollector := make(chan struct{})
	go func() {
		defer close(collectorDone)
		collector.consume(intentCh, stopCollector)
	}()

	s.setState(domain.RunStateRunning)
	log.Info().Int("pools", len(in.Assignments)).Int("parallelism", s.opts.Parallelism).Msg("calculation run started")

	workersDone := make(chan error, 1)
	go func() {
		g := new(errgroup.Group)
		g.SetLimit(s.opts.Parallelism)
		for _, a := range in.Assignments {
			if len(a.NewMonths) == 0 {
				continue
			}
			wk := &worker{
				runID:    runID,
				calc:     s.calc,
				metrics:  s.metrics,
				log:      log,
				cancel:   cancel,
				status:   statusCh,
				intents:  intentCh,
				assign:   a,
				cache:    in.Cache.Slice(a.Pool),
				funds:    in.Funds,
				priorRow: priorByPool[a.Pool],
			}
			g.Go(func() error {
				return wk.run(runCtx)
			})
		}
		err := g.Wait()
		close(intentCh)
		workersDone <- err
	}()

	w := &watcher{
		interval: s.opts.PollInterval,
		limit:    s.opts.DrainLimit,
		status:   statusCh,
		latest:   initial,
		progress: func(p float64) {
			s.metrics.Progress(p)
			progress(p)
		},
		log: log,
	}
	outcome := w.watch(runCtx)

	if outcome != domain.RunStateCompleted {
		// Make sure every worker observes the halt
		if outcome == domain.RunStateFailed {
			cancel(w.failure)
		} else {
			cancel(domain.ErrRunCancelled)
		}
		close(stopCollector)
		s.awaitHalt(workersDone, log)

		runErr := s.haltError(runCtx, w)
		state := domain.RunStateFailed
		if errors.Is(runErr, domain.ErrRunCancelled) {
			state = domain.RunStateCancelled
		}
		s.setState(state)
		s.metrics.RunFinished(state, time.Since(started))
		log.Warn().Err(runErr).Str("state", string(state)).Msg("calculation run halted, nothing persisted")
		return nil, runErr
	}

	if err := <-workersDone; err != nil {
		// A worker failed after the watcher saw every pool complete; treat as failure
		close(stopCollector)
		s.setState(domain.RunStateFailed)
		s.metrics.RunFinished(domain.RunStateFailed, time.Since(started))
		return nil, err
	}
	<-collectorDone

	computed := collector.rows()
	merged := mergeRows(in.Assignments, priorByPool, computed)

	if scope := recomputedMonths(in.Assignments); s.store != nil && len(scope) > 0 {
		if err := s.store.SaveRows(ctx, computed, domain.SaveModeReplace, scope); err != nil {
			s.setState(domain.RunStateFailed)
			s.metrics.RunFinished(domain.RunStateFailed, time.Since(started))
			return nil, fmt.Errorf("failed to persist calculation rows: %w", err)
		}
	}

	s.setState(domain.RunStateCompleted)
	s.metrics.RunFinished(domain.RunStateCompleted, time.Since(started))
	log.Info().
		Int("computed", len(computed)).
		Int("rows", len(merged)).
		Dur("elapsed", time.Since(started)).
		Msg("calculation run completed")

	return &Result{
		RunID:    runID,
		State:    domain.RunStateCompleted,
		Computed: computed,
		Rows:     merged,
	}, nil
}

// awaitHalt waits for workers to observe the halt, abandoning them after HardStopAfter.
// Abandoned workers can no longer write: the collector has stopped.
func (s *Scheduler) awaitHalt(workersDone <-chan error, log zerolog.Logger) {
	timer := time.NewTimer(s.opts.HardStopAfter)
	defer timer.Stop()
	select {
	case <-workersDone:
	case <-timer.C:
		log.Error().Dur("grace", s.opts.HardStopAfter).Msg("workers did not stop in time, abandoning their results")
	}
}

func (s *Scheduler) haltError(runCtx context.Context, w *watcher) error {
	cause := context.Cause(runCtx)
	var poolErr *domain.PoolComputeError
	if errors.As(cause, &poolErr) {
		return poolErr
	}
	if w.failure != nil {
		return w.failure
	}
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, domain.ErrRunCancelled) {
		return domain.ErrRunCancelled
	}
	return fmt.Errorf("%w: %v", domain.ErrRunCancelled, cause)
}

func groupByPool(rows []domain.CalculationRow) map[string][]domain.CalculationRow {
	out := make(map[string][]domain.CalculationRow)
	for _, r := range rows {
		out[r.Pool] = append(out[r.Pool], r)
	}
	return out
}

// mergeRows combines computed rows with prior rows of months that were not
// recomputed. A (pool, month) is either fully recomputed or reused verbatim.
// recomputedMonths lists the month IDs of every pool with work in the run
func recomputedMonths(assignments []Assignment) domain.PoolMonths {
	scope := make(domain.PoolMonths)
	for _, a := range assignments {
		for _, m := range a.NewMonths {
			scope[a.Pool] = append(scope[a.Pool], m.ID)
		}
	}
	return scope
}

func mergeRows(assignments []Assignment, prior map[string][]domain.CalculationRow, computed []domain.CalculationRow) []domain.CalculationRow {
	recomputed := make(map[string]map[time.Time]struct{}, len(assignments))
	for _, a := range assignments {
		months := make(map[time.Time]struct{}, len(a.NewMonths))
		for _, m := range a.NewMonths {
			months[m.ID] = struct{}{}
		}
		recomputed[a.Pool] = months
	}

	merged := make([]domain.CalculationRow, 0, len(computed))
	for pool, rows := range prior {
		months := recomputed[pool]
		for _, r := range rows {
			if _, ok := months[r.Month]; ok {
				continue
			}
			merged = append(merged, r)
		}
	}
	merged = append(merged, computed...)
	sortRows(merged)
	return merged
}
