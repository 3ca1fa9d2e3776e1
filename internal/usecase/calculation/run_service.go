package calculation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/changecursor"
	"github.com/simaogato/wealthflow-performance/internal/usecase/scheduler"
)

// DefaultTables are diffed and partitioned on every run
var DefaultTables = []string{domain.TablePositions, domain.TableTransactions}

// RunRequest configures one calculation run
type RunRequest struct {
	PerPoolCursor   bool     // Track a cursor per pool instead of one global cursor
	Force           bool     // Recompute every month regardless of the cursor
	RefreshMetadata bool     // Bypass the fund metadata cache
	Tables          []string // Defaults to DefaultTables
}

// RunSummary describes a finished run
type RunSummary struct {
	RunID     uuid.UUID
	State     domain.RunState
	Pools     int
	Months    int
	Computed  int
	Rows      int
	Changes   map[string]int // Added, changed and removed records per table
	Skipped   int            // Malformed records ignored during the diff
	Cursor    time.Time      // Earliest month recomputed
	StartedAt time.Time
	Elapsed   time.Duration
}

// RunService orchestrates a calculation run: diff, cursor, partition, schedule, persist
type RunService struct {
	Ingestion    domain.IngestionClient
	RecordRepo   domain.RecordRepository
	RowRepo      domain.CalculationRepository
	CursorRepo   domain.CursorRepository
	RunLogRepo   domain.RunLogRepository
	FundProvider domain.FundMetadataProvider
	Scheduler    *scheduler.Scheduler

	// Audit receives the JSONL change log of every run when set
	Audit io.Writer
	Now   func() time.Time

	log     zerolog.Logger
	running atomic.Bool
}

// NewRunService creates a new RunService instance
func NewRunService(
	ingestion domain.IngestionClient,
	recordRepo domain.RecordRepository,
	rowRepo domain.CalculationRepository,
	cursorRepo domain.CursorRepository,
	runLogRepo domain.RunLogRepository,
	fundProvider domain.FundMetadataProvider,
	sched *scheduler.Scheduler,
	log zerolog.Logger,
) *RunService {
	return &RunService{
		Ingestion:    ingestion,
		RecordRepo:   recordRepo,
		RowRepo:      rowRepo,
		CursorRepo:   cursorRepo,
		RunLogRepo:   runLogRepo,
		FundProvider: fundProvider,
		Scheduler:    sched,
		Now:          time.Now,
		log:          log.With().Str("component", "run_service").Logger(),
	}
}

// Run performs one calculation run.
// Logic:
//  1. Fetch each table from ingestion and diff it against the stored snapshot, lowering the change cursor
//  2. Partition the new records by pool and month, plan pending months per pool
//  3. Schedule the pools; the scheduler persists computed rows only when every pool succeeds
//  4. On success store the new snapshots and a fresh cursor; on failure nothing is stored,
//     so the next run detects the same changes and retries the same months
func (s *RunService) Run(ctx context.Context, req RunRequest, progress scheduler.ProgressFunc) (*RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrRunInProgress
	}
	defer s.running.Store(false)

	started := s.Now().UTC()
	tables := req.Tables
	if len(tables) == 0 {
		tables = DefaultTables
	}

	// 1. Diff every table and lower the cursor
	stored, err := s.CursorRepo.LoadCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load change cursor: %w", err)
	}
	tracker := changecursor.NewTracker(stored, started, req.PerPoolCursor, s.log)
	differ := changecursor.NewDiffer(nil, req.PerPoolCursor, s.log)

	summary := &RunSummary{Changes: make(map[string]int, len(tables)), StartedAt: started}
	fetched := make(map[string][]domain.RawRecord, len(tables))
	for _, table := range tables {
		next, err := s.Ingestion.FetchNew(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", table, err)
		}
		previous, err := s.RecordRepo.LoadRecords(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored %s: %w", table, err)
		}

		result := differ.Diff(table, previous, next)
		tracker.Apply(result)
		if s.Audit != nil {
			if err := changecursor.WriteAudit(s.Audit, result); err != nil {
				s.log.Warn().Err(err).Str("table", table).Msg("failed to write change audit")
			}
		}

		fetched[table] = result.Records
		summary.Changes[table] = len(result.Differences) + len(result.Removed)
		summary.Skipped += result.Skipped
	}

	// 2. Partition and plan
	prior, err := s.RowRepo.LoadRows(ctx, domain.CalculationFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load prior calculations: %w", err)
	}
	funds, err := s.FundProvider.Funds(ctx, req.RefreshMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to load fund metadata: %w", err)
	}

	months := monthRange(fetched, started)
	cache := changecursor.Partition(fetched, months, s.log)
	hasPrior := len(prior) > 0 && !req.Force
	assignments := scheduler.Plan(poolsOf(cache, prior), tracker.Cursor(), months, hasPrior, started)

	summary.Pools = len(assignments)
	summary.Months = len(months)
	summary.Cursor = earliestSince(assignments)

	// 3. Schedule
	result, err := s.Scheduler.Run(ctx, scheduler.RunInput{
		Assignments: assignments,
		Cache:       cache,
		Funds:       funds,
		Prior:       prior,
		Progress:    progress,
	})
	if err != nil {
		state := domain.RunStateFailed
		if errors.Is(err, domain.ErrRunCancelled) {
			state = domain.RunStateCancelled
		}
		s.recordRun(ctx, &domain.RunLog{
			ID:         uuid.New(),
			StartedAt:  started,
			FinishedAt: s.Now().UTC(),
			State:      state,
			Pools:      summary.Pools,
			Message:    err.Error(),
		})
		return nil, err
	}

	// 4. Persist snapshots and reset the cursor
	for _, table := range tables {
		if err := s.RecordRepo.SaveRecords(ctx, table, fetched[table], domain.SaveModeClear); err != nil {
			return nil, fmt.Errorf("failed to store %s snapshot: %w", table, err)
		}
	}
	if err := s.CursorRepo.SaveCursor(ctx, domain.NewChangeCursor(started, req.PerPoolCursor)); err != nil {
		return nil, fmt.Errorf("failed to store change cursor: %w", err)
	}

	summary.RunID = result.RunID
	summary.State = result.State
	summary.Computed = len(result.Computed)
	summary.Rows = len(result.Rows)
	summary.Elapsed = s.Now().Sub(started)

	s.recordRun(ctx, &domain.RunLog{
		ID:         result.RunID,
		StartedAt:  started,
		FinishedAt: s.Now().UTC(),
		State:      result.State,
		Pools:      summary.Pools,
		Rows:       summary.Computed,
	})

	s.log.Info().
		Str("run_id", result.RunID.String()).
		Int("pools", summary.Pools).
		Int("computed", summary.Computed).
		Interface("changes", summary.Changes).
		Msg("calculation run stored")

	return summary, nil
}

// Cancel requests cancellation of the active run. uuid.Nil cancels whichever run is active.
func (s *RunService) Cancel(runID uuid.UUID) error {
	return s.Scheduler.Cancel(runID)
}

// Running reports whether a run is in progress
func (s *RunService) Running() bool {
	return s.running.Load()
}

// recordRun writes the run history; a failure to do so never fails the run
func (s *RunService) recordRun(ctx context.Context, entry *domain.RunLog) {
	if s.RunLogRepo == nil {
		return
	}
	if err := s.RunLogRepo.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warn().Err(err).Str("run_id", entry.ID.String()).Msg("failed to record run history")
	}
}

// monthRange spans from the month of the earliest record up to the month of now
func monthRange(tables map[string][]domain.RawRecord, now time.Time) []domain.MonthWindow {
	var first time.Time
	for _, records := range tables {
		for _, r := range records {
			if first.IsZero() || r.Date.Before(first) {
				first = r.Date
			}
		}
	}
	if first.IsZero() {
		return nil
	}
	return domain.GenerateMonths(first, now)
}

// poolsOf returns the pools with cached records or previously computed rows
func poolsOf(cache domain.Cache, prior []domain.CalculationRow) []string {
	pools := cache.Pools()
	seen := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		seen[p] = struct{}{}
	}
	for _, r := range prior {
		if _, ok := seen[r.Pool]; !ok {
			seen[r.Pool] = struct{}{}
			pools = append(pools, r.Pool)
		}
	}
	return pools
}

func earliestSince(assignments []scheduler.Assignment) time.Time {
	var earliest time.Time
	for _, a := range assignments {
		if len(a.NewMonths) == 0 {
			continue
		}
		if earliest.IsZero() || a.NewMonths[0].ID.Before(earliest) {
			earliest = a.NewMonths[0].ID
		}
	}
	return earliest
}
