package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// MockCalculationRepository is a mock implementation of CalculationRepository for testing
type MockCalculationRepository struct {
	mock.Mock
}

func (m *MockCalculationRepository) LoadRows(ctx context.Context, filter domain.CalculationFilter) ([]domain.CalculationRow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationRow), args.Error(1)
}

func (m *MockCalculationRepository) SaveRows(ctx context.Context, rows []domain.CalculationRow, mode domain.SaveMode, scope domain.PoolMonths) error {
	args := m.Called(ctx, rows, mode, scope)
	return args.Error(0)
}

// funcCalculator adapts a function to PoolCalculator
type funcCalculator func(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error)

func (f funcCalculator) CalculateMonth(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error) {
	return f(ctx, in)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func navRow(pool string, month time.Time, nav int64) domain.CalculationRow {
	return domain.CalculationRow{
		Pool:     pool,
		Fund:     "Fund " + pool,
		Investor: "Investor",
		Month:    month,
		DataType: domain.DataTypeFund,
		NAV:      decimal.NewFromInt(nav),
	}
}

// echoCalculator emits one row per month whose NAV is the previous NAV plus one
func echoCalculator() funcCalculator {
	return func(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error) {
		nav := int64(100)
		if len(in.Previous) > 0 {
			nav = in.Previous[0].NAV.IntPart() + 1
		}
		return []domain.CalculationRow{navRow(in.Pool, in.Month.ID, nav)}, nil
	}
}

func testOptions() Options {
	return Options{Parallelism: 2, PollInterval: time.Millisecond, HardStopAfter: time.Second}
}

type progressRecorder struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressRecorder) record(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressRecorder) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

func TestPlan_ChangeCursorSelectsMonthsFromCursor(t *testing.T) {
	now := date(2024, 6, 15)
	months := domain.GenerateMonths(date(2024, 1, 1), now)
	cursor := domain.NewChangeCursor(now, true)
	cursor.Lower("Pool A", date(2024, 3, 12))

	plan := Plan([]string{"Pool B", "Pool A"}, cursor, months, true, now)

	require.Len(t, plan, 2)
	assert.Equal(t, "Pool A", plan[0].Pool)
	require.Len(t, plan[0].NewMonths, 4)
	assert.Equal(t, date(2024, 3, 1), plan[0].NewMonths[0].ID)
	assert.Equal(t, date(2024, 6, 1), plan[0].NewMonths[3].ID)

	// Nothing pending: only the current month is recomputed
	require.Len(t, plan[1].NewMonths, 1)
	assert.Equal(t, date(2024, 6, 1), plan[1].NewMonths[0].ID)
}

func TestPlan_NoPriorRecomputesEverything(t *testing.T) {
	now := date(2024, 3, 1)
	months := domain.GenerateMonths(date(2023, 1, 1), now)

	plan := Plan([]string{"Pool A"}, domain.NewChangeCursor(now, true), months, false, now)

	require.Len(t, plan, 1)
	assert.Len(t, plan[0].NewMonths, len(months))
}

func TestRun_Success(t *testing.T) {
	ctx := context.Background()
	months := domain.GenerateMonths(date(2024, 1, 1), date(2024, 3, 1))
	store := new(MockCalculationRepository)
	store.On("SaveRows", ctx, mock.MatchedBy(func(rows []domain.CalculationRow) bool {
		return len(rows) == 5
	}), domain.SaveModeReplace, domain.PoolMonths{
		"Pool A": {months[1].ID, months[2].ID},
		"Pool B": {months[0].ID, months[1].ID, months[2].ID},
	}).Return(nil)

	s := New(echoCalculator(), store, testOptions(), zerolog.Nop(), nil)
	progress := &progressRecorder{}

	prior := []domain.CalculationRow{
		navRow("Pool A", date(2024, 1, 1), 500),
		navRow("Pool A", date(2024, 2, 1), 999), // recomputed, must not survive
		navRow("Pool C", date(2024, 1, 1), 7),
	}

	result, err := s.Run(ctx, RunInput{
		Assignments: []Assignment{
			{Pool: "Pool A", NewMonths: months[1:]},
			{Pool: "Pool B", NewMonths: months},
			{Pool: "Pool C"},
		},
		Cache:    domain.Cache{},
		Prior:    prior,
		Progress: progress.record,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RunStateCompleted, result.State)
	assert.Equal(t, domain.RunStateCompleted, s.State())
	assert.Len(t, result.Computed, 5)
	// 2 recomputed + 1 reused for A, 3 for B, 1 reused for C
	require.Len(t, result.Rows, 7)

	byKey := make(map[domain.RowKey]domain.CalculationRow)
	for _, r := range result.Rows {
		_, dup := byKey[r.Key()]
		assert.False(t, dup, "(path, month) must be unique")
		byKey[r.Key()] = r
	}
	a := navRow("Pool A", date(2024, 2, 1), 0)
	assert.True(t, byKey[a.Key()].NAV.Equal(decimal.NewFromInt(501)), "February continues from reused January row")

	values := progress.snapshot()
	require.NotEmpty(t, values)
	assert.Equal(t, 100.0, values[len(values)-1])
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress never decreases")
	}
	store.AssertExpectations(t)
}

func TestRun_NothingPending(t *testing.T) {
	store := new(MockCalculationRepository)
	s := New(echoCalculator(), store, testOptions(), zerolog.Nop(), nil)
	prior := []domain.CalculationRow{navRow("Pool A", date(2024, 1, 1), 10)}

	result, err := s.Run(context.Background(), RunInput{
		Assignments: []Assignment{{Pool: "Pool A"}},
		Prior:       prior,
	})

	require.NoError(t, err)
	assert.Equal(t, prior, result.Rows, "unchanged pools reuse prior rows verbatim")
	store.AssertNotCalled(t, "SaveRows", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_RecomputedMonthWithoutRowsIsEmptied(t *testing.T) {
	ctx := context.Background()
	months := domain.GenerateMonths(date(2024, 1, 1), date(2024, 1, 31))
	calc := funcCalculator(func(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error) {
		return nil, nil
	})
	store := new(MockCalculationRepository)
	store.On("SaveRows", ctx, mock.MatchedBy(func(rows []domain.CalculationRow) bool {
		return len(rows) == 0
	}), domain.SaveModeReplace, domain.PoolMonths{"Pool A": {months[0].ID}}).Return(nil).Once()

	s := New(calc, store, testOptions(), zerolog.Nop(), nil)
	result, err := s.Run(ctx, RunInput{
		Assignments: []Assignment{{Pool: "Pool A", NewMonths: months}},
		Prior:       []domain.CalculationRow{navRow("Pool A", date(2024, 1, 1), 10)},
	})

	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	store.AssertExpectations(t)
}

func TestRun_IdempotentRerun(t *testing.T) {
	months := domain.GenerateMonths(date(2024, 1, 1), date(2024, 4, 1))
	s := New(echoCalculator(), nil, testOptions(), zerolog.Nop(), nil)

	first, err := s.Run(context.Background(), RunInput{
		Assignments: []Assignment{{Pool: "Pool A", NewMonths: months}},
	})
	require.NoError(t, err)

	// Empty change set: only the current month is recomputed from identical inputs
	second, err := s.Run(context.Background(), RunInput{
		Assignments: []Assignment{{Pool: "Pool A", NewMonths: months[3:]}},
		Prior:       first.Rows,
	})
	require.NoError(t, err)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestRun_FailureHaltsWholeRun(t *testing.T) {
	ctx := context.Background()
	months := domain.GenerateMonths(date(2024, 1, 1), date(2024, 2, 1))
	store := new(MockCalculationRepository)

	poolAHalfway := make(chan struct{})
	var poolCStarted atomic.Bool
	boom := errors.New("missing fund metadata")

	calc := funcCalculator(func(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error) {
		switch in.Pool {
		case "Pool 1":
			if in.Month.ID.Equal(months[1].ID) {
				// Pool 1 has reported 50%; block until the run halts
				close(poolAHalfway)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return []domain.CalculationRow{navRow(in.Pool, in.Month.ID, 1)}, nil
		case "Pool 2":
			<-poolAHalfway
			return nil, boom
		default:
			poolCStarted.Store(true)
			return []domain.CalculationRow{navRow(in.Pool, in.Month.ID, 1)}, nil
		}
	})

	s := New(calc, store, testOptions(), zerolog.Nop(), nil)
	progress := &progressRecorder{}

	result, err := s.Run(ctx, RunInput{
		Assignments: []Assignment{
			{Pool: "Pool 1", NewMonths: months},
			{Pool: "Pool 2", NewMonths: months},
			{Pool: "Pool 3", NewMonths: months},
		},
		Progress: progress.record,
	})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, domain.ErrPoolComputeFailure))
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, domain.ErrRunCancelled))

	var poolErr *domain.PoolComputeError
	require.True(t, errors.As(err, &poolErr))
	assert.Equal(t, "Pool 2", poolErr.Pool)

	values := progress.snapshot()
	require.NotEmpty(t, values)
	assert.Equal(t, HaltSentinel, values[len(values)-1])
	assert.False(t, poolCStarted.Load(), "pool 3 never starts after the failure")
	assert.Equal(t, domain.RunStateFailed, s.State())
	store.AssertNotCalled(t, "SaveRows", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CancelRequested(t *testing.T) {
	months := domain.GenerateMonths(date(2023, 1, 1), date(2024, 12, 1))
	started := make(chan struct{})
	var once sync.Once

	calc := funcCalculator(func(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error) {
		once.Do(func() { close(started) })
		time.Sleep(5 * time.Millisecond)
		return []domain.CalculationRow{navRow(in.Pool, in.Month.ID, 1)}, nil
	})
	store := new(MockCalculationRepository)
	s := New(calc, store, testOptions(), zerolog.Nop(), nil)

	go func() {
		<-started
		assert.NoError(t, s.Cancel(uuid.Nil))
	}()

	_, err := s.Run(context.Background(), RunInput{
		Assignments: []Assignment{{Pool: "Pool A", NewMonths: months}},
	})

	assert.True(t, errors.Is(err, domain.ErrRunCancelled))
	assert.False(t, errors.Is(err, domain.ErrPoolComputeFailure))
	assert.Equal(t, domain.RunStateCancelled, s.State())
	store.AssertNotCalled(t, "SaveRows", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_AbandonsWorkerIgnoringHalt(t *testing.T) {
	months := domain.GenerateMonths(date(2024, 1, 1), date(2024, 2, 1))
	release := make(chan struct{})
	defer close(release)

	calc := funcCalculator(func(ctx context.Context, in MonthInput) ([]domain.CalculationRow, error) {
		if in.Pool == "Stuck" {
			<-release // never checks ctx
			return nil, nil
		}
		return nil, errors.New("bad input")
	})
	opts := testOptions()
	opts.HardStopAfter = 20 * time.Millisecond
	s := New(calc, nil, opts, zerolog.Nop(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), RunInput{
			Assignments: []Assignment{
				{Pool: "Failing", NewMonths: months},
				{Pool: "Stuck", NewMonths: months},
			},
		})
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, domain.ErrPoolComputeFailure))
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after hard stop")
	}
}

func TestCancel_NoActiveRun(t *testing.T) {
	s := New(echoCalculator(), nil, testOptions(), zerolog.Nop(), nil)
	assert.ErrorIs(t, s.Cancel(uuid.New()), domain.ErrRunNotFound)
}
