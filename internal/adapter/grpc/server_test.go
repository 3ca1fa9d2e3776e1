package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/calculation"
	"github.com/simaogato/wealthflow-performance/internal/usecase/compounding"
	"github.com/simaogato/wealthflow-performance/internal/usecase/rollup"
	"github.com/simaogato/wealthflow-performance/internal/usecase/scheduler"
)

const testToken = "test-token"

// MockRunner is a mock implementation of Runner for testing
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, req calculation.RunRequest, progress scheduler.ProgressFunc) (*calculation.RunSummary, error) {
	args := m.Called(ctx, req, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calculation.RunSummary), args.Error(1)
}

func (m *MockRunner) Cancel(runID uuid.UUID) error {
	args := m.Called(runID)
	return args.Error(0)
}

// MockTableBuilder is a mock implementation of TableBuilder for testing
type MockTableBuilder struct {
	mock.Mock
}

func (m *MockTableBuilder) BuildTable(ctx context.Context, req calculation.TableRequest) (*calculation.Table, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calculation.Table), args.Error(1)
}

// MockRunLogRepository is a mock implementation of RunLogRepository for testing
type MockRunLogRepository struct {
	mock.Mock
}

func (m *MockRunLogRepository) Record(ctx context.Context, entry *domain.RunLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRunLogRepository) Latest(ctx context.Context) (*domain.RunLog, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunLog), args.Error(1)
}

type fixture struct {
	runner *MockRunner
	tables *MockTableBuilder
	runLog *MockRunLogRepository
	client *Client
}

// newFixture serves a Server over an in-memory listener
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runner: new(MockRunner),
		tables: new(MockTableBuilder),
		runLog: new(MockRunLogRepository),
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(AuthInterceptor(testToken), LoggingInterceptor(zerolog.Nop())),
		grpc.ChainStreamInterceptor(AuthStreamInterceptor(testToken), LoggingStreamInterceptor(zerolog.Nop())),
	)
	RegisterPerformanceServiceServer(srv, NewServer(f.runner, f.tables, f.runLog, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	f.client = NewClient(conn)
	return f
}

func authed() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	return metadata.AppendToOutgoingContext(ctx, "authorization", testToken), cancel
}

func TestServer_RunCalculationStreamsProgressAndSummary(t *testing.T) {
	f := newFixture(t)
	runID := uuid.New()

	f.runner.On("Run", mock.Anything, calculation.RunRequest{Force: true, Tables: []string{"positions"}}, mock.Anything).
		Run(func(args mock.Arguments) {
			progress := args.Get(2).(scheduler.ProgressFunc)
			progress(50)
			progress(100)
		}).
		Return(&calculation.RunSummary{
			RunID:    runID,
			State:    domain.RunStateCompleted,
			Pools:    2,
			Computed: 6,
			Rows:     12,
			Changes:  map[string]int{"positions": 3},
			Cursor:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		}, nil)

	req, err := structpb.NewStruct(map[string]any{"force": true, "tables": []any{"positions"}})
	require.NoError(t, err)

	ctx, cancel := authed()
	defer cancel()

	var ticks []float64
	summary, err := f.client.RunCalculation(ctx, req, func(p float64) { ticks = append(ticks, p) })
	require.NoError(t, err)

	assert.Equal(t, []float64{50, 100}, ticks)
	assert.Equal(t, runID.String(), summary.GetFields()["run_id"].GetStringValue())
	assert.Equal(t, "COMPLETED", summary.GetFields()["state"].GetStringValue())
	assert.Equal(t, 6.0, summary.GetFields()["computed"].GetNumberValue())
	assert.Equal(t, "2024-02", summary.GetFields()["cursor"].GetStringValue())
	assert.Equal(t, 3.0, summary.GetFields()["changes"].GetStructValue().GetFields()["positions"].GetNumberValue())
	f.runner.AssertExpectations(t)
}

func TestServer_RunCalculationMapsPoolFailure(t *testing.T) {
	f := newFixture(t)
	poolErr := &domain.PoolComputeError{Pool: "Pool A", Err: errors.New("boom")}
	f.runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, poolErr)

	ctx, cancel := authed()
	defer cancel()

	_, err := f.client.RunCalculation(ctx, nil, nil)
	require.Error(t, err)
	assert.Equal(t, codes.Aborted, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "Pool A")
}

func TestServer_RunCalculationRequiresToken(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := f.client.RunCalculation(ctx, nil, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	f.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestServer_CancelRun(t *testing.T) {
	f := newFixture(t)
	runID := uuid.New()
	f.runner.On("Cancel", runID).Return(nil)
	f.runner.On("Cancel", uuid.Nil).Return(domain.ErrRunNotFound)

	ctx, cancel := authed()
	defer cancel()

	t.Run("Cancels by ID", func(t *testing.T) {
		resp, err := f.client.CancelRun(ctx, runID.String())
		require.NoError(t, err)
		assert.True(t, resp.GetFields()["cancelled"].GetBoolValue())
	})

	t.Run("Nothing running", func(t *testing.T) {
		_, err := f.client.CancelRun(ctx, "")
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("Invalid ID", func(t *testing.T) {
		_, err := f.client.CancelRun(ctx, "not-a-uuid")
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestServer_BuildTable(t *testing.T) {
	f := newFixture(t)
	mtd := 1.5
	periodEnd := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	expected := calculation.TableRequest{
		Levels:      []string{"assetClass"},
		Pools:       []string{"Pool A"},
		From:        time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   periodEnd,
		Consolidate: true,
		Hidden:      map[string][]string{"assetClass": {"Cash"}},
	}
	f.tables.On("BuildTable", mock.Anything, expected).Return(&calculation.Table{
		PeriodEnd: periodEnd,
		Rows: []calculation.TableRow{
			{
				Key:       "Total",
				Name:      "Total",
				DataType:  domain.DataTypeTotal,
				HasValues: true,
				Entry:     rollup.Entry{NAV: decimal.NewFromInt(1000), Return: decimal.RequireFromString("1.5")},
				Metrics:   compounding.Metrics{MTD: &mtd, Annualized: map[int]float64{1: 12.25}},
			},
			{Key: "Equity", Name: "Equity", Depth: 1},
		},
	}, nil)

	req, err := structpb.NewStruct(map[string]any{
		"levels":      []any{"assetClass"},
		"pools":       []any{"Pool A"},
		"from":        "2023-01",
		"period_end":  "2024-03-31",
		"consolidate": true,
		"hidden":      map[string]any{"assetClass": []any{"Cash"}},
	})
	require.NoError(t, err)

	ctx, cancel := authed()
	defer cancel()

	resp, err := f.client.BuildTable(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "2024-03", resp.GetFields()["period_end"].GetStringValue())
	rows := resp.GetFields()["rows"].GetListValue().GetValues()
	require.Len(t, rows, 2)

	total := rows[0].GetStructValue().GetFields()
	assert.Equal(t, "1000", total["nav"].GetStringValue())
	assert.Equal(t, "1.5000", total["return"].GetStringValue())
	metrics := total["metrics"].GetStructValue().GetFields()
	assert.Equal(t, 1.5, metrics["mtd"].GetNumberValue())
	assert.Equal(t, 12.25, metrics["1y"].GetNumberValue())
	_, isNull := metrics["ytd"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)

	empty := rows[1].GetStructValue().GetFields()
	assert.False(t, empty["has_values"].GetBoolValue())
	_, hasNAV := empty["nav"]
	assert.False(t, hasNAV)
	f.tables.AssertExpectations(t)
}

func TestServer_BuildTableRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := authed()
	defer cancel()

	t.Run("Bad month", func(t *testing.T) {
		req, err := structpb.NewStruct(map[string]any{"period_end": "March"})
		require.NoError(t, err)
		_, err = f.client.BuildTable(ctx, req)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("Unknown level", func(t *testing.T) {
		f.tables.On("BuildTable", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("failed to build hierarchy: %w", domain.ErrUnknownLevel)).Once()
		_, err := f.client.BuildTable(ctx, &structpb.Struct{})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestServer_LatestRun(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := authed()
	defer cancel()

	f.runLog.On("Latest", mock.Anything).Return(nil, fmt.Errorf("no calculation run recorded: %w", domain.ErrRunNotFound)).Once()
	_, err := f.client.LatestRun(ctx)
	assert.Equal(t, codes.NotFound, status.Code(err))

	entry := &domain.RunLog{ID: uuid.New(), State: domain.RunStateFailed, Pools: 3, Message: "pool B failed"}
	f.runLog.On("Latest", mock.Anything).Return(entry, nil).Once()
	resp, err := f.client.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", resp.GetFields()["state"].GetStringValue())
	assert.Equal(t, "pool B failed", resp.GetFields()["message"].GetStringValue())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"Cancelled", fmt.Errorf("run: %w", domain.ErrRunCancelled), codes.Canceled},
		{"Pool failure", &domain.PoolComputeError{Pool: "A", Err: errors.New("x")}, codes.Aborted},
		{"In progress", domain.ErrRunInProgress, codes.FailedPrecondition},
		{"Not found", domain.ErrRunNotFound, codes.NotFound},
		{"Unknown level", domain.ErrUnknownLevel, codes.InvalidArgument},
		{"Deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"Other", errors.New("disk full"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(mapError(tt.err)))
		})
	}
	assert.NoError(t, mapError(nil))
}
