package calculation

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// MockIngestionClient is a mock implementation of IngestionClient for testing
type MockIngestionClient struct {
	mock.Mock
}

func (m *MockIngestionClient) FetchNew(ctx context.Context, table string) ([]domain.RawRecord, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawRecord), args.Error(1)
}

// MockRecordRepository is a mock implementation of RecordRepository for testing
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) LoadRecords(ctx context.Context, table string) ([]domain.RawRecord, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawRecord), args.Error(1)
}

func (m *MockRecordRepository) SaveRecords(ctx context.Context, table string, records []domain.RawRecord, mode domain.SaveMode) error {
	args := m.Called(ctx, table, records, mode)
	return args.Error(0)
}

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

// MockCursorRepository is a mock implementation of CursorRepository for testing
type MockCursorRepository struct {
	mock.Mock
}

func (m *MockCursorRepository) LoadCursor(ctx context.Context) (*domain.ChangeCursor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChangeCursor), args.Error(1)
}

func (m *MockCursorRepository) SaveCursor(ctx context.Context, cursor *domain.ChangeCursor) error {
	args := m.Called(ctx, cursor)
	return args.Error(0)
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

// MockFundProvider is a mock implementation of FundMetadataProvider for testing
type MockFundProvider struct {
	mock.Mock
}

func (m *MockFundProvider) Funds(ctx context.Context, forceRefresh bool) (domain.FundLookup, error) {
	args := m.Called(ctx, forceRefresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.FundLookup), args.Error(1)
}

// MockBenchmarkProvider is a mock implementation of BenchmarkProvider for testing
type MockBenchmarkProvider struct {
	mock.Mock
}

func (m *MockBenchmarkProvider) Benchmarks(ctx context.Context, forceRefresh bool) ([]domain.Benchmark, error) {
	args := m.Called(ctx, forceRefresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Benchmark), args.Error(1)
}

func (m *MockBenchmarkProvider) Links(ctx context.Context, forceRefresh bool) ([]domain.BenchmarkLink, error) {
	args := m.Called(ctx, forceRefresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BenchmarkLink), args.Error(1)
}
