package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SaveMode selects how rows are written to a table
type SaveMode string

const (
	SaveModeReplace SaveMode = "REPLACE" // Delete matching keys, then insert
	SaveModeAppend  SaveMode = "APPEND"  // Insert only
	SaveModeClear   SaveMode = "CLEAR"   // Delete everything in the table, then insert
)

// PoolMonths lists month IDs per pool
type PoolMonths map[string][]time.Time

// RecordRepository defines persistence of raw record snapshots
type RecordRepository interface {
	// LoadRecords retrieves the last persisted snapshot of a table
	LoadRecords(ctx context.Context, table string) ([]RawRecord, error)

	// SaveRecords writes a table snapshot
	SaveRecords(ctx context.Context, table string, records []RawRecord, mode SaveMode) error
}

// CalculationRepository defines persistence of flat calculation rows
type CalculationRepository interface {
	// LoadRows retrieves rows matching the filter, ordered by pool, path and month
	LoadRows(ctx context.Context, filter CalculationFilter) ([]CalculationRow, error)

	// SaveRows writes rows.
	// With SaveModeReplace, existing rows of every (pool, month) pair in scope
	// or in rows are removed first, so a recomputed month that produced no
	// rows is emptied.
	SaveRows(ctx context.Context, rows []CalculationRow, mode SaveMode, scope PoolMonths) error
}

// CursorRepository defines persistence of the change cursor between runs
type CursorRepository interface {
	// LoadCursor retrieves the stored cursor, or nil if none was saved
	LoadCursor(ctx context.Context) (*ChangeCursor, error)

	// SaveCursor stores the cursor
	SaveCursor(ctx context.Context, cursor *ChangeCursor) error
}

// RunLog is one entry of the calculation run history
type RunLog struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	State      RunState
	Pools      int
	Rows       int
	Message    string
}

// RunLogRepository defines persistence of run history
type RunLogRepository interface {
	// Record stores a finished run
	Record(ctx context.Context, entry *RunLog) error

	// Latest retrieves the most recent run, or an error if none exists
	Latest(ctx context.Context) (*RunLog, error)
}

// IngestionClient supplies freshly fetched records for a table.
// Transport is the client's concern.
type IngestionClient interface {
	FetchNew(ctx context.Context, table string) ([]RawRecord, error)
}

// FundMetadataProvider supplies fund classification and consolidator mappings.
// forceRefresh bypasses any cached copy.
type FundMetadataProvider interface {
	Funds(ctx context.Context, forceRefresh bool) (FundLookup, error)
}

// BenchmarkProvider supplies benchmark series and their hierarchy links
type BenchmarkProvider interface {
	Benchmarks(ctx context.Context, forceRefresh bool) ([]Benchmark, error)
	Links(ctx context.Context, forceRefresh bool) ([]BenchmarkLink, error)
}

// FundRepository defines persistence of fund metadata
type FundRepository interface {
	ListFunds(ctx context.Context) ([]FundMetadata, error)

	// UpsertFunds creates or updates funds by name
	UpsertFunds(ctx context.Context, funds []FundMetadata) error
}

// BenchmarkRepository defines persistence of benchmarks and links
type BenchmarkRepository interface {
	ListBenchmarks(ctx context.Context) ([]Benchmark, error)
	ListLinks(ctx context.Context) ([]BenchmarkLink, error)

	// UpsertBenchmarks creates or updates benchmark months by (name, month)
	UpsertBenchmarks(ctx context.Context, benchmarks []Benchmark) error

	// ReplaceLinks replaces every benchmark link
	ReplaceLinks(ctx context.Context, links []BenchmarkLink) error
}
