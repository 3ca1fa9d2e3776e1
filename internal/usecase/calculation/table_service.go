package calculation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/compounding"
	"github.com/simaogato/wealthflow-performance/internal/usecase/rollup"
)

// TableDefaults are applied to requests that leave the field empty
type TableDefaults struct {
	Levels             []string
	AssetClassOrder    []string
	SubAssetClassOrder []string
	Horizons           []int
}

// TableRequest selects and shapes one performance table
type TableRequest struct {
	Levels        []string
	Pools         []string
	From          time.Time
	PeriodEnd     time.Time // Zero means the latest computed month
	Consolidate   bool
	SelectedFunds []string
	Hidden        map[string][]string // Level -> hidden values
	SortByNAV     bool
	ForceRefresh  bool // Bypass metadata and benchmark caches
}

// TableRow is one display row with its period-end values and compounded metrics
type TableRow struct {
	Key       string
	Name      string
	Level     string
	DataType  string
	Depth     int
	Benchmark bool
	Entry     rollup.Entry // Values of the period-end month
	Metrics   compounding.Metrics
	HasValues bool // False when the node has no data for the period-end month
}

// Table is the flattened, annotated hierarchy
type Table struct {
	PeriodEnd time.Time
	Rows      []TableRow
}

// TableService builds hierarchical performance tables from persisted rows
type TableService struct {
	RowRepo           domain.CalculationRepository
	FundProvider      domain.FundMetadataProvider
	BenchmarkProvider domain.BenchmarkProvider
	Defaults          TableDefaults

	log zerolog.Logger
}

// NewTableService creates a new TableService instance
func NewTableService(
	rowRepo domain.CalculationRepository,
	fundProvider domain.FundMetadataProvider,
	benchmarkProvider domain.BenchmarkProvider,
	defaults TableDefaults,
	log zerolog.Logger,
) *TableService {
	return &TableService{
		RowRepo:           rowRepo,
		FundProvider:      fundProvider,
		BenchmarkProvider: benchmarkProvider,
		Defaults:          defaults,
		log:               log.With().Str("component", "table_service").Logger(),
	}
}

// BuildTable loads rows, rolls them up and annotates every node with compounded returns.
// Logic:
//   - Rows are loaded up to the period end only; earlier history feeds ITD and N-year figures
//   - Consolidators come from fund metadata, benchmarks and links from the benchmark provider
//   - Display values are those of the period-end month
func (s *TableService) BuildTable(ctx context.Context, req TableRequest) (*Table, error) {
	rows, err := s.RowRepo.LoadRows(ctx, domain.CalculationFilter{Pools: req.Pools, To: req.PeriodEnd})
	if err != nil {
		return nil, fmt.Errorf("failed to load calculations: %w", err)
	}

	periodEnd := req.PeriodEnd
	if periodEnd.IsZero() {
		for _, r := range rows {
			if r.Month.After(periodEnd) {
				periodEnd = r.Month
			}
		}
	}
	if !periodEnd.IsZero() {
		periodEnd = domain.MonthStart(periodEnd)
	}

	funds, err := s.FundProvider.Funds(ctx, req.ForceRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to load fund metadata: %w", err)
	}
	benchmarks, err := s.BenchmarkProvider.Benchmarks(ctx, req.ForceRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmarks: %w", err)
	}
	links, err := s.BenchmarkProvider.Links(ctx, req.ForceRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark links: %w", err)
	}

	opts := rollup.Options{
		Levels:             orDefault(req.Levels, s.Defaults.Levels),
		AssetClassOrder:    s.Defaults.AssetClassOrder,
		SubAssetClassOrder: s.Defaults.SubAssetClassOrder,
		Hidden:             toSets(req.Hidden),
		Consolidate:        req.Consolidate,
		Consolidators:      funds.Consolidators(),
		SortByNAV:          req.SortByNAV,
		From:               req.From,
		To:                 periodEnd,
		Benchmarks:         benchmarks,
		Links:              links,
	}
	if len(req.SelectedFunds) > 0 {
		opts.SelectedFunds = make(map[string]bool, len(req.SelectedFunds))
		for _, f := range req.SelectedFunds {
			opts.SelectedFunds[f] = true
		}
	}

	tree, err := rollup.Build(rows, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build hierarchy: %w", err)
	}
	metrics := compounding.Annotate(tree, periodEnd, compounding.Options{Horizons: s.Defaults.Horizons}, s.log)

	table := &Table{PeriodEnd: periodEnd}
	for _, r := range tree.Rows() {
		entry, ok := r.Months[periodEnd]
		table.Rows = append(table.Rows, TableRow{
			Key:       r.Key,
			Name:      r.Name,
			Level:     r.Level,
			DataType:  r.DataType,
			Depth:     r.Depth,
			Benchmark: r.Benchmark,
			Entry:     entry,
			Metrics:   metrics[r.NodeID],
			HasValues: ok,
		})
	}

	s.log.Debug().
		Int("source_rows", len(rows)).
		Int("table_rows", len(table.Rows)).
		Time("period_end", periodEnd).
		Msg("table built")

	return table, nil
}

func orDefault(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

func toSets(in map[string][]string) map[string]map[string]bool {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]map[string]bool, len(in))
	for level, values := range in {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		out[level] = set
	}
	return out
}

// Total returns the period-end NAV of the root row
func (t *Table) Total() decimal.Decimal {
	if len(t.Rows) == 0 {
		return decimal.Zero
	}
	return t.Rows[0].Entry.NAV
}
