package seeder

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/rollup"
)

// ReferenceSource supplies fund metadata and benchmark data to seed from
type ReferenceSource interface {
	Funds(ctx context.Context) ([]domain.FundMetadata, error)
	Benchmarks(ctx context.Context) ([]domain.Benchmark, error)
	Links(ctx context.Context) ([]domain.BenchmarkLink, error)
}

// Invalidator drops cached copies of reference data
type Invalidator interface {
	Invalidate(keys ...string)
}

// SeedResult counts what a Seed call stored and skipped
type SeedResult struct {
	Funds      int
	Benchmarks int
	Links      int
	Skipped    int
}

// ReferenceSeeder loads reference data into the store so runs and tables
// can resolve fund classification and benchmark series
type ReferenceSeeder struct {
	Source        ReferenceSource
	FundRepo      domain.FundRepository
	BenchmarkRepo domain.BenchmarkRepository
	Cache         Invalidator // Optional

	log zerolog.Logger
}

// NewReferenceSeeder creates a new ReferenceSeeder instance
func NewReferenceSeeder(
	source ReferenceSource,
	fundRepo domain.FundRepository,
	benchmarkRepo domain.BenchmarkRepository,
	cache Invalidator,
	log zerolog.Logger,
) *ReferenceSeeder {
	return &ReferenceSeeder{
		Source:        source,
		FundRepo:      fundRepo,
		BenchmarkRepo: benchmarkRepo,
		Cache:         cache,
		log:           log.With().Str("component", "seeder").Logger(),
	}
}

// Seed upserts funds and benchmark months and replaces benchmark links.
// Logic:
//   - Entries without a name (or a month, for benchmarks) are skipped with a warning
//   - An empty link set leaves stored links untouched
//   - Cached reference data is invalidated once everything is stored
func (s *ReferenceSeeder) Seed(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}

	// 1. Funds
	funds, err := s.Source.Funds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load funds: %w", err)
	}
	validFunds := make([]domain.FundMetadata, 0, len(funds))
	for _, f := range funds {
		if strings.TrimSpace(f.Fund) == "" {
			s.log.Warn().Str("pool", f.Pool).Msg("skipping fund without a name")
			result.Skipped++
			continue
		}
		validFunds = append(validFunds, f)
	}
	if len(validFunds) > 0 {
		if err := s.FundRepo.UpsertFunds(ctx, validFunds); err != nil {
			return nil, fmt.Errorf("failed to upsert funds: %w", err)
		}
	}
	result.Funds = len(validFunds)

	// 2. Benchmark series
	benchmarks, err := s.Source.Benchmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmarks: %w", err)
	}
	validBenchmarks := make([]domain.Benchmark, 0, len(benchmarks))
	for _, b := range benchmarks {
		if strings.TrimSpace(b.Name) == "" || b.Month.IsZero() {
			s.log.Warn().Str("benchmark", b.Name).Msg("skipping benchmark month without a name or month")
			result.Skipped++
			continue
		}
		b.Month = domain.MonthStart(b.Month)
		validBenchmarks = append(validBenchmarks, b)
	}
	if len(validBenchmarks) > 0 {
		if err := s.BenchmarkRepo.UpsertBenchmarks(ctx, validBenchmarks); err != nil {
			return nil, fmt.Errorf("failed to upsert benchmarks: %w", err)
		}
	}
	result.Benchmarks = len(validBenchmarks)

	// 3. Links
	links, err := s.Source.Links(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark links: %w", err)
	}
	validLinks := make([]domain.BenchmarkLink, 0, len(links))
	for _, l := range links {
		if strings.TrimSpace(l.Benchmark) == "" || !linkableLevel(l.Level) {
			s.log.Warn().Str("benchmark", l.Benchmark).Str("level", l.Level).Msg("skipping unusable benchmark link")
			result.Skipped++
			continue
		}
		validLinks = append(validLinks, l)
	}
	if len(validLinks) > 0 {
		if err := s.BenchmarkRepo.ReplaceLinks(ctx, validLinks); err != nil {
			return nil, fmt.Errorf("failed to replace benchmark links: %w", err)
		}
	}
	result.Links = len(validLinks)

	if s.Cache != nil {
		s.Cache.Invalidate()
	}

	s.log.Info().
		Int("funds", result.Funds).
		Int("benchmarks", result.Benchmarks).
		Int("links", result.Links).
		Int("skipped", result.Skipped).
		Msg("reference data seeded")
	return result, nil
}

// linkableLevel reports whether benchmarks can attach at level.
// Empty and "total" attach under the root.
func linkableLevel(level string) bool {
	switch level {
	case "", rollup.LevelTotal,
		domain.LevelPool, domain.LevelInvestor, domain.LevelFamilyBranch,
		domain.LevelAssetClass, domain.LevelSubAssetClass, domain.LevelSleeve:
		return true
	}
	return false
}
