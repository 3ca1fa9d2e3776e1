package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// fundRepository implements domain.FundRepository
type fundRepository struct {
	db *DB
}

// NewFundRepository creates a new fund metadata repository
func NewFundRepository(db *DB) domain.FundRepository {
	return &fundRepository{db: db}
}

// ListFunds retrieves all funds ordered by name
func (r *fundRepository) ListFunds(ctx context.Context) ([]domain.FundMetadata, error) {
	query := `
		SELECT fund, pool, asset_class, sub_asset_class, sleeve, consolidator
		FROM funds
		ORDER BY fund
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query funds: %w", err)
	}
	defer rows.Close()

	var funds []domain.FundMetadata
	for rows.Next() {
		var f domain.FundMetadata
		if err := rows.Scan(&f.Fund, &f.Pool, &f.AssetClass, &f.SubAssetClass, &f.Sleeve, &f.Consolidator); err != nil {
			return nil, fmt.Errorf("failed to scan fund: %w", err)
		}
		funds = append(funds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating funds: %w", err)
	}

	return funds, nil
}

// UpsertFunds creates or updates funds by name
func (r *fundRepository) UpsertFunds(ctx context.Context, funds []domain.FundMetadata) error {
	query := r.db.Rebind(`
		INSERT INTO funds (fund, pool, asset_class, sub_asset_class, sleeve, consolidator)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fund) DO UPDATE SET
			pool = excluded.pool,
			asset_class = excluded.asset_class,
			sub_asset_class = excluded.sub_asset_class,
			sleeve = excluded.sleeve,
			consolidator = excluded.consolidator
	`)

	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, f := range funds {
			if _, err := tx.ExecContext(ctx, query, f.Fund, f.Pool, f.AssetClass, f.SubAssetClass, f.Sleeve, f.Consolidator); err != nil {
				return fmt.Errorf("failed to upsert fund %s: %w", f.Fund, err)
			}
		}
		return nil
	})
}

// benchmarkRepository implements domain.BenchmarkRepository
type benchmarkRepository struct {
	db *DB
}

// NewBenchmarkRepository creates a new benchmark repository
func NewBenchmarkRepository(db *DB) domain.BenchmarkRepository {
	return &benchmarkRepository{db: db}
}

// ListBenchmarks retrieves every benchmark month ordered by name and month
func (r *benchmarkRepository) ListBenchmarks(ctx context.Context) ([]domain.Benchmark, error) {
	query := `
		SELECT name, month, return_pct, itd
		FROM benchmarks
		ORDER BY name, month
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks: %w", err)
	}
	defer rows.Close()

	var benchmarks []domain.Benchmark
	for rows.Next() {
		var b domain.Benchmark
		var monthStr, returnStr string
		var itdStr sql.NullString
		if err := rows.Scan(&b.Name, &monthStr, &returnStr, &itdStr); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark: %w", err)
		}

		if b.Month, err = parseDate(monthStr); err != nil {
			return nil, fmt.Errorf("failed to parse benchmark month: %w", err)
		}
		if b.Return, err = decimal.NewFromString(returnStr); err != nil {
			return nil, fmt.Errorf("failed to parse benchmark return: %w", err)
		}
		// Handle nullable itd
		if itdStr.Valid {
			itd, err := decimal.NewFromString(itdStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse benchmark itd: %w", err)
			}
			b.ITD = &itd
		}

		benchmarks = append(benchmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmarks: %w", err)
	}

	return benchmarks, nil
}

// ListLinks retrieves every benchmark link
func (r *benchmarkRepository) ListLinks(ctx context.Context) ([]domain.BenchmarkLink, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT benchmark, level, value FROM benchmark_links ORDER BY benchmark, level, value`)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmark links: %w", err)
	}
	defer rows.Close()

	var links []domain.BenchmarkLink
	for rows.Next() {
		var l domain.BenchmarkLink
		if err := rows.Scan(&l.Benchmark, &l.Level, &l.Value); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmark links: %w", err)
	}

	return links, nil
}

// UpsertBenchmarks creates or updates benchmark months by (name, month)
func (r *benchmarkRepository) UpsertBenchmarks(ctx context.Context, benchmarks []domain.Benchmark) error {
	query := r.db.Rebind(`
		INSERT INTO benchmarks (name, month, return_pct, itd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, month) DO UPDATE SET
			return_pct = excluded.return_pct,
			itd = excluded.itd
	`)

	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range benchmarks {
			var itd sql.NullString
			if b.ITD != nil {
				itd = sql.NullString{String: b.ITD.String(), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, query, b.Name, formatDate(domain.MonthStart(b.Month)), b.Return.String(), itd); err != nil {
				return fmt.Errorf("failed to upsert benchmark %s: %w", b.Name, err)
			}
		}
		return nil
	})
}

// ReplaceLinks replaces every benchmark link
func (r *benchmarkRepository) ReplaceLinks(ctx context.Context, links []domain.BenchmarkLink) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM benchmark_links`); err != nil {
			return fmt.Errorf("failed to clear benchmark links: %w", err)
		}
		insert := r.db.Rebind(`INSERT INTO benchmark_links (benchmark, level, value) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`)
		for _, l := range links {
			if _, err := tx.ExecContext(ctx, insert, l.Benchmark, l.Level, l.Value); err != nil {
				return fmt.Errorf("failed to insert benchmark link %s: %w", l.Benchmark, err)
			}
		}
		return nil
	})
}
