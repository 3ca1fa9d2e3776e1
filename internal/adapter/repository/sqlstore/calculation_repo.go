package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// calculationRepository implements domain.CalculationRepository
type calculationRepository struct {
	db *DB
}

// NewCalculationRepository creates a new calculation row repository
func NewCalculationRepository(db *DB) domain.CalculationRepository {
	return &calculationRepository{db: db}
}

const calculationColumns = `pool, investor, fund, month, family_branch, asset_class, sub_asset_class, sleeve,
	data_type, nav, gain, denominator, return_pct, ownership, commitment, unfunded,
	irr_eligible, ownership_adjusted`

// LoadRows retrieves rows matching the filter, ordered by pool, path and month
func (r *calculationRepository) LoadRows(ctx context.Context, filter domain.CalculationFilter) ([]domain.CalculationRow, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Pools) > 0 {
		marks := make([]string, 0, len(filter.Pools))
		for _, p := range filter.Pools {
			args = append(args, p)
			marks = append(marks, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, "pool IN ("+strings.Join(marks, ", ")+")")
	}
	if !filter.From.IsZero() {
		args = append(args, formatDate(domain.MonthStart(filter.From)))
		where = append(where, fmt.Sprintf("month >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, formatDate(domain.MonthStart(filter.To)))
		where = append(where, fmt.Sprintf("month <= $%d", len(args)))
	}

	query := "SELECT " + calculationColumns + " FROM calculation_rows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY pool, investor, fund, month"

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calculation rows: %w", err)
	}
	defer rows.Close()

	var out []domain.CalculationRow
	for rows.Next() {
		row, err := scanCalculationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calculation rows: %w", err)
	}

	return out, nil
}

func scanCalculationRow(rows *sql.Rows) (domain.CalculationRow, error) {
	var row domain.CalculationRow
	var monthStr string
	var nav, gain, denominator, ret, ownership, commitment, unfunded string
	var irrEligible, ownershipAdjusted int
	if err := rows.Scan(
		&row.Pool,
		&row.Investor,
		&row.Fund,
		&monthStr,
		&row.FamilyBranch,
		&row.AssetClass,
		&row.SubAssetClass,
		&row.Sleeve,
		&row.DataType,
		&nav,
		&gain,
		&denominator,
		&ret,
		&ownership,
		&commitment,
		&unfunded,
		&irrEligible,
		&ownershipAdjusted,
	); err != nil {
		return row, fmt.Errorf("failed to scan calculation row: %w", err)
	}

	month, err := parseDate(monthStr)
	if err != nil {
		return row, fmt.Errorf("failed to parse month: %w", err)
	}
	row.Month = month
	row.IRREligible = irrEligible != 0
	row.OwnershipAdjusted = ownershipAdjusted != 0

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"nav", nav, &row.NAV},
		{"gain", gain, &row.Gain},
		{"denominator", denominator, &row.Denominator},
		{"return_pct", ret, &row.Return},
		{"ownership", ownership, &row.Ownership},
		{"commitment", commitment, &row.Commitment},
		{"unfunded", unfunded, &row.Unfunded},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return row, fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return row, nil
}

// SaveRows writes rows in one transaction.
// Logic:
//   - SaveModeClear: delete every row first
//   - SaveModeReplace: delete the rows of every (pool, month) pair in scope or being written
//   - SaveModeAppend: insert only
func (r *calculationRepository) SaveRows(ctx context.Context, rows []domain.CalculationRow, mode domain.SaveMode, scope domain.PoolMonths) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		switch mode {
		case domain.SaveModeClear:
			if _, err := tx.ExecContext(ctx, `DELETE FROM calculation_rows`); err != nil {
				return fmt.Errorf("failed to clear calculation rows: %w", err)
			}
		case domain.SaveModeReplace:
			for _, k := range replacedPairs(rows, scope) {
				if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM calculation_rows WHERE pool = $1 AND month = $2`),
					k.pool, k.month); err != nil {
					return fmt.Errorf("failed to replace rows of pool %s: %w", k.pool, err)
				}
			}
		}

		stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
			INSERT INTO calculation_rows (`+calculationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare calculation insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx,
				row.Pool,
				row.Investor,
				row.Fund,
				formatDate(row.Month),
				row.FamilyBranch,
				row.AssetClass,
				row.SubAssetClass,
				row.Sleeve,
				row.DataType,
				row.NAV.String(),
				row.Gain.String(),
				row.Denominator.String(),
				row.Return.String(),
				row.Ownership.String(),
				row.Commitment.String(),
				row.Unfunded.String(),
				boolToInt(row.IRREligible),
				boolToInt(row.OwnershipAdjusted),
			); err != nil {
				return fmt.Errorf("failed to insert calculation row %s: %w", row.Path(), err)
			}
		}
		return nil
	})
}

type poolMonth struct {
	pool  string
	month string
}

// replacedPairs returns the distinct (pool, month) pairs of scope followed by
// those of rows not already in scope
func replacedPairs(rows []domain.CalculationRow, scope domain.PoolMonths) []poolMonth {
	seen := make(map[poolMonth]struct{})
	var pairs []poolMonth
	add := func(pool string, month time.Time) {
		k := poolMonth{pool: pool, month: formatDate(month)}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		pairs = append(pairs, k)
	}

	pools := make([]string, 0, len(scope))
	for pool := range scope {
		pools = append(pools, pool)
	}
	sort.Strings(pools)
	for _, pool := range pools {
		for _, month := range scope[pool] {
			add(pool, month)
		}
	}
	for _, row := range rows {
		add(row.Pool, row.Month)
	}
	return pairs
}
