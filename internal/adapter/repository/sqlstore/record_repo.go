package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// recordRepository implements domain.RecordRepository
type recordRepository struct {
	db *DB
}

// NewRecordRepository creates a new raw record repository
func NewRecordRepository(db *DB) domain.RecordRepository {
	return &recordRepository{db: db}
}

// LoadRecords retrieves the stored snapshot of a table
func (r *recordRepository) LoadRecords(ctx context.Context, table string) ([]domain.RawRecord, error) {
	query := `
		SELECT table_name, kind, source, target, value, record_date, pool,
		       asset_class, sub_asset_class, sleeve, family_branch, classification
		FROM raw_records
		WHERE table_name = $1
		ORDER BY record_date, source, target
	`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), table)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", table, err)
	}
	defer rows.Close()

	var records []domain.RawRecord
	for rows.Next() {
		var rec domain.RawRecord
		var kind, valueStr, dateStr string
		if err := rows.Scan(
			&rec.Table,
			&kind,
			&rec.Source,
			&rec.Target,
			&valueStr,
			&dateStr,
			&rec.Pool,
			&rec.AssetClass,
			&rec.SubAssetClass,
			&rec.Sleeve,
			&rec.FamilyBranch,
			&rec.Classification,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Kind = domain.RecordKind(kind)

		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value: %w", err)
		}
		rec.Value = value

		date, err := parseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse record_date: %w", err)
		}
		rec.Date = date

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// SaveRecords writes a table snapshot.
// SaveModeReplace and SaveModeClear both replace the whole table snapshot.
func (r *recordRepository) SaveRecords(ctx context.Context, table string, records []domain.RawRecord, mode domain.SaveMode) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if mode != domain.SaveModeAppend {
			if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM raw_records WHERE table_name = $1`), table); err != nil {
				return fmt.Errorf("failed to clear %s records: %w", table, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
			INSERT INTO raw_records (table_name, kind, source, target, value, record_date, pool,
			                         asset_class, sub_asset_class, sleeve, family_branch, classification)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare record insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx,
				table,
				string(rec.Kind),
				rec.Source,
				rec.Target,
				rec.Value.String(),
				formatDate(rec.Date),
				rec.Pool,
				rec.AssetClass,
				rec.SubAssetClass,
				rec.Sleeve,
				rec.FamilyBranch,
				rec.Classification,
			); err != nil {
				return fmt.Errorf("failed to insert %s record: %w", table, err)
			}
		}
		return nil
	})
}
