package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// globalCursorKey is the pool column value of the global cursor row
const globalCursorKey = ""

// cursorRepository implements domain.CursorRepository
type cursorRepository struct {
	db *DB
}

// NewCursorRepository creates a new change cursor repository
func NewCursorRepository(db *DB) domain.CursorRepository {
	return &cursorRepository{db: db}
}

// LoadCursor retrieves the stored cursor, or nil if none was saved
func (r *cursorRepository) LoadCursor(ctx context.Context) (*domain.ChangeCursor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT pool, month, active FROM change_cursor`)
	if err != nil {
		return nil, fmt.Errorf("failed to query change cursor: %w", err)
	}
	defer rows.Close()

	var cursor *domain.ChangeCursor
	for rows.Next() {
		var pool, monthStr string
		var active int
		if err := rows.Scan(&pool, &monthStr, &active); err != nil {
			return nil, fmt.Errorf("failed to scan change cursor: %w", err)
		}
		month, err := parseDate(monthStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cursor month: %w", err)
		}

		if cursor == nil {
			cursor = &domain.ChangeCursor{Pools: make(map[string]time.Time)}
		}
		if pool == globalCursorKey {
			cursor.Global = month
			cursor.Active = active != 0
			continue
		}
		cursor.Pools[pool] = month
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change cursor: %w", err)
	}

	return cursor, nil
}

// SaveCursor replaces the stored cursor
func (r *cursorRepository) SaveCursor(ctx context.Context, cursor *domain.ChangeCursor) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM change_cursor`); err != nil {
			return fmt.Errorf("failed to clear change cursor: %w", err)
		}

		insert := r.db.Rebind(`INSERT INTO change_cursor (pool, month, active) VALUES ($1, $2, $3)`)
		if _, err := tx.ExecContext(ctx, insert, globalCursorKey, formatDate(cursor.Global), boolToInt(cursor.Active)); err != nil {
			return fmt.Errorf("failed to store global cursor: %w", err)
		}
		for pool, month := range cursor.Pools {
			if pool == globalCursorKey {
				continue
			}
			if _, err := tx.ExecContext(ctx, insert, pool, formatDate(month), boolToInt(cursor.Active)); err != nil {
				return fmt.Errorf("failed to store cursor of pool %s: %w", pool, err)
			}
		}
		return nil
	})
}
