package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// runLogRepository implements domain.RunLogRepository
type runLogRepository struct {
	db *DB
}

// NewRunLogRepository creates a new run history repository
func NewRunLogRepository(db *DB) domain.RunLogRepository {
	return &runLogRepository{db: db}
}

// Record stores a finished run
func (r *runLogRepository) Record(ctx context.Context, entry *domain.RunLog) error {
	query := `
		INSERT INTO run_log (id, started_at, finished_at, state, pools, rows_count, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		entry.ID.String(),
		formatTimestamp(entry.StartedAt),
		formatTimestamp(entry.FinishedAt),
		string(entry.State),
		entry.Pools,
		entry.Rows,
		entry.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run log entry: %w", err)
	}

	return nil
}

// Latest retrieves the most recent run
func (r *runLogRepository) Latest(ctx context.Context) (*domain.RunLog, error) {
	query := `
		SELECT id, started_at, finished_at, state, pools, rows_count, message
		FROM run_log
		ORDER BY started_at DESC
		LIMIT 1
	`

	var entry domain.RunLog
	var idStr, startedStr, finishedStr, state string

	err := r.db.QueryRowContext(ctx, query).Scan(
		&idStr,
		&startedStr,
		&finishedStr,
		&state,
		&entry.Pools,
		&entry.Rows,
		&entry.Message,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no calculation run recorded: %w", domain.ErrRunNotFound)
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if entry.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse run id: %w", err)
	}
	if entry.StartedAt, err = parseTimestamp(startedStr); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if entry.FinishedAt, err = parseTimestamp(finishedStr); err != nil {
		return nil, fmt.Errorf("failed to parse finished_at: %w", err)
	}
	entry.State = domain.RunState(state)

	return &entry, nil
}
