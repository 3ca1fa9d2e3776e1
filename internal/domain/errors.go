package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the calculation pipeline
var (
	// ErrPoolComputeFailure is returned when a single pool cannot complete its months.
	// The whole run halts because partial pool data would corrupt roll-up totals.
	ErrPoolComputeFailure = errors.New("pool compute failure")

	// ErrRunCancelled is returned when the caller cancelled the run
	ErrRunCancelled = errors.New("calculation run cancelled")

	// ErrRunInProgress is returned when a second run is started while one is active
	ErrRunInProgress = errors.New("calculation run already in progress")

	// ErrRunNotFound is returned when cancelling a run that is not active
	ErrRunNotFound = errors.New("calculation run not found")

	// ErrCompoundingUndefined marks a compounded metric that cannot be computed
	ErrCompoundingUndefined = errors.New("compounded metric not available")

	// ErrUnknownLevel is returned for grouping levels the roll-up does not know
	ErrUnknownLevel = errors.New("unknown grouping level")
)

// TransientInputError describes a single malformed record.
// It is logged and the record skipped; it never aborts a diff.
type TransientInputError struct {
	Table  string
	Reason string
}

func (e *TransientInputError) Error() string {
	return fmt.Sprintf("skipping malformed %s record: %s", e.Table, e.Reason)
}

// PoolComputeError reports which pool and month failed
type PoolComputeError struct {
	Pool  string
	Month time.Time
	Err   error
}

func (e *PoolComputeError) Error() string {
	if e.Month.IsZero() {
		return fmt.Sprintf("pool %s: %v", e.Pool, e.Err)
	}
	return fmt.Sprintf("pool %s month %s: %v", e.Pool, e.Month.Format("2006-01"), e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is
func (e *PoolComputeError) Unwrap() []error {
	return []error{ErrPoolComputeFailure, e.Err}
}
