package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind distinguishes point-in-time positions from flow transactions
type RecordKind string

const (
	RecordKindPosition    RecordKind = "POSITION"
	RecordKindTransaction RecordKind = "TRANSACTION"
)

// Tables fetched from the ingestion client and diffed on every run
const (
	TablePositions    = "positions"
	TableTransactions = "transactions"
)

// Classification values with special meaning for the pool calculator
const (
	ClassificationCommitment = "commitment"
	ClassificationFlow       = "flow"
)

// RawRecord represents a position or transaction entry as delivered by ingestion.
// Records are read-only inputs to the change cursor and the cache partitioner.
type RawRecord struct {
	Table          string
	Kind           RecordKind
	Source         string // Investing entity (investor or pool)
	Target         string // Invested entity (fund)
	Value          decimal.Decimal
	Date           time.Time
	Pool           string
	AssetClass     string
	SubAssetClass  string
	Sleeve         string
	FamilyBranch   string
	Classification string
}

// ComparisonKey is the normalized tuple used to detect changed records
type ComparisonKey struct {
	Source string
	Target string
	Value  string // Rounded to 2 decimal places
	Date   string // YYYY-MM-DD
}

// String renders the key as a single delimited string
func (k ComparisonKey) String() string {
	return k.Source + "\x1f" + k.Target + "\x1f" + k.Value + "\x1f" + k.Date
}

// Key returns the default normalized comparison tuple for the record
func (r RawRecord) Key() ComparisonKey {
	return ComparisonKey{
		Source: strings.ToLower(strings.TrimSpace(r.Source)),
		Target: strings.ToLower(strings.TrimSpace(r.Target)),
		Value:  r.Value.Round(2).StringFixed(2),
		Date:   r.Date.UTC().Format(time.DateOnly),
	}
}

// Validate reports why a record cannot take part in diffing or partitioning.
// requirePool is set when the caller tracks per-pool cursors.
func (r RawRecord) Validate(requirePool bool) error {
	if r.Date.IsZero() {
		return &TransientInputError{Table: r.Table, Reason: "missing date"}
	}
	if r.Date.Year() < 1900 || r.Date.Year() > 2200 {
		return &TransientInputError{Table: r.Table, Reason: "date out of range"}
	}
	if requirePool && strings.TrimSpace(r.Pool) == "" {
		return &TransientInputError{Table: r.Table, Reason: "missing pool"}
	}
	if r.Kind != RecordKindPosition && r.Kind != RecordKindTransaction {
		return &TransientInputError{Table: r.Table, Reason: "unknown record kind " + string(r.Kind)}
	}
	return nil
}
