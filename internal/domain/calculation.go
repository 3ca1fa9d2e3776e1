package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Data type tags of calculation rows and hierarchy nodes
const (
	DataTypeTotal     = "Total"
	DataTypeFund      = "Fund"
	DataTypeBenchmark = "Benchmark"
)

var hundred = decimal.NewFromInt(100)

// CalculationRow is one computed record for a single (grouping path, month) pair.
// Rows are immutable once emitted and are the unit of persistence and roll-up.
type CalculationRow struct {
	Pool              string
	Fund              string
	Investor          string
	FamilyBranch      string
	AssetClass        string
	SubAssetClass     string
	Sleeve            string
	Month             time.Time // Month start (MonthWindow.ID)
	DataType          string    // "Total <level>" for synthetic rows, "Fund" for leaves
	NAV               decimal.Decimal
	Gain              decimal.Decimal
	Denominator       decimal.Decimal // Money-weighted (modified Dietz) denominator
	Return            decimal.Decimal // Percent, derived from Gain and Denominator
	Ownership         decimal.Decimal
	Commitment        decimal.Decimal
	Unfunded          decimal.Decimal
	IRREligible       bool
	OwnershipAdjusted bool
}

// RowKey uniquely identifies a row within a run
type RowKey struct {
	Path  string
	Month time.Time
}

// Path encodes the grouping path of the row
func (r CalculationRow) Path() string {
	return strings.Join([]string{r.Pool, r.Investor, r.Fund}, "::")
}

// Key returns the (path, month) uniqueness key
func (r CalculationRow) Key() RowKey {
	return RowKey{Path: r.Path(), Month: r.Month}
}

// Attribute returns the value of a grouping attribute by level name.
// Returns ErrUnknownLevel for names the row does not carry.
func (r CalculationRow) Attribute(level string) (string, error) {
	switch level {
	case LevelPool:
		return r.Pool, nil
	case LevelInvestor:
		return r.Investor, nil
	case LevelFamilyBranch:
		return r.FamilyBranch, nil
	case LevelAssetClass:
		return r.AssetClass, nil
	case LevelSubAssetClass:
		return r.SubAssetClass, nil
	case LevelSleeve:
		return r.Sleeve, nil
	case LevelFund:
		return r.Fund, nil
	default:
		return "", ErrUnknownLevel
	}
}

// DeriveReturn computes gain / denominator * 100, or zero when the denominator is zero
func DeriveReturn(gain, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return gain.Div(denominator).Mul(hundred)
}

// WithDerivedReturn returns a copy of the row with Return recomputed
func (r CalculationRow) WithDerivedReturn() CalculationRow {
	r.Return = DeriveReturn(r.Gain, r.Denominator)
	return r
}

// Grouping level names understood by the roll-up
const (
	LevelPool          = "pool"
	LevelInvestor      = "investor"
	LevelFamilyBranch  = "familyBranch"
	LevelAssetClass    = "assetClass"
	LevelSubAssetClass = "subAssetClass"
	LevelSleeve        = "sleeve"
	LevelFund          = "fund"
)

// CalculationFilter narrows the rows loaded from persistence.
// Zero values mean "no restriction".
type CalculationFilter struct {
	Pools []string
	From  time.Time
	To    time.Time
}
