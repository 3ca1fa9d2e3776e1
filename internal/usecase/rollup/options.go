package rollup

import (
	"fmt"
	"time"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// LevelTotal is the benchmark link level that attaches a benchmark to the root
const LevelTotal = "total"

// Options configures one roll-up
type Options struct {
	Levels             []string // Grouping levels above the fund leaves, outermost first
	AssetClassOrder    []string // Asset classes listed first, in this order
	SubAssetClassOrder []string // Sub-asset classes listed first, in this order
	Hidden             map[string]map[string]bool
	Consolidate        bool
	Consolidators      map[string]string // Raw fund -> consolidator
	SelectedFunds      map[string]bool   // Raw funds kept standalone even when consolidating
	OwnershipLevels    map[string]bool   // Nil means DefaultOwnershipLevels
	SortByNAV          bool              // Order fund leaves by descending end-of-period NAV
	From               time.Time         // Zero means unbounded
	To                 time.Time         // Zero means unbounded
	Benchmarks         []domain.Benchmark
	Links              []domain.BenchmarkLink
}

// DefaultOwnershipLevels returns the levels at which ownership is aggregated
func DefaultOwnershipLevels() map[string]bool {
	return map[string]bool{
		domain.LevelPool:         true,
		domain.LevelInvestor:     true,
		domain.LevelFamilyBranch: true,
	}
}

var levelNames = map[string]string{
	domain.LevelPool:          "Pool",
	domain.LevelInvestor:      "Investor",
	domain.LevelFamilyBranch:  "Family Branch",
	domain.LevelAssetClass:    "Asset Class",
	domain.LevelSubAssetClass: "Sub-Asset Class",
	domain.LevelSleeve:        "Sleeve",
	domain.LevelFund:          "Fund",
}

// TotalDataType returns the data type tag of aggregated nodes at level
func TotalDataType(level string) string {
	return domain.DataTypeTotal + " " + levelNames[level]
}

// hidden reports whether value is a hidden layer at level
func (o Options) hidden(level, value string) bool {
	return o.Hidden[level][value]
}

// consolidate re-keys a row to its consolidator unless the raw fund was selected
func (o Options) consolidate(r domain.CalculationRow) domain.CalculationRow {
	if !o.Consolidate || o.SelectedFunds[r.Fund] {
		return r
	}
	if c, ok := o.Consolidators[r.Fund]; ok && c != "" {
		r.Fund = c
	}
	return r
}

// inWindow reports whether month lies within [From, To]
func (o Options) inWindow(month time.Time) bool {
	if !o.From.IsZero() && month.Before(domain.MonthStart(o.From)) {
		return false
	}
	if !o.To.IsZero() && month.After(domain.MonthStart(o.To)) {
		return false
	}
	return true
}

func (o Options) validate() error {
	for _, level := range o.Levels {
		if _, ok := levelNames[level]; !ok || level == domain.LevelFund {
			return fmt.Errorf("%w: %q", domain.ErrUnknownLevel, level)
		}
	}
	return nil
}
