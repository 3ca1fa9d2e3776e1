package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundMetadata carries the classification of a fund used by the roll-up
type FundMetadata struct {
	Fund          string
	Pool          string
	AssetClass    string
	SubAssetClass string
	Sleeve        string
	Consolidator  string // Empty when the fund is displayed standalone
}

// FundLookup maps fund name to its metadata.
// Shared read-only between workers.
type FundLookup map[string]FundMetadata

// Consolidators returns the fund -> consolidator name mapping
func (l FundLookup) Consolidators() map[string]string {
	out := make(map[string]string)
	for name, meta := range l {
		if meta.Consolidator != "" {
			out[name] = meta.Consolidator
		}
	}
	return out
}

// Benchmark is one month of a pre-aggregated benchmark series
type Benchmark struct {
	Name   string
	Month  time.Time
	Return decimal.Decimal
	ITD    *decimal.Decimal // Inception-to-date figure supplied by the source, if any
}

// BenchmarkLink attaches a benchmark to an intermediate hierarchy node
type BenchmarkLink struct {
	Benchmark string
	Level     string // assetClass, subAssetClass, sleeve or familyBranch
	Value     string
}
