package poolcalc

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/scheduler"
)

var hundred = decimal.NewFromInt(100)

// Calculator is the default per-pool monthly calculation.
// It values every (investor, fund) pair of a pool with a modified Dietz denominator.
type Calculator struct {
	// StrictMetadata fails the pool when a fund has no metadata entry
	StrictMetadata bool
}

var _ scheduler.PoolCalculator = (*Calculator)(nil)

// NewCalculator creates a new Calculator instance
func NewCalculator(strictMetadata bool) *Calculator {
	return &Calculator{StrictMetadata: strictMetadata}
}

type pairKey struct {
	investor string
	fund     string
}

type pairState struct {
	nav            decimal.Decimal
	flows          decimal.Decimal
	weightedFlows  decimal.Decimal
	contributions  decimal.Decimal
	newCommitments decimal.Decimal
	familyBranch   string
	assetClass     string
	subAssetClass  string
	sleeve         string
	prev           *domain.CalculationRow
}

// CalculateMonth computes the leaf rows of one pool month.
// Logic:
//   - NAV: latest position snapshot of the pair inside the position window, carried forward when absent
//   - Flows: transactions inside the transaction window, weighted by the fraction of the month remaining
//   - Gain = NAV - previous NAV - flows; Denominator = previous NAV + weighted flows
//   - Commitment accumulates "commitment" transactions; unfunded is reduced by contributions
//   - Ownership = pair NAV / fund NAV across the pool's investors, in percent
func (c *Calculator) CalculateMonth(ctx context.Context, in scheduler.MonthInput) ([]domain.CalculationRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pairs := make(map[pairKey]*pairState)
	get := func(investor, fund string) *pairState {
		k := pairKey{investor: investor, fund: fund}
		st, ok := pairs[k]
		if !ok {
			st = &pairState{}
			pairs[k] = st
		}
		return st
	}

	for i := range in.Previous {
		prev := in.Previous[i]
		st := get(prev.Investor, prev.Fund)
		st.prev = &prev
		st.nav = prev.NAV
		st.familyBranch = prev.FamilyBranch
	}

	if err := applyPositions(in, get); err != nil {
		return nil, err
	}
	applyTransactions(in, get)

	fundNAV := make(map[string]decimal.Decimal)
	investorsPerFund := make(map[string]int)
	for k, st := range pairs {
		fundNAV[k.fund] = fundNAV[k.fund].Add(st.nav)
		investorsPerFund[k.fund]++
	}

	rows := make([]domain.CalculationRow, 0, len(pairs))
	for k, st := range pairs {
		meta, ok := in.Funds[k.fund]
		if !ok && c.StrictMetadata {
			return nil, fmt.Errorf("fund %q has no metadata", k.fund)
		}

		prevNAV, prevCommitment, prevUnfunded := decimal.Zero, decimal.Zero, decimal.Zero
		if st.prev != nil {
			prevNAV = st.prev.NAV
			prevCommitment = st.prev.Commitment
			prevUnfunded = st.prev.Unfunded
		}

		if st.nav.IsZero() && prevNAV.IsZero() && st.flows.IsZero() && st.newCommitments.IsZero() && prevCommitment.IsZero() {
			continue
		}

		gain := st.nav.Sub(prevNAV).Sub(st.flows)
		denominator := prevNAV.Add(st.weightedFlows)

		commitment := prevCommitment.Add(st.newCommitments)
		unfunded := prevUnfunded.Add(st.newCommitments).Sub(st.contributions)
		if unfunded.IsNegative() {
			unfunded = decimal.Zero
		}

		ownership := decimal.Zero
		if total := fundNAV[k.fund]; !total.IsZero() {
			ownership = st.nav.Div(total).Mul(hundred)
		}

		row := domain.CalculationRow{
			Pool:              in.Pool,
			Fund:              k.fund,
			Investor:          k.investor,
			FamilyBranch:      st.familyBranch,
			AssetClass:        firstNonEmpty(st.assetClass, meta.AssetClass),
			SubAssetClass:     firstNonEmpty(st.subAssetClass, meta.SubAssetClass),
			Sleeve:            firstNonEmpty(st.sleeve, meta.Sleeve),
			Month:             in.Month.ID,
			DataType:          domain.DataTypeFund,
			NAV:               st.nav,
			Gain:              gain,
			Denominator:       denominator,
			Ownership:         ownership,
			Commitment:        commitment,
			Unfunded:          unfunded,
			IRREligible:       commitment.IsPositive(),
			OwnershipAdjusted: investorsPerFund[k.fund] > 1,
		}
		rows = append(rows, row.WithDerivedReturn())
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Investor != rows[j].Investor {
			return rows[i].Investor < rows[j].Investor
		}
		return rows[i].Fund < rows[j].Fund
	})
	return rows, nil
}

func applyPositions(in scheduler.MonthInput, get func(investor, fund string) *pairState) error {
	positions := in.Cache.Records(domain.TablePositions, in.Month.ID)

	// Only the latest snapshot date of each pair counts
	latest := make(map[pairKey]int64)
	for _, p := range positions {
		if p.Value.IsNegative() {
			return fmt.Errorf("negative position %s for %s/%s", p.Value, p.Source, p.Target)
		}
		k := pairKey{investor: p.Source, fund: p.Target}
		if ts, ok := latest[k]; !ok || p.Date.Unix() > ts {
			latest[k] = p.Date.Unix()
		}
	}

	seen := make(map[pairKey]bool)
	for _, p := range positions {
		k := pairKey{investor: p.Source, fund: p.Target}
		if p.Date.Unix() != latest[k] {
			continue
		}
		st := get(p.Source, p.Target)
		if !seen[k] {
			st.nav = decimal.Zero
			seen[k] = true
		}
		st.nav = st.nav.Add(p.Value)
		annotate(st, p)
	}
	return nil
}

func applyTransactions(in scheduler.MonthInput, get func(investor, fund string) *pairState) {
	days := decimal.NewFromInt(int64(in.Month.End.Day()))
	for _, tx := range in.Cache.Records(domain.TableTransactions, in.Month.ID) {
		st := get(tx.Source, tx.Target)
		annotate(st, tx)

		if tx.Classification == domain.ClassificationCommitment {
			st.newCommitments = st.newCommitments.Add(tx.Value)
			continue
		}

		remaining := decimal.NewFromInt(int64(in.Month.End.Day() - tx.Date.Day() + 1))
		st.flows = st.flows.Add(tx.Value)
		st.weightedFlows = st.weightedFlows.Add(tx.Value.Mul(remaining).Div(days))
		if tx.Value.IsPositive() {
			st.contributions = st.contributions.Add(tx.Value)
		}
	}
}

func annotate(st *pairState, r domain.RawRecord) {
	if r.FamilyBranch != "" {
		st.familyBranch = r.FamilyBranch
	}
	if r.AssetClass != "" {
		st.assetClass = r.AssetClass
	}
	if r.SubAssetClass != "" {
		st.subAssetClass = r.SubAssetClass
	}
	if r.Sleeve != "" {
		st.sleeve = r.Sleeve
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
