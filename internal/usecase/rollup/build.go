package rollup

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

type builder struct {
	opts      Options
	nodes     []Node
	periodEnd time.Time
}

// Build aggregates flat calculation rows into a hierarchy rooted at "Total".
// Logic:
//  1. Drop rows outside the month window and apply fund consolidation
//  2. Recurse through opts.Levels, creating nodes bottom-up; the hidden values of a level forward their rows one level down together
//  3. Fund leaves sum raw entries so multi-pool funds derive their return from summed gain and denominator
//  4. Inject benchmark series under the root and under linked nodes
//
// Nodes without typed data are pruned while building. The returned tree is
// not modified afterwards.
func Build(rows []domain.CalculationRow, opts Options) (*Tree, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.OwnershipLevels == nil {
		opts.OwnershipLevels = DefaultOwnershipLevels()
	}

	b := &builder{opts: opts}

	scoped := make([]domain.CalculationRow, 0, len(rows))
	for _, r := range rows {
		if !opts.inWindow(r.Month) {
			continue
		}
		r = opts.consolidate(r)
		if r.Month.After(b.periodEnd) {
			b.periodEnd = r.Month
		}
		scoped = append(scoped, r)
	}
	// Stable input order keeps ownership de-duplication deterministic
	slices.SortStableFunc(scoped, func(a, c domain.CalculationRow) int {
		if n := strings.Compare(a.Path(), c.Path()); n != 0 {
			return n
		}
		return a.Month.Compare(c.Month)
	})

	children, totals := b.buildLevel(0, scoped, nil)
	b.applyOwnership("", totals, nil)
	root := b.add(Node{
		Children: children,
		Name:     domain.DataTypeTotal,
		DataType: domain.DataTypeTotal,
		Months:   totals,
	})

	b.injectBenchmarks(root)

	for i := range b.nodes {
		b.nodes[i].Parent = -1
	}
	for i := range b.nodes {
		for _, c := range b.nodes[i].Children {
			b.nodes[c].Parent = i
		}
	}

	return &Tree{Nodes: b.nodes, Root: root}, nil
}

func (b *builder) add(n Node) int {
	n.ID = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return n.ID
}

// buildLevel groups rows by the level at index and recurses one level deeper.
// It returns the IDs of the nodes created directly at this level (hidden values
// contribute their children instead) and the summed monthly totals.
func (b *builder) buildLevel(index int, rows []domain.CalculationRow, path []Segment) ([]int, map[time.Time]Entry) {
	if index == len(b.opts.Levels) {
		return b.buildLeaves(rows, path)
	}

	level := b.opts.Levels[index]
	groups, values := groupRows(rows, func(r domain.CalculationRow) string {
		v, _ := r.Attribute(level)
		return v
	})
	b.orderLevel(level, values)

	var hiddenValues []string
	for _, value := range values {
		if b.opts.hidden(level, value) {
			hiddenValues = append(hiddenValues, value)
		}
	}

	var children []int
	totals := make(map[time.Time]Entry)
	hiddenDone := false
	for _, value := range values {
		group := groups[value]

		// All hidden values of a level forward their rows as one group, so a
		// fund held under two hidden values yields a single leaf
		if b.opts.hidden(level, value) {
			if hiddenDone {
				continue
			}
			hiddenDone = true
			merged := make([]domain.CalculationRow, 0, len(group))
			for _, r := range rows {
				if v, _ := r.Attribute(level); b.opts.hidden(level, v) {
					merged = append(merged, r)
				}
			}
			ids, sub := b.buildLevel(index+1, merged, extend(path, Hidden(strings.Join(hiddenValues, ", "))))
			children = append(children, ids...)
			addTotals(totals, sub)
			continue
		}

		nodePath := extend(path, Normal(value))
		ids, sub := b.buildLevel(index+1, group, nodePath)
		if len(sub) == 0 {
			continue
		}
		b.applyOwnership(level, sub, group)
		children = append(children, b.add(Node{
			Children: ids,
			Path:     nodePath,
			Level:    level,
			Name:     value,
			DataType: TotalDataType(level),
			Months:   sub,
		}))
		addTotals(totals, sub)
	}
	return children, totals
}

// buildLeaves creates one node per fund, summing the raw entries of every
// pool and investor that holds it.
func (b *builder) buildLeaves(rows []domain.CalculationRow, path []Segment) ([]int, map[time.Time]Entry) {
	groups, funds := groupRows(rows, func(r domain.CalculationRow) string { return r.Fund })

	type leaf struct {
		fund   string
		node   Node
		endNAV float64
	}
	leaves := make([]leaf, 0, len(funds))

	for _, fund := range funds {
		var dataType string
		pools := make(map[string]struct{})
		months := make(map[time.Time]Entry)
		typed := make([]domain.CalculationRow, 0, len(groups[fund]))
		for _, r := range groups[fund] {
			if r.DataType == "" {
				continue
			}
			if dataType == "" {
				dataType = r.DataType
			}
			pools[r.Pool] = struct{}{}
			months[r.Month] = months[r.Month].Add(entryOf(r))
			typed = append(typed, r)
		}
		if dataType == "" {
			continue
		}
		b.applyOwnership(domain.LevelFund, months, typed)

		leaves = append(leaves, leaf{
			fund: fund,
			node: Node{
				Path:        extend(path, Normal(fund)),
				Level:       domain.LevelFund,
				Name:        fund,
				DataType:    dataType,
				Months:      months,
				MultiSource: len(pools) > 1,
			},
			endNAV: months[b.periodEnd].NAV.InexactFloat64(),
		})
	}

	if b.opts.SortByNAV {
		slices.SortStableFunc(leaves, func(x, y leaf) int {
			switch {
			case x.endNAV > y.endNAV:
				return -1
			case x.endNAV < y.endNAV:
				return 1
			}
			return strings.Compare(x.fund, y.fund)
		})
	}

	ids := make([]int, 0, len(leaves))
	totals := make(map[time.Time]Entry)
	for _, l := range leaves {
		ids = append(ids, b.add(l.node))
		addTotals(totals, l.node.Months)
	}
	return ids, totals
}

// applyOwnership replaces the summed ownership of months. Levels outside
// OwnershipLevels (funds excepted) carry no ownership; the others count each
// investor once per month.
func (b *builder) applyOwnership(level string, months map[time.Time]Entry, rows []domain.CalculationRow) {
	if level != domain.LevelFund && !b.opts.OwnershipLevels[level] {
		for m, e := range months {
			e.Ownership = decimal.Zero
			months[m] = e
		}
		return
	}

	counted := make(map[time.Time]map[string]struct{})
	owned := make(map[time.Time]Entry)
	for _, r := range rows {
		seen, ok := counted[r.Month]
		if !ok {
			seen = make(map[string]struct{})
			counted[r.Month] = seen
		}
		if _, dup := seen[r.Investor]; dup {
			continue
		}
		seen[r.Investor] = struct{}{}
		e := owned[r.Month]
		e.Ownership = e.Ownership.Add(r.Ownership)
		owned[r.Month] = e
	}
	for m, e := range months {
		e.Ownership = owned[m].Ownership
		months[m] = e
	}
}

// orderLevel sorts values in place: configured overrides first, then alphabetical
func (b *builder) orderLevel(level string, values []string) {
	var override []string
	switch level {
	case domain.LevelAssetClass:
		override = b.opts.AssetClassOrder
	case domain.LevelSubAssetClass:
		override = b.opts.SubAssetClassOrder
	}
	rank := make(map[string]int, len(override))
	for i, v := range override {
		if _, ok := rank[v]; !ok {
			rank[v] = i
		}
	}
	slices.SortFunc(values, func(x, y string) int {
		rx, okx := rank[x]
		ry, oky := rank[y]
		switch {
		case okx && oky:
			return rx - ry
		case okx:
			return -1
		case oky:
			return 1
		}
		return strings.Compare(x, y)
	})
}

// groupRows groups rows by key, preserving row order within each group.
// The returned keys are sorted alphabetically.
func groupRows(rows []domain.CalculationRow, key func(domain.CalculationRow) string) (map[string][]domain.CalculationRow, []string) {
	groups := make(map[string][]domain.CalculationRow)
	var keys []string
	for _, r := range rows {
		k := key(r)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	slices.Sort(keys)
	return groups, keys
}

func entryOf(r domain.CalculationRow) Entry {
	return Entry{
		NAV:         r.NAV,
		Gain:        r.Gain,
		Denominator: r.Denominator,
		Return:      r.Return,
		Commitment:  r.Commitment,
		Unfunded:    r.Unfunded,
		Ownership:   r.Ownership,
	}
}

func addTotals(into, from map[time.Time]Entry) {
	for m, e := range from {
		into[m] = into[m].Add(e)
	}
}

func extend(path []Segment, s Segment) []Segment {
	out := make([]Segment, len(path), len(path)+1)
	copy(out, path)
	return append(out, s)
}

func sortTimes(ts []time.Time) {
	slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })
}
