package rollup

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

type benchmarkSeries struct {
	months map[time.Time]Entry
	itd    *decimal.Decimal
	itdAt  time.Time
}

// injectBenchmarks adds every benchmark series under the root and duplicates
// linked benchmarks under each matching node. Links to benchmarks without
// data still produce an empty placeholder node.
func (b *builder) injectBenchmarks(root int) {
	if len(b.opts.Benchmarks) == 0 && len(b.opts.Links) == 0 {
		return
	}

	series := make(map[string]*benchmarkSeries)
	for _, bm := range b.opts.Benchmarks {
		month := domain.MonthStart(bm.Month)
		if !b.opts.inWindow(month) {
			continue
		}
		s, ok := series[bm.Name]
		if !ok {
			s = &benchmarkSeries{months: make(map[time.Time]Entry)}
			series[bm.Name] = s
		}
		s.months[month] = Entry{Return: bm.Return}
		if bm.ITD != nil && !month.Before(s.itdAt) {
			itd := *bm.ITD
			s.itd = &itd
			s.itdAt = month
		}
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	slices.Sort(names)
	attached := make(map[string]struct{})
	for _, name := range names {
		b.attachBenchmark(root, name, series[name])
		attached[name] = struct{}{}
	}

	// Snapshot the node count: benchmark nodes appended below are never link targets
	count := len(b.nodes)
	linked := make(map[int]map[string]struct{})
	for _, link := range b.opts.Links {
		s := series[link.Benchmark]
		if link.Level == LevelTotal || link.Level == "" {
			if _, ok := attached[link.Benchmark]; !ok {
				b.attachBenchmark(root, link.Benchmark, s)
				attached[link.Benchmark] = struct{}{}
			}
			continue
		}
		for id := 0; id < count; id++ {
			n := &b.nodes[id]
			if n.Benchmark || n.Level != link.Level || n.Name != link.Value {
				continue
			}
			if _, dup := linked[id][link.Benchmark]; dup {
				continue
			}
			if linked[id] == nil {
				linked[id] = make(map[string]struct{})
			}
			linked[id][link.Benchmark] = struct{}{}
			b.attachBenchmark(id, link.Benchmark, s)
		}
	}
}

// attachBenchmark appends a benchmark node under parent. A nil series yields a placeholder.
func (b *builder) attachBenchmark(parent int, name string, s *benchmarkSeries) {
	node := Node{
		Path:      extend(b.nodes[parent].Path, Normal(name)),
		Level:     b.nodes[parent].Level,
		Name:      name,
		DataType:  domain.DataTypeBenchmark,
		Months:    make(map[time.Time]Entry),
		Benchmark: true,
	}
	if s != nil {
		for m, e := range s.months {
			node.Months[m] = e
		}
		node.ITD = s.itd
	}
	id := b.add(node)
	b.nodes[parent].Children = append(b.nodes[parent].Children, id)
}
