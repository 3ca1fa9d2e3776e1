package rollup

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// SegmentKind tags a path segment as a normal grouping value or a hidden layer
type SegmentKind int

const (
	SegmentNormal SegmentKind = iota
	SegmentHidden
)

// Segment is one step of a node path
type Segment struct {
	Kind  SegmentKind
	Value string
}

// Normal creates a visible path segment
func Normal(value string) Segment {
	return Segment{Kind: SegmentNormal, Value: value}
}

// Hidden creates a hidden-layer path segment. The suppressed value is kept
// for diagnostics but never appears in row keys.
func Hidden(value string) Segment {
	return Segment{Kind: SegmentHidden, Value: value}
}

// KeySeparator joins visible path segments into a row key
const KeySeparator = "::"

// Entry is the aggregated value of a node for one month
type Entry struct {
	NAV         decimal.Decimal
	Gain        decimal.Decimal
	Denominator decimal.Decimal
	Return      decimal.Decimal
	Ownership   decimal.Decimal
	Commitment  decimal.Decimal
	Unfunded    decimal.Decimal
}

// Add returns the sum of two entries with the return re-derived
func (e Entry) Add(o Entry) Entry {
	sum := Entry{
		NAV:         e.NAV.Add(o.NAV),
		Gain:        e.Gain.Add(o.Gain),
		Denominator: e.Denominator.Add(o.Denominator),
		Ownership:   e.Ownership.Add(o.Ownership),
		Commitment:  e.Commitment.Add(o.Commitment),
		Unfunded:    e.Unfunded.Add(o.Unfunded),
	}
	sum.Return = domain.DeriveReturn(sum.Gain, sum.Denominator)
	return sum
}

// Node is one aggregated row of the hierarchy. Nodes live in the Tree arena
// and reference each other by index.
type Node struct {
	ID          int
	Parent      int // -1 for the root
	Children    []int
	Path        []Segment
	Level       string // Grouping level name; empty for the root
	Name        string
	DataType    string // Empty means no contributing data; such nodes are pruned
	Months      map[time.Time]Entry
	Benchmark   bool
	ITD         *decimal.Decimal // Supplied inception-to-date figure for benchmark nodes
	MultiSource bool             // Leaf aggregated from more than one pool
}

// Key returns the row key: visible path segments joined by KeySeparator
func (n *Node) Key() string {
	parts := make([]string, 0, len(n.Path))
	for _, s := range n.Path {
		if s.Kind == SegmentNormal {
			parts = append(parts, s.Value)
		}
	}
	if len(parts) == 0 {
		return domain.DataTypeTotal
	}
	return strings.Join(parts, KeySeparator)
}

// MonthsSorted returns the node's months in ascending order
func (n *Node) MonthsSorted() []time.Time {
	months := make([]time.Time, 0, len(n.Months))
	for m := range n.Months {
		months = append(months, m)
	}
	sortTimes(months)
	return months
}

// Tree is the arena of hierarchy nodes produced by Build.
// It is not modified after Build returns.
type Tree struct {
	Nodes []Node
	Root  int
}

// Node returns the node with the given ID
func (t *Tree) Node(id int) *Node {
	return &t.Nodes[id]
}

// Find returns the node with the given row key
func (t *Tree) Find(key string) (*Node, bool) {
	var found *Node
	t.Walk(func(n *Node, _ int) bool {
		if n.Key() == key && !n.Benchmark {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// FindBenchmark returns the benchmark node named name directly under the node with parentKey
func (t *Tree) FindBenchmark(parentKey, name string) (*Node, bool) {
	parent, ok := t.Find(parentKey)
	if !ok {
		return nil, false
	}
	for _, id := range parent.Children {
		c := t.Node(id)
		if c.Benchmark && c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Walk visits nodes depth-first from the root in display order.
// fn returns false to stop the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	if len(t.Nodes) == 0 {
		return
	}
	var visit func(id, depth int) bool
	visit = func(id, depth int) bool {
		n := t.Node(id)
		if !fn(n, depth) {
			return false
		}
		for _, c := range n.Children {
			if !visit(c, depth+1) {
				return false
			}
		}
		return true
	}
	visit(t.Root, 0)
}

// DisplayRow is one flattened row of the tree for presentation
type DisplayRow struct {
	NodeID    int
	Key       string
	Name      string
	Level     string
	DataType  string
	Depth     int
	Benchmark bool
	Months    map[time.Time]Entry
}

// Rows flattens the tree depth-first in display order
func (t *Tree) Rows() []DisplayRow {
	var rows []DisplayRow
	t.Walk(func(n *Node, depth int) bool {
		rows = append(rows, DisplayRow{
			NodeID:    n.ID,
			Key:       n.Key(),
			Name:      n.Name,
			Level:     n.Level,
			DataType:  n.DataType,
			Depth:     depth,
			Benchmark: n.Benchmark,
			Months:    n.Months,
		})
		return true
	})
	return rows
}
