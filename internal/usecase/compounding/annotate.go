package compounding

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/usecase/rollup"
)

// Annotate computes metrics for every node of the tree, keyed by node ID.
// A node whose computation panics is logged and left without metrics; the
// rest of the table is unaffected. Benchmark nodes copy their supplied ITD.
func Annotate(tree *rollup.Tree, periodEnd time.Time, opts Options, log zerolog.Logger) map[int]Metrics {
	out := make(map[int]Metrics, len(tree.Nodes))
	tree.Walk(func(n *rollup.Node, _ int) bool {
		m, err := annotateNode(n, periodEnd, opts)
		if err != nil {
			log.Warn().Err(err).Str("node", n.Key()).Msg("compounded metrics unavailable")
			return true
		}
		out[n.ID] = m
		return true
	})
	return out
}

func annotateNode(n *rollup.Node, periodEnd time.Time, opts Options) (m Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compounding panicked: %v", r)
		}
	}()

	series := make([]Point, 0, len(n.Months))
	for month, e := range n.Months {
		series = append(series, Point{
			Month:  month,
			Return: e.Return.InexactFloat64(),
			NAV:    e.NAV.InexactFloat64(),
		})
	}

	m = Calculate(series, periodEnd, opts)
	if n.Benchmark {
		m.ITD = nil
		if n.ITD != nil {
			itd := n.ITD.InexactFloat64()
			m.ITD = &itd
		}
	}
	return m, nil
}
