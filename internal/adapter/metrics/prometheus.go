package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/scheduler"
)

// PrometheusCollector implements scheduler.Collector backed by Prometheus
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	activePools   prometheus.Gauge
	poolsFinished *prometheus.CounterVec
	poolDuration  prometheus.Histogram
	months        *prometheus.CounterVec
	progress      prometheus.Gauge
}

// Compile-time assertion that PrometheusCollector implements scheduler.Collector.
var _ scheduler.Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed collector.
// reg defaults to prometheus.DefaultRegisterer and namespace to "wealthflow".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "wealthflow"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.runsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "calculation",
			Name:      "runs_started_total",
			Help:      "Total calculation runs started.",
		})
		p.runsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "calculation",
			Name:      "runs_finished_total",
			Help:      "Total calculation runs finished by state (COMPLETED, FAILED, CANCELLED).",
		}, []string{"state"})
		p.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "calculation",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of calculation runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms .. ~3.4m
		})
		p.activePools = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "calculation",
			Name:      "run_pools",
			Help:      "Number of pools scheduled by the current or last run.",
		})
		p.poolsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "pools_finished_total",
			Help:      "Total pool workers finished by state.",
		}, []string{"state"})
		p.poolDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "pool_duration_seconds",
			Help:      "Duration of one pool worker in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		})
		p.months = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "months_computed_total",
			Help:      "Total pool months computed by pool.",
		}, []string{"pool"})
		p.progress = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "calculation",
			Name:      "progress_percent",
			Help:      "Aggregate progress of the current run; -1 when the run halted.",
		})

		for _, c := range []prometheus.Collector{
			p.runsStarted, p.runsFinished, p.runDuration, p.activePools,
			p.poolsFinished, p.poolDuration, p.months, p.progress,
		} {
			if err := p.reg.Register(c); err != nil {
				var already prometheus.AlreadyRegisteredError
				if !errors.As(err, &already) {
					panic(err)
				}
			}
		}
	})
}

// RunStarted records the start of a run
func (p *PrometheusCollector) RunStarted(pools int) {
	p.ensureRegistered()
	p.runsStarted.Inc()
	p.activePools.Set(float64(pools))
	p.progress.Set(0)
}

// RunFinished records the outcome of a run
func (p *PrometheusCollector) RunFinished(state domain.RunState, elapsed time.Duration) {
	p.ensureRegistered()
	p.runsFinished.WithLabelValues(string(state)).Inc()
	p.runDuration.Observe(elapsed.Seconds())
}

// PoolFinished records the terminal state of a pool worker
func (p *PrometheusCollector) PoolFinished(pool string, state domain.WorkerState, elapsed time.Duration) {
	p.ensureRegistered()
	p.poolsFinished.WithLabelValues(string(state)).Inc()
	p.poolDuration.Observe(elapsed.Seconds())
}

// MonthComputed counts one computed pool month
func (p *PrometheusCollector) MonthComputed(pool string) {
	p.ensureRegistered()
	p.months.WithLabelValues(pool).Inc()
}

// Progress records aggregate run progress
func (p *PrometheusCollector) Progress(percent float64) {
	p.ensureRegistered()
	p.progress.Set(percent)
}
