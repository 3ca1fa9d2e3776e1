package scheduler

import (
	"time"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// Collector receives run and worker measurements
type Collector interface {
	RunStarted(pools int)
	RunFinished(state domain.RunState, elapsed time.Duration)
	PoolFinished(pool string, state domain.WorkerState, elapsed time.Duration)
	MonthComputed(pool string)
	Progress(percent float64)
}

// NopCollector discards all measurements
type NopCollector struct{}

var _ Collector = NopCollector{}

func (NopCollector) RunStarted(int) {}
func (NopCollector) RunFinished(domain.RunState, time.Duration) {}
func (NopCollector) PoolFinished(string, domain.WorkerState, time.Duration) {}
func (NopCollector) MonthComputed(string) {}
func (NopCollector) Progress(float64) {}
