package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// Cache keys
const (
	KeyFunds      = "funds"
	KeyBenchmarks = "benchmarks"
	KeyLinks      = "benchmark_links"
)

type entry struct {
	value    any
	loadedAt time.Time
}

// ReferenceCache is a read-through cache over fund metadata and benchmarks.
// Entries expire after TTL (zero keeps them until invalidated); forceRefresh
// bypasses and replaces the cached copy.
type ReferenceCache struct {
	funds      domain.FundRepository
	benchmarks domain.BenchmarkRepository
	ttl        time.Duration
	entries    *xsync.Map[string, entry]
	now        func() time.Time
	log        zerolog.Logger
}

var (
	_ domain.FundMetadataProvider = (*ReferenceCache)(nil)
	_ domain.BenchmarkProvider    = (*ReferenceCache)(nil)
)

// NewReferenceCache creates a new ReferenceCache instance
func NewReferenceCache(funds domain.FundRepository, benchmarks domain.BenchmarkRepository, ttl time.Duration, log zerolog.Logger) *ReferenceCache {
	return &ReferenceCache{
		funds:      funds,
		benchmarks: benchmarks,
		ttl:        ttl,
		entries:    xsync.NewMap[string, entry](),
		now:        time.Now,
		log:        log.With().Str("component", "reference_cache").Logger(),
	}
}

// Funds returns the fund lookup
func (c *ReferenceCache) Funds(ctx context.Context, forceRefresh bool) (domain.FundLookup, error) {
	return readThrough(ctx, c, KeyFunds, forceRefresh, func(ctx context.Context) (domain.FundLookup, error) {
		funds, err := c.funds.ListFunds(ctx)
		if err != nil {
			return nil, err
		}
		lookup := make(domain.FundLookup, len(funds))
		for _, f := range funds {
			lookup[f.Fund] = f
		}
		return lookup, nil
	})
}

// Benchmarks returns every benchmark month
func (c *ReferenceCache) Benchmarks(ctx context.Context, forceRefresh bool) ([]domain.Benchmark, error) {
	return readThrough(ctx, c, KeyBenchmarks, forceRefresh, c.benchmarks.ListBenchmarks)
}

// Links returns every benchmark link
func (c *ReferenceCache) Links(ctx context.Context, forceRefresh bool) ([]domain.BenchmarkLink, error) {
	return readThrough(ctx, c, KeyLinks, forceRefresh, c.benchmarks.ListLinks)
}

// Invalidate drops the given keys, or every key when none is given
func (c *ReferenceCache) Invalidate(keys ...string) {
	if len(keys) == 0 {
		c.entries.Clear()
		return
	}
	for _, k := range keys {
		c.entries.Delete(k)
	}
}

func readThrough[T any](ctx context.Context, c *ReferenceCache, key string, forceRefresh bool, fetch func(context.Context) (T, error)) (T, error) {
	if !forceRefresh {
		if e, ok := c.entries.Load(key); ok && (c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl) {
			return e.value.(T), nil
		}
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to load %s: %w", key, err)
	}
	c.entries.Store(key, entry{value: value, loadedAt: c.now()})
	c.log.Debug().Str("key", key).Bool("forced", forceRefresh).Msg("reference data loaded")
	return value, nil
}
