package domain

import (
	"sort"
	"time"
)

// PoolCache holds one pool's records bucketed by table and month ID.
// It is handed read-only to exactly one worker.
type PoolCache map[string]map[time.Time][]RawRecord

// Records returns the records of table falling into month
func (p PoolCache) Records(table string, month time.Time) []RawRecord {
	if p == nil {
		return nil
	}
	return p[table][month]
}

// Cache maps pool -> table -> month ID -> records.
// Built once per run and immutable while workers execute.
type Cache map[string]PoolCache

// Add appends a record to its pool/table/month bucket
func (c Cache) Add(pool, table string, month time.Time, rec RawRecord) {
	pc, ok := c[pool]
	if !ok {
		pc = make(PoolCache)
		c[pool] = pc
	}
	byMonth, ok := pc[table]
	if !ok {
		byMonth = make(map[time.Time][]RawRecord)
		pc[table] = byMonth
	}
	byMonth[month] = append(byMonth[month], rec)
}

// Slice returns the read-only cache slice of one pool
func (c Cache) Slice(pool string) PoolCache {
	return c[pool]
}

// Pools returns the sorted pool names present in the cache
func (c Cache) Pools() []string {
	pools := make([]string, 0, len(c))
	for p := range c {
		pools = append(pools, p)
	}
	sort.Strings(pools)
	return pools
}
