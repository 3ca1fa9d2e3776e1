package changecursor

import (
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// KeyFunc maps a record to its normalized comparison tuple
type KeyFunc func(domain.RawRecord) domain.ComparisonKey

// DefaultKey compares records on (source, target, rounded value, date)
func DefaultKey(r domain.RawRecord) domain.ComparisonKey {
	return r.Key()
}

// Difference pairs a new or changed record with the previous record of the
// same source, target and date, if one existed
type Difference struct {
	New domain.RawRecord
	Old *domain.RawRecord
}

// DiffResult is the outcome of comparing two snapshots of one table
type DiffResult struct {
	Table       string
	Records     []domain.RawRecord // Full new record set, malformed records excluded
	Differences []Difference
	Removed     []domain.RawRecord // Previous records absent from the new set
	Earliest    time.Time          // Month start of the earliest change; zero when nothing changed
	Skipped     int
}

// HasChanges reports whether any record was added, changed or removed
func (r DiffResult) HasChanges() bool {
	return len(r.Differences) > 0 || len(r.Removed) > 0
}

// Differ compares previous and newly fetched snapshots.
// Malformed records are skipped with a warning; a diff never fails as a whole.
type Differ struct {
	Key         KeyFunc
	RequirePool bool
	hash        func(string) uint64
	log         zerolog.Logger
}

// NewDiffer creates a Differ. key defaults to DefaultKey when nil.
func NewDiffer(key KeyFunc, requirePool bool, log zerolog.Logger) *Differ {
	if key == nil {
		key = DefaultKey
	}
	return &Differ{
		Key:         key,
		RequirePool: requirePool,
		hash:        xxh3.HashString,
		log:         log.With().Str("component", "changecursor").Logger(),
	}
}

type projectionKey struct {
	source string
	target string
	date   string
}

// keySet buckets comparison keys by hash. Membership compares the full key,
// so colliding hashes never mask a change.
type keySet struct {
	hash    func(string) uint64
	buckets map[uint64][]domain.ComparisonKey
}

func newKeySet(hash func(string) uint64, size int) *keySet {
	return &keySet{hash: hash, buckets: make(map[uint64][]domain.ComparisonKey, size)}
}

func (s *keySet) add(k domain.ComparisonKey) {
	h := s.hash(k.String())
	if !slices.Contains(s.buckets[h], k) {
		s.buckets[h] = append(s.buckets[h], k)
	}
}

func (s *keySet) contains(k domain.ComparisonKey) bool {
	return slices.Contains(s.buckets[s.hash(k.String())], k)
}

// Diff compares previous against next for one table.
// Logic:
//  1. Build the set of comparison keys of previous
//  2. Every next record whose key is absent is a difference; Earliest is lowered to its month
//  3. Every previous key absent from next is a retroactive removal; Earliest is lowered to its month
func (d *Differ) Diff(table string, previous, next []domain.RawRecord) DiffResult {
	result := DiffResult{Table: table}

	prevKeys := newKeySet(d.hash, len(previous))
	projections := make(map[projectionKey]int, len(previous))
	validPrev := make([]domain.RawRecord, 0, len(previous))
	for _, rec := range previous {
		if err := rec.Validate(d.RequirePool); err != nil {
			// Stale rows that can no longer be parsed are simply not compared
			d.log.Debug().Err(err).Str("table", table).Msg("ignoring malformed stored record")
			continue
		}
		k := d.Key(rec)
		prevKeys.add(k)
		projections[projectionKey{source: k.Source, target: k.Target, date: k.Date}] = len(validPrev)
		validPrev = append(validPrev, rec)
	}

	nextKeys := newKeySet(d.hash, len(next))
	result.Records = make([]domain.RawRecord, 0, len(next))
	for _, rec := range next {
		if err := rec.Validate(d.RequirePool); err != nil {
			d.log.Warn().Err(err).Str("table", table).Str("source", rec.Source).Str("target", rec.Target).Msg("skipping record")
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, rec)

		k := d.Key(rec)
		nextKeys.add(k)
		if prevKeys.contains(k) {
			continue
		}

		diff := Difference{New: rec}
		if idx, ok := projections[projectionKey{source: k.Source, target: k.Target, date: k.Date}]; ok {
			old := validPrev[idx]
			diff.Old = &old
		}
		result.Differences = append(result.Differences, diff)
		result.Earliest = earliest(result.Earliest, rec.Date)
	}

	for _, rec := range validPrev {
		if nextKeys.contains(d.Key(rec)) {
			continue
		}
		result.Removed = append(result.Removed, rec)
		result.Earliest = earliest(result.Earliest, rec.Date)
	}

	d.log.Debug().
		Str("table", table).
		Int("records", len(result.Records)).
		Int("differences", len(result.Differences)).
		Int("removed", len(result.Removed)).
		Int("skipped", result.Skipped).
		Msg("diff complete")

	return result
}

func earliest(current, t time.Time) time.Time {
	m := domain.MonthStart(t)
	if current.IsZero() || m.Before(current) {
		return m
	}
	return current
}
