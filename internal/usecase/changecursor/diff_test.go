package changecursor

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func position(pool, source, target string, value int64, when time.Time) domain.RawRecord {
	return domain.RawRecord{
		Table:  domain.TablePositions,
		Kind:   domain.RecordKindPosition,
		Pool:   pool,
		Source: source,
		Target: target,
		Value:  decimal.NewFromInt(value),
		Date:   when,
	}
}

func TestDiff_NewRecord(t *testing.T) {
	differ := NewDiffer(nil, true, zerolog.Nop())

	a := position("Pool A", "Investor 1", "Fund 1", 100, date(2024, 1, 31))
	b := position("Pool A", "Investor 1", "Fund 2", 50, date(2024, 3, 31))

	result := differ.Diff(domain.TablePositions, []domain.RawRecord{a}, []domain.RawRecord{a, b})

	require.Len(t, result.Differences, 1)
	assert.Equal(t, "Fund 2", result.Differences[0].New.Target)
	assert.Nil(t, result.Differences[0].Old)
	assert.Empty(t, result.Removed)
	assert.Equal(t, date(2024, 3, 1), result.Earliest)
	assert.Len(t, result.Records, 2)
}

func TestDiff_HashCollisionStillDetectsChanges(t *testing.T) {
	differ := NewDiffer(nil, true, zerolog.Nop())
	differ.hash = func(string) uint64 { return 7 }

	a := position("Pool A", "Investor 1", "Fund 1", 100, date(2024, 1, 31))
	b := position("Pool A", "Investor 1", "Fund 2", 50, date(2024, 3, 31))
	c := position("Pool A", "Investor 2", "Fund 1", 10, date(2024, 2, 29))

	result := differ.Diff(domain.TablePositions, []domain.RawRecord{a, c}, []domain.RawRecord{a, b})

	require.Len(t, result.Differences, 1)
	assert.Equal(t, "Fund 2", result.Differences[0].New.Target)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, "Investor 2", result.Removed[0].Source)
	assert.Equal(t, date(2024, 2, 1), result.Earliest)
}

func TestDiff_ChangedValueKeepsOldProjection(t *testing.T) {
	differ := NewDiffer(nil, true, zerolog.Nop())

	before := position("Pool A", "Investor 1", "Fund 1", 100, date(2024, 1, 31))
	after := position("Pool A", "Investor 1", "Fund 1", 120, date(2024, 1, 31))

	result := differ.Diff(domain.TablePositions, []domain.RawRecord{before}, []domain.RawRecord{after})

	require.Len(t, result.Differences, 1)
	require.NotNil(t, result.Differences[0].Old)
	assert.True(t, result.Differences[0].Old.Value.Equal(decimal.NewFromInt(100)))
	// The old value no longer exists in the new set
	require.Len(t, result.Removed, 1)
	assert.Equal(t, date(2024, 1, 1), result.Earliest)
}

func TestDiff_RetroactiveRemoval(t *testing.T) {
	differ := NewDiffer(nil, true, zerolog.Nop())

	old := position("Pool B", "Investor 2", "Fund 9", 10, date(2022, 7, 31))
	kept := position("Pool B", "Investor 2", "Fund 3", 10, date(2024, 7, 31))

	result := differ.Diff(domain.TablePositions, []domain.RawRecord{old, kept}, []domain.RawRecord{kept})

	assert.Empty(t, result.Differences)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, date(2022, 7, 1), result.Earliest)
	assert.True(t, result.HasChanges())
}

func TestDiff_RoundingIgnoresNoise(t *testing.T) {
	differ := NewDiffer(nil, true, zerolog.Nop())

	a := position("Pool A", "Investor 1", "Fund 1", 0, date(2024, 1, 31))
	a.Value = decimal.RequireFromString("100.001")
	b := a
	b.Value = decimal.RequireFromString("100.004")

	result := differ.Diff(domain.TablePositions, []domain.RawRecord{a}, []domain.RawRecord{b})

	assert.False(t, result.HasChanges())
	assert.True(t, result.Earliest.IsZero())
}

func TestDiff_MalformedRecordSkipped(t *testing.T) {
	var buf bytes.Buffer
	differ := NewDiffer(nil, true, zerolog.New(&buf))

	good := position("Pool A", "Investor 1", "Fund 1", 100, date(2024, 1, 31))
	noPool := position("", "Investor 1", "Fund 2", 100, date(2024, 1, 31))
	noDate := position("Pool A", "Investor 1", "Fund 3", 100, time.Time{})

	result := differ.Diff(domain.TablePositions, nil, []domain.RawRecord{good, noPool, noDate})

	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, result.Records, 1)
	assert.Len(t, result.Differences, 1)
	assert.Contains(t, buf.String(), "skipping record")
}

func TestTracker_PerPoolCursor(t *testing.T) {
	now := date(2024, 6, 15)
	tracker := NewTracker(nil, now, true, zerolog.Nop())
	differ := NewDiffer(nil, true, zerolog.Nop())

	a := position("Pool A", "Investor 1", "Fund 1", 100, date(2024, 1, 31))
	b := position("Pool A", "Investor 1", "Fund 2", 100, date(2024, 4, 10))
	c := position("Pool C", "Investor 3", "Fund 5", 100, date(2024, 2, 29))

	tracker.Apply(differ.Diff(domain.TablePositions, []domain.RawRecord{a, c}, []domain.RawRecord{a, b}))

	cursor := tracker.Cursor()
	assert.Equal(t, date(2024, 4, 1), cursor.Since("Pool A", now))
	assert.Equal(t, date(2024, 2, 1), cursor.Since("Pool C", now))
	assert.Equal(t, date(2024, 6, 1), cursor.Since("Pool Z", now), "pool without differences keeps nothing pending")
	assert.Equal(t, date(2024, 2, 1), cursor.Global)
}

func TestTracker_StoredCursorNeverRegresses(t *testing.T) {
	now := date(2024, 6, 15)
	stored := domain.NewChangeCursor(now, true)
	stored.Lower("Pool A", date(2023, 5, 5))

	tracker := NewTracker(stored, now, true, zerolog.Nop())
	differ := NewDiffer(nil, true, zerolog.Nop())
	b := position("Pool A", "Investor 1", "Fund 2", 100, date(2024, 4, 10))
	tracker.Apply(differ.Diff(domain.TablePositions, nil, []domain.RawRecord{b}))

	assert.Equal(t, date(2023, 5, 1), tracker.Cursor().Since("Pool A", now))
	assert.Equal(t, date(2023, 5, 1), stored.Pools["Pool A"], "stored cursor is not mutated")
}

func TestPartition(t *testing.T) {
	months := domain.GenerateMonths(date(2024, 1, 1), date(2024, 3, 1))

	pos := position("Pool A", "Investor 1", "Fund 1", 100, date(2024, 1, 31))
	tx := domain.RawRecord{
		Table: domain.TableTransactions, Kind: domain.RecordKindTransaction,
		Pool: "Pool A", Source: "Investor 1", Target: "Fund 1",
		Value: decimal.NewFromInt(10), Date: date(2024, 2, 1),
	}
	outOfRange := position("Pool B", "Investor 2", "Fund 2", 1, date(2025, 1, 31))

	cache := Partition(map[string][]domain.RawRecord{
		domain.TablePositions:    {pos, outOfRange},
		domain.TableTransactions: {tx},
	}, months, zerolog.Nop())

	assert.Equal(t, []string{"Pool A"}, cache.Pools())
	slice := cache.Slice("Pool A")
	assert.Len(t, slice.Records(domain.TablePositions, date(2024, 1, 1)), 1)
	assert.Len(t, slice.Records(domain.TableTransactions, date(2024, 2, 1)), 1)
	assert.Empty(t, slice.Records(domain.TableTransactions, date(2024, 1, 1)))
}

func TestWriteAudit(t *testing.T) {
	differ := NewDiffer(nil, true, zerolog.Nop())
	before := position("Pool A", "Investor 1", "Fund 1", 100, date(2024, 1, 31))
	after := position("Pool A", "Investor 1", "Fund 1", 120, date(2024, 1, 31))

	var buf bytes.Buffer
	require.NoError(t, WriteAudit(&buf, differ.Diff(domain.TablePositions, []domain.RawRecord{before}, []domain.RawRecord{after})))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"op":"changed"`)
	assert.Contains(t, lines[0], `"old_value":"100"`)
	assert.Contains(t, lines[1], `"op":"removed"`)
}
