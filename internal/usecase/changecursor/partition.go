package changecursor

import (
	"github.com/rs/zerolog"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// Partition buckets every record by pool, table and the month window its date
// falls into. Positions use the position window, transactions the transaction
// window. Records outside the month range or without a pool are skipped.
func Partition(tables map[string][]domain.RawRecord, months []domain.MonthWindow, log zerolog.Logger) domain.Cache {
	cache := make(domain.Cache)
	skipped := 0

	for table, records := range tables {
		for _, rec := range records {
			if rec.Pool == "" {
				skipped++
				log.Warn().Str("table", table).Str("target", rec.Target).Msg("record without pool not cached")
				continue
			}
			idx := domain.FindMonth(months, rec.Kind, rec.Date)
			if idx < 0 {
				skipped++
				continue
			}
			cache.Add(rec.Pool, table, months[idx].ID, rec)
		}
	}

	log.Debug().Int("pools", len(cache)).Int("skipped", skipped).Msg("cache partitioned")
	return cache
}
