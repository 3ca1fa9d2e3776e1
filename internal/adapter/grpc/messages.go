package grpc

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/wealthflow-performance/internal/domain"
	"github.com/simaogato/wealthflow-performance/internal/usecase/calculation"
	"github.com/simaogato/wealthflow-performance/internal/usecase/compounding"
)

// Message fields.
//
//	RunCalculation  request:  per_pool_cursor, force, refresh_metadata (bool), tables ([]string)
//	                stream:   {"progress": float} ticks, then {"summary": {...}}
//	CancelRun       request:  run_id (string, optional)
//	BuildTable      request:  levels, pools, selected_funds ([]string), from, period_end ("YYYY-MM"),
//	                          consolidate, sort_by_nav, force_refresh (bool), hidden ({level: []string})
//	LatestRun       request:  empty
const monthLayout = "2006-01"

func boolField(s *structpb.Struct, name string) bool {
	v, ok := s.GetFields()[name]
	if !ok {
		return false
	}
	return v.GetBoolValue()
}

func stringField(s *structpb.Struct, name string) string {
	v, ok := s.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func listValues(v *structpb.Value) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("invalid list value")
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		str, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("invalid list item: expected string")
		}
		out = append(out, str.StringValue)
	}
	return out, nil
}

func stringList(s *structpb.Struct, name string) ([]string, error) {
	out, err := listValues(s.GetFields()[name])
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return out, nil
}

// monthField parses "YYYY-MM" or "YYYY-MM-DD"; empty yields the zero time
func monthField(s *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(s, name)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{monthLayout, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return domain.MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s format: %q", name, raw)
}

func toRunRequest(s *structpb.Struct) (calculation.RunRequest, error) {
	tables, err := stringList(s, "tables")
	if err != nil {
		return calculation.RunRequest{}, err
	}
	return calculation.RunRequest{
		PerPoolCursor:   boolField(s, "per_pool_cursor"),
		Force:           boolField(s, "force"),
		RefreshMetadata: boolField(s, "refresh_metadata"),
		Tables:          tables,
	}, nil
}

func toTableRequest(s *structpb.Struct) (calculation.TableRequest, error) {
	var (
		req calculation.TableRequest
		err error
	)
	if req.Levels, err = stringList(s, "levels"); err != nil {
		return req, err
	}
	if req.Pools, err = stringList(s, "pools"); err != nil {
		return req, err
	}
	if req.SelectedFunds, err = stringList(s, "selected_funds"); err != nil {
		return req, err
	}
	if req.From, err = monthField(s, "from"); err != nil {
		return req, err
	}
	if req.PeriodEnd, err = monthField(s, "period_end"); err != nil {
		return req, err
	}
	req.Consolidate = boolField(s, "consolidate")
	req.SortByNAV = boolField(s, "sort_by_nav")
	req.ForceRefresh = boolField(s, "force_refresh")

	if hidden := s.GetFields()["hidden"].GetStructValue(); hidden != nil {
		req.Hidden = make(map[string][]string, len(hidden.GetFields()))
		for level, v := range hidden.GetFields() {
			values, err := listValues(v)
			if err != nil {
				return req, fmt.Errorf("invalid hidden.%s: %w", level, err)
			}
			req.Hidden[level] = values
		}
	}
	return req, nil
}

func progressMessage(percent float64) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"progress": percent})
}

func summaryMessage(sum *calculation.RunSummary) (*structpb.Struct, error) {
	changes := make(map[string]any, len(sum.Changes))
	for table, n := range sum.Changes {
		changes[table] = n
	}
	summary := map[string]any{
		"run_id":     sum.RunID.String(),
		"state":      string(sum.State),
		"pools":      sum.Pools,
		"months":     sum.Months,
		"computed":   sum.Computed,
		"rows":       sum.Rows,
		"changes":    changes,
		"skipped":    sum.Skipped,
		"started_at": sum.StartedAt.Format(time.RFC3339),
		"elapsed_ms": sum.Elapsed.Milliseconds(),
	}
	if !sum.Cursor.IsZero() {
		summary["cursor"] = sum.Cursor.Format(monthLayout)
	}
	return structpb.NewStruct(map[string]any{"summary": summary})
}

func runLogMessage(entry *domain.RunLog) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"run_id":      entry.ID.String(),
		"state":       string(entry.State),
		"started_at":  entry.StartedAt.Format(time.RFC3339),
		"finished_at": entry.FinishedAt.Format(time.RFC3339),
		"pools":       entry.Pools,
		"rows":        entry.Rows,
		"message":     entry.Message,
	})
}

func tableMessage(table *calculation.Table) (*structpb.Struct, error) {
	rows := make([]any, 0, len(table.Rows))
	for _, r := range table.Rows {
		row := map[string]any{
			"key":        r.Key,
			"name":       r.Name,
			"level":      r.Level,
			"data_type":  r.DataType,
			"depth":      r.Depth,
			"benchmark":  r.Benchmark,
			"has_values": r.HasValues,
			"metrics":    metricsValue(r.Metrics),
		}
		if r.HasValues {
			// Decimals travel as strings to keep precision
			row["nav"] = r.Entry.NAV.String()
			row["gain"] = r.Entry.Gain.String()
			row["denominator"] = r.Entry.Denominator.String()
			row["return"] = r.Entry.Return.StringFixed(4)
			row["ownership"] = r.Entry.Ownership.String()
			row["commitment"] = r.Entry.Commitment.String()
			row["unfunded"] = r.Entry.Unfunded.String()
		}
		rows = append(rows, row)
	}

	periodEnd := ""
	if !table.PeriodEnd.IsZero() {
		periodEnd = table.PeriodEnd.Format(monthLayout)
	}
	return structpb.NewStruct(map[string]any{
		"period_end": periodEnd,
		"rows":       rows,
	})
}

func metricsValue(m compounding.Metrics) map[string]any {
	out := map[string]any{
		"mtd": optional(m.MTD),
		"qtd": optional(m.QTD),
		"ytd": optional(m.YTD),
		"itd": optional(m.ITD),
	}
	for years, v := range m.Annualized {
		out[strconv.Itoa(years)+"y"] = v
	}
	return out
}

// optional maps a missing metric to null
func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
