package changecursor

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

type auditRecord struct {
	Table     string `json:"table"`
	Pool      string `json:"pool"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Date      string `json:"date"`
	NewValue  string `json:"new_value,omitempty"`
	OldValue  string `json:"old_value,omitempty"`
	Operation string `json:"op"`
}

// WriteAudit writes the differences and removals of a diff as JSON lines
func WriteAudit(w io.Writer, result DiffResult) error {
	enc := json.NewEncoder(w)
	for _, d := range result.Differences {
		rec := auditRecord{
			Table:     result.Table,
			Pool:      d.New.Pool,
			Source:    d.New.Source,
			Target:    d.New.Target,
			Date:      d.New.Date.Format("2006-01-02"),
			NewValue:  d.New.Value.String(),
			Operation: "added",
		}
		if d.Old != nil {
			rec.OldValue = d.Old.Value.String()
			rec.Operation = "changed"
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode audit record: %w", err)
		}
	}
	for _, r := range result.Removed {
		rec := auditRecord{
			Table:     result.Table,
			Pool:      r.Pool,
			Source:    r.Source,
			Target:    r.Target,
			Date:      r.Date.Format("2006-01-02"),
			OldValue:  r.Value.String(),
			Operation: "removed",
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode audit record: %w", err)
		}
	}
	return nil
}
