package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "occurred_at", "actor_id", "action", "entity", "entity_id", "old_value", "new_value"}

// WriteCSV renders timeline rows as CSV.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		actor := ""
		if row.ActorID > 0 {
			actor = strconv.FormatInt(row.ActorID, 10)
		}
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.At.UTC().Format(time.RFC3339),
			actor,
			row.Action,
			row.Entity,
			row.EntityID,
			string(row.OldValue),
			string(row.NewValue),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
