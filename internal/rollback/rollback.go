// Package rollback turns a session's change log into an inverse CSV that
// bamsync can apply to undo the run. Inverse rows come out in reverse
// chronological order so children are removed before the parents they landed
// in.
package rollback

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/store"
)

// Summary counts what the generator emitted.
type Summary struct {
	DeleteRows  int `json:"delete_rows"`
	UpdateRows  int `json:"update_rows"`
	Annotations int `json:"annotations"`
	SkippedOps  int `json:"skipped_operations"`
}

// Total returns the number of executable inverse rows.
func (s *Summary) Total() int { return s.DeleteRows + s.UpdateRows }

// Generator builds inverse CSVs from the change log.
type Generator struct {
	log store.ChangeLog
}

// NewGenerator returns a generator over the given change log.
func NewGenerator(log store.ChangeLog) *Generator {
	return &Generator{log: log}
}

// inverseRow is one pending output line: either a CSV record or a comment
// annotation for operations that cannot be auto-reversed.
type inverseRow struct {
	comment string
	row     *model.Row
}

// Generate writes the inverse CSV for a session. Only successful mutations
// produce inverse rows: a failed CREATE changed nothing, so there is nothing
// to undo. DELETE entries become '#' annotations carrying the before-state.
func (g *Generator) Generate(ctx context.Context, sessionID string, w io.Writer) (*Summary, error) {
	entries, err := g.log.SessionEntries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading change log for session %s: %w", sessionID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("session %s has no change log entries", sessionID)
	}

	summary := &Summary{}
	var out []inverseRow
	seq := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if !entry.Success {
			summary.SkippedOps++
			continue
		}
		switch entry.Operation {
		case model.OpCreate:
			seq++
			out = append(out, inverseRow{row: invertCreate(entry, seq)})
			summary.DeleteRows++
		case model.OpUpdate:
			seq++
			out = append(out, inverseRow{row: invertUpdate(entry, seq)})
			summary.UpdateRows++
		case model.OpDelete:
			out = append(out, inverseRow{comment: annotateDelete(entry)})
			summary.Annotations++
		default:
			summary.SkippedOps++
		}
	}

	if err := writeCSV(w, out); err != nil {
		return nil, err
	}
	return summary, nil
}

// invertCreate produces the DELETE row undoing a CREATE: target by the
// server-assigned id, with verification fields so a human (or a pre-flight
// check) can confirm the target before it goes.
func invertCreate(entry *store.ChangeLogEntry, seq int) *model.Row {
	row := &model.Row{
		RowID:      fmt.Sprintf("rb-%d", seq),
		ObjectType: entry.ObjectType,
		Action:     model.ActionDelete,
		BAMID:      stateID(entry.AfterState, entry.ResourceID),
		Attrs:      make(map[string]string),
	}
	if name := stringValue(entry.AfterState["name"]); name != "" {
		row.Attrs["verify_name"] = name
	}
	if addr := stringValue(entry.AfterState["address"]); addr != "" {
		row.Attrs["verify_address"] = addr
	}
	return row
}

// invertUpdate produces the UPDATE row restoring exactly the fields the
// original update touched. id and type identify the record and are never
// restored as attributes.
func invertUpdate(entry *store.ChangeLogEntry, seq int) *model.Row {
	row := &model.Row{
		RowID:      fmt.Sprintf("rb-%d", seq),
		ObjectType: entry.ObjectType,
		Action:     model.ActionUpdate,
		BAMID:      stateID(entry.BeforeState, entry.ResourceID),
		Attrs:      make(map[string]string),
	}
	for field, old := range entry.BeforeState {
		if field == "id" || field == "type" {
			continue
		}
		row.Attrs[field] = stringValue(old)
	}
	return row
}

// annotateDelete records a deletion that is not auto-reversed. The comment
// carries the full before-state so a manual recreation has everything it
// needs.
func annotateDelete(entry *store.ChangeLogEntry) string {
	before, err := json.Marshal(entry.BeforeState)
	if err != nil || entry.BeforeState == nil {
		before = []byte("{}")
	}
	return fmt.Sprintf("# row %s: DELETE of %s %d is not auto-reversed; before_state: %s",
		entry.RowID, entry.ObjectType, entry.ResourceID, before)
}

// writeCSV emits a header-mode CSV: fixed identity columns, then the sorted
// union of restored attribute names. Comment annotations interleave with the
// rows they precede chronologically.
func writeCSV(w io.Writer, rows []inverseRow) error {
	attrCols := attrColumns(rows)
	header := append([]string{model.ColRowID, model.ColObjectType, model.ColAction, "id"}, attrCols...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if r.comment != "" {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, r.comment); err != nil {
				return err
			}
			continue
		}
		record := []string{
			r.row.RowID,
			string(r.row.ObjectType),
			string(r.row.Action),
			strconv.FormatInt(r.row.BAMID, 10),
		}
		for _, col := range attrCols {
			record = append(record, r.row.Attrs[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// attrColumns is the sorted union of attribute names across all inverse rows.
func attrColumns(rows []inverseRow) []string {
	set := make(map[string]bool)
	for _, r := range rows {
		if r.row == nil {
			continue
		}
		for k := range r.row.Attrs {
			set[k] = true
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// stateID extracts the id from a persisted state map, falling back to the
// entry's resource id. JSON round-trips turn integers into float64.
func stateID(state map[string]any, fallback int64) int64 {
	switch v := state["id"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return fallback
}

// stringValue renders a persisted scalar as a CSV cell.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
