// Package csvio parses desired-state CSV files into typed rows. Inputs come
// in two layouts: header mode, where the first record starts with "row_id"
// and names its columns, and headerless mode using the canonical positional
// layout. Schema violations never abort the parse; they ride along on the
// row so the executor can fail exactly that row.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ipamtools/bamsync/internal/model"
)

// positionalColumns is the canonical headerless layout. Rows may stop early;
// they may not run past the end.
var positionalColumns = []string{
	"row_id", "object_type", "action", "config", "parent", "cidr",
	"name", "address", "mac_address", "state", "view_path", "zone_name",
}

// ParsedRow is one row plus its validation verdict and source position.
type ParsedRow struct {
	Line int
	Row  *model.Row
	Err  error
}

// Reader parses a desired-state CSV stream.
type Reader struct {
	csv *csv.Reader
}

// NewReader wraps an input stream. '#' lines are comments, matching the
// rollback generator's annotation format.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return &Reader{csv: cr}
}

// ReadAll parses every record. The returned error covers only malformed CSV
// or IO; schema violations are per-row.
func (r *Reader) ReadAll() ([]ParsedRow, error) {
	var (
		parsed  []ParsedRow
		headers []string
		line    int
		seen    = make(map[string]int) // row_id → first line
	)

	for {
		record, err := r.csv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed CSV: %w", err)
		}
		line++

		if line == 1 && len(record) > 0 && strings.TrimSpace(record[0]) == model.ColRowID {
			headers = record
			continue
		}
		if isBlank(record) {
			continue
		}

		row, rowErr := buildRow(headers, record)
		if rowErr == nil {
			rowErr = ValidateRow(row)
		}
		if rowErr == nil {
			if firstLine, dup := seen[row.RowID]; dup {
				rowErr = &ValidationError{RowID: row.RowID, Field: "row_id",
					Reason: fmt.Sprintf("duplicate of line %d", firstLine)}
			} else {
				seen[row.RowID] = line
			}
		}
		parsed = append(parsed, ParsedRow{Line: line, Row: row, Err: rowErr})
	}

	if len(parsed) == 0 {
		return nil, fmt.Errorf("input contains no data rows")
	}
	return parsed, nil
}

// buildRow maps a CSV record into a Row. Errors here are row-level, not
// parse-level: the row still comes back for identification.
func buildRow(headers, record []string) (*model.Row, error) {
	cols := headers
	if cols == nil {
		if len(record) > len(positionalColumns) {
			row := &model.Row{}
			if len(record) > 0 {
				row.RowID = strings.TrimSpace(record[0])
			}
			return row, rowErr(row.RowID, "",
				fmt.Sprintf("%d columns exceed the positional layout (%d); use a header row", len(record), len(positionalColumns)))
		}
		cols = positionalColumns
	}

	row := &model.Row{Attrs: make(map[string]string)}
	var firstErr error
	for i, cell := range record {
		if i >= len(cols) {
			break
		}
		name := strings.TrimSpace(cols[i])
		value := strings.TrimSpace(cell)
		if name == "" || value == "" {
			continue
		}
		switch name {
		case model.ColRowID:
			row.RowID = value
		case model.ColObjectType:
			row.ObjectType = model.ObjectType(value)
		case model.ColAction:
			row.Action = model.Action(strings.ToLower(value))
		case model.ColConfig:
			row.Config = value
		case model.ColVersion:
			row.Version = value
		case "id":
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				if firstErr == nil {
					firstErr = rowErr(row.RowID, "id", fmt.Sprintf("not an integer: %q", value))
				}
				continue
			}
			row.BAMID = id
		default:
			row.Attrs[name] = value
		}
	}
	if row.RowID == "" && firstErr == nil {
		firstErr = rowErr("", "row_id", "missing")
	}
	return row, firstErr
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
