package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/store"
)

// RecordOperation appends one change-log entry.
func (s *Store) RecordOperation(ctx context.Context, entry *store.ChangeLogEntry) error {
	before, err := marshalState(entry.BeforeState)
	if err != nil {
		return fmt.Errorf("failed to serialize before_state: %w", err)
	}
	after, err := marshalState(entry.AfterState)
	if err != nil {
		return fmt.Errorf("failed to serialize after_state: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO change_log (session_id, row_id, object_type, operation_type, success, resource_id, error_message, before_state, after_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.SessionID, entry.RowID, string(entry.ObjectType), string(entry.Operation),
		boolToInt(entry.Success), nullableID(entry.ResourceID), nullableString(entry.Error), before, after)
	if err != nil {
		return fmt.Errorf("failed to insert change log entry: %w", err)
	}
	if entry.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get change log entry id: %w", err)
	}
	return nil
}

// SessionEntries returns a session's change-log entries in insertion order.
func (s *Store) SessionEntries(ctx context.Context, sessionID string) ([]*store.ChangeLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp, row_id, object_type, operation_type, success, resource_id, error_message, before_state, after_state
		FROM change_log
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query change log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*store.ChangeLogEntry
	for rows.Next() {
		entry, err := scanChangeLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change log: %w", err)
	}
	return entries, nil
}

func scanChangeLogEntry(rows *sql.Rows) (*store.ChangeLogEntry, error) {
	entry := &store.ChangeLogEntry{}
	var (
		objectType, operation   string
		success                 int
		resourceID              sql.NullInt64
		errMsg, beforeB, afterB sql.NullString
	)
	err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Timestamp, &entry.RowID,
		&objectType, &operation, &success, &resourceID, &errMsg, &beforeB, &afterB)
	if err != nil {
		return nil, fmt.Errorf("failed to scan change log entry: %w", err)
	}
	entry.ObjectType = model.ObjectType(objectType)
	entry.Operation = model.OperationType(operation)
	entry.Success = success != 0
	if resourceID.Valid {
		entry.ResourceID = resourceID.Int64
	}
	if errMsg.Valid {
		entry.Error = errMsg.String
	}
	if entry.BeforeState, err = unmarshalState(beforeB); err != nil {
		return nil, fmt.Errorf("failed to parse before_state: %w", err)
	}
	if entry.AfterState, err = unmarshalState(afterB); err != nil {
		return nil, fmt.Errorf("failed to parse after_state: %w", err)
	}
	return entry, nil
}

func marshalState(state map[string]any) (any, error) {
	if state == nil {
		return nil, nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalState(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(col.String), &state); err != nil {
		return nil, err
	}
	return state, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
