package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/store"
)

// SaveCheckpoint appends one checkpoint row.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *store.Checkpoint) error {
	metadata := cp.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, batch_id, operation_index, completed_operations, total_operations, status, input_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.SessionID, cp.BatchID, cp.OpIndex, cp.Completed, cp.Total, string(cp.Status), cp.InputHash, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	if cp.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get checkpoint id: %w", err)
	}
	return nil
}

const checkpointColumns = `id, session_id, timestamp, batch_id, operation_index, completed_operations, total_operations, status, input_hash, metadata`

// LatestCheckpoint returns the newest checkpoint for a session.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID string) (*store.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM checkpoints
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, sessionID)
	return scanCheckpoint(row)
}

// FindResumableSession returns the most recent in_progress checkpoint with a
// matching input hash. Only the newest row per session counts: a session
// whose latest checkpoint is terminal is not resumable.
func (s *Store) FindResumableSession(ctx context.Context, inputHash string) (*store.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM checkpoints
		WHERE id IN (SELECT MAX(id) FROM checkpoints GROUP BY session_id)
		  AND status = 'in_progress'
		  AND input_hash = ?
		ORDER BY id DESC
		LIMIT 1
	`, inputHash)
	return scanCheckpoint(row)
}

// MarkSessionCompleted finalizes a session and clears its created resources.
func (s *Store) MarkSessionCompleted(ctx context.Context, sessionID string) error {
	if err := s.markSession(ctx, sessionID, store.SessionCompleted, ""); err != nil {
		return err
	}
	return s.ClearCreatedResources(ctx, sessionID)
}

// MarkSessionFailed records a terminal failed checkpoint carrying the error.
// Created resources are kept so the session can still be resumed or audited.
func (s *Store) MarkSessionFailed(ctx context.Context, sessionID string, errMsg string) error {
	return s.markSession(ctx, sessionID, store.SessionFailed, errMsg)
}

func (s *Store) markSession(ctx context.Context, sessionID string, status store.SessionStatus, errMsg string) error {
	last, err := s.LatestCheckpoint(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		last = &store.Checkpoint{SessionID: sessionID}
	} else if err != nil {
		return err
	}
	metadata := "{}"
	if errMsg != "" {
		metadata = fmt.Sprintf(`{"error":%q}`, errMsg)
	}
	return s.SaveCheckpoint(ctx, &store.Checkpoint{
		SessionID: sessionID,
		BatchID:   last.BatchID,
		OpIndex:   last.OpIndex,
		Completed: last.Completed,
		Total:     last.Total,
		Status:    status,
		InputHash: last.InputHash,
		Metadata:  metadata,
	})
}

// SaveCreatedResource upserts one created-resource row. The upsert keeps
// retried CREATEs idempotent.
func (s *Store) SaveCreatedResource(ctx context.Context, res *store.CreatedResource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO created_resources (session_id, resource_type, resource_key, bam_id)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE bam_id = VALUES(bam_id)
	`, res.SessionID, string(res.Class), res.Key, res.BAMID)
	if err != nil {
		return fmt.Errorf("failed to save created resource: %w", err)
	}
	return nil
}

// LoadCreatedResources returns the session's created ids as the nested map
// the executor is primed with on resume.
func (s *Store) LoadCreatedResources(ctx context.Context, sessionID string) (store.CreatedResources, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_type, resource_key, bam_id
		FROM created_resources
		WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query created resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	created := make(store.CreatedResources)
	for rows.Next() {
		var class, key string
		var id int64
		if err := rows.Scan(&class, &key, &id); err != nil {
			return nil, fmt.Errorf("failed to scan created resource: %w", err)
		}
		created.Put(model.ResourceClass(class), key, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating created resources: %w", err)
	}
	return created, nil
}

// ClearCreatedResources deletes a session's created-resource rows.
func (s *Store) ClearCreatedResources(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM created_resources WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear created resources: %w", err)
	}
	return nil
}

// CleanupOldCheckpoints deletes checkpoints of terminal sessions older than
// the retention window. The inner derived table works around MySQL's
// restriction on selecting from the delete target (error 1093).
func (s *Store) CleanupOldCheckpoints(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE timestamp < DATE_SUB(NOW(), INTERVAL ? SECOND)
		  AND session_id IN (
			SELECT session_id FROM (
				SELECT session_id FROM checkpoints
				GROUP BY session_id
				HAVING MAX(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END) = 0
			) AS terminal_sessions
		  )
	`, int64(retention.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup checkpoints: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted checkpoints: %w", err)
	}
	return deleted, nil
}

// ListSessions returns the latest checkpoint of every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*store.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM checkpoints
		WHERE id IN (SELECT MAX(id) FROM checkpoints GROUP BY session_id)
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*store.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpointRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanCheckpoint(row *sql.Row) (*store.Checkpoint, error) {
	cp := &store.Checkpoint{}
	var status string
	var metadata sql.NullString
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.Timestamp, &cp.BatchID, &cp.OpIndex,
		&cp.Completed, &cp.Total, &status, &cp.InputHash, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	cp.Status = store.SessionStatus(status)
	cp.Metadata = metadata.String
	return cp, nil
}

func scanCheckpointRow(rows *sql.Rows) (*store.Checkpoint, error) {
	cp := &store.Checkpoint{}
	var status string
	var metadata sql.NullString
	err := rows.Scan(&cp.ID, &cp.SessionID, &cp.Timestamp, &cp.BatchID, &cp.OpIndex,
		&cp.Completed, &cp.Total, &status, &cp.InputHash, &metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	cp.Status = store.SessionStatus(status)
	cp.Metadata = metadata.String
	return cp, nil
}
