// Package store defines the persistence contracts for reconciliation
// sessions: an append-only change log and a checkpoint store that together
// make interrupted runs resumable and completed runs auditable. Backends live
// in the sqlite and mysql sub-packages and share these schemas.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ipamtools/bamsync/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SessionStatus is the lifecycle state of a checkpointed session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Checkpoint is one progress marker, saved after each executed batch.
type Checkpoint struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Timestamp time.Time     `json:"timestamp"`
	BatchID   int           `json:"batch_id"`
	OpIndex   int           `json:"operation_index"`
	Completed int           `json:"completed_operations"`
	Total     int           `json:"total_operations"`
	Status    SessionStatus `json:"status"`
	InputHash string        `json:"input_hash"`
	Metadata  string        `json:"metadata,omitempty"`
}

// CreatedResource records one server-assigned id produced by a CREATE, keyed
// by natural key so deferred references resolve across resume boundaries.
type CreatedResource struct {
	SessionID string              `json:"session_id"`
	Class     model.ResourceClass `json:"resource_type"`
	Key       string              `json:"resource_key"`
	BAMID     int64               `json:"bam_id"`
	CreatedAt time.Time           `json:"created_at"`
}

// ChangeLogEntry is one append-only audit record of an executed operation.
// BeforeState and AfterState are JSON-serialized property maps; the rollback
// generator needs both to build inverse rows.
type ChangeLogEntry struct {
	ID          int64               `json:"id"`
	SessionID   string              `json:"session_id"`
	Timestamp   time.Time           `json:"timestamp"`
	RowID       string              `json:"row_id"`
	ObjectType  model.ObjectType    `json:"object_type"`
	Operation   model.OperationType `json:"operation_type"`
	Success     bool                `json:"success"`
	ResourceID  int64               `json:"resource_id,omitempty"`
	Error       string              `json:"error_message,omitempty"`
	BeforeState map[string]any      `json:"before_state,omitempty"`
	AfterState  map[string]any      `json:"after_state,omitempty"`
}

// ChangeLog is the append-only operation audit trail.
type ChangeLog interface {
	// RecordOperation appends one entry.
	RecordOperation(ctx context.Context, entry *ChangeLogEntry) error
	// SessionEntries returns a session's entries in insertion order.
	SessionEntries(ctx context.Context, sessionID string) ([]*ChangeLogEntry, error)
	Close() error
}

// CreatedResources is the nested {resource class -> {key -> id}} map the
// executor is primed with on resume.
type CreatedResources map[model.ResourceClass]map[string]int64

// Get looks up a created id. Zero means absent.
func (c CreatedResources) Get(class model.ResourceClass, key string) int64 {
	if m, ok := c[class]; ok {
		return m[key]
	}
	return 0
}

// Put records a created id, allocating the inner map on first use.
func (c CreatedResources) Put(class model.ResourceClass, key string, id int64) {
	m, ok := c[class]
	if !ok {
		m = make(map[string]int64)
		c[class] = m
	}
	m[key] = id
}

// CheckpointStore persists session progress and created resources.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	// LatestCheckpoint returns the newest checkpoint for a session, or
	// ErrNotFound.
	LatestCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error)
	// FindResumableSession returns the most recent in_progress checkpoint
	// whose input hash matches, or ErrNotFound.
	FindResumableSession(ctx context.Context, inputHash string) (*Checkpoint, error)
	// MarkSessionCompleted finalizes a session and clears its created
	// resources; they are only needed while a resume is still possible.
	MarkSessionCompleted(ctx context.Context, sessionID string) error
	MarkSessionFailed(ctx context.Context, sessionID string, errMsg string) error

	SaveCreatedResource(ctx context.Context, res *CreatedResource) error
	LoadCreatedResources(ctx context.Context, sessionID string) (CreatedResources, error)
	ClearCreatedResources(ctx context.Context, sessionID string) error

	// CleanupOldCheckpoints deletes terminal (completed/failed) checkpoints
	// older than the retention window. In-progress rows are never touched.
	// Returns the number of deleted checkpoint rows.
	CleanupOldCheckpoints(ctx context.Context, retention time.Duration) (int64, error)
	// ListSessions returns the latest checkpoint per session, newest first.
	ListSessions(ctx context.Context) ([]*Checkpoint, error)
	Close() error
}
