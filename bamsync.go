// Package bamsync provides a minimal public API for driving reconciliation
// sessions from Go code.
//
// Most automation should run the bamsync CLI. This package exports only the
// essential types and functions for tooling that wants to parse desired-state
// CSV, build execution plans, or inspect session state programmatically.
package bamsync

import (
	"context"
	"io"
	"strings"

	"github.com/ipamtools/bamsync/internal/csvio"
	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/graph"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/plan"
	"github.com/ipamtools/bamsync/internal/store"
	"github.com/ipamtools/bamsync/internal/store/mysql"
	"github.com/ipamtools/bamsync/internal/store/sqlite"
)

// Core types for working with desired rows and planned operations
type (
	Row            = model.Row
	ParsedRow      = csvio.ParsedRow
	Operation      = model.Operation
	OperationType  = model.OperationType
	Plan           = plan.Plan
	Batch          = plan.Batch
	Graph          = graph.Graph
	Stats          = engine.Stats
	Result         = engine.Result
	Checkpoint     = store.Checkpoint
	ChangeLogEntry = store.ChangeLogEntry
	SessionStatus  = store.SessionStatus
)

// Operation type constants
const (
	OpCreate = model.OpCreate
	OpUpdate = model.OpUpdate
	OpDelete = model.OpDelete
	OpNoop   = model.OpNoop
	OpOrphan = model.OpOrphan
)

// Session status constants
const (
	SessionInProgress = store.SessionInProgress
	SessionCompleted  = store.SessionCompleted
	SessionFailed     = store.SessionFailed
)

// ErrNotFound is returned by store lookups that match nothing.
var ErrNotFound = store.ErrNotFound

// Store combines checkpoint and change-log access. Both backends implement
// it, so session inspection code works against either.
type Store interface {
	store.CheckpointStore
	store.ChangeLog
}

// ReadCSV parses desired-state rows from r. Schema violations are reported
// per row on the returned entries, so one bad record does not hide the rest
// of the file.
func ReadCSV(r io.Reader) ([]ParsedRow, error) {
	return csvio.NewReader(r).ReadAll()
}

// OpenStore opens the session store named by dsn: a mysql:// URL or a SQLite
// file path. The schema is created if missing.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "mysql://") {
		return mysql.New(ctx, dsn)
	}
	return sqlite.New(ctx, dsn)
}

// BuildPlan derives dependencies for the given operations and batches them
// for execution. The graph is returned alongside the plan because executing
// a plan needs it to cascade failures to dependents.
func BuildPlan(ops []*Operation, maxBatchSize int) (*Graph, *Plan, error) {
	g, err := graph.Build(ops)
	if err != nil {
		return nil, nil, err
	}
	planner := plan.NewPlanner(maxBatchSize)
	p, err := planner.Plan(g)
	if err != nil {
		return nil, nil, err
	}
	return g, planner.Optimize(p), nil
}
