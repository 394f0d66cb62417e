// Package diff reconciles desired CSV rows against current server state,
// producing the operation classification (CREATE, UPDATE, DELETE, NOOP,
// ORPHAN) and field-level changes under the configured policy.
package diff

import (
	"errors"
	"fmt"

	"github.com/ipamtools/bamsync/internal/model"
)

// Sentinel errors surfaced by the diff engine.
var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrInvalidUpdateMode = errors.New("invalid update mode")
)

// UpdateMode controls how mismatches between a row's action and the
// resource's current existence are treated.
type UpdateMode string

const (
	// ModeCreateOnly never updates: creates that collide become NOOPs.
	ModeCreateOnly UpdateMode = "create_only"
	// ModeStrict refuses to create from an update row; the mismatch is
	// flagged as a conflict.
	ModeStrict UpdateMode = "strict"
	// ModeUpsert converges regardless of action: missing targets are
	// created, colliding creates become updates.
	ModeUpsert UpdateMode = "upsert"
)

// IsValid reports whether the mode is one of the recognized policies.
func (m UpdateMode) IsValid() bool {
	switch m {
	case ModeCreateOnly, ModeStrict, ModeUpsert:
		return true
	}
	return false
}

// Options is the policy surface of the engine.
type Options struct {
	UpdateMode UpdateMode
	// SafeMode downgrades every DELETE and ORPHAN to a NOOP.
	SafeMode bool
	// OrphanDetection enables the orphan scan; when false DetectOrphans
	// returns nothing.
	OrphanDetection bool
}

// Engine computes DiffResults for (row, current state) pairs.
type Engine struct {
	opts Options
}

// NewEngine validates the options and returns a diff engine. An empty
// UpdateMode defaults to upsert.
func NewEngine(opts Options) (*Engine, error) {
	if opts.UpdateMode == "" {
		opts.UpdateMode = ModeUpsert
	}
	if !opts.UpdateMode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUpdateMode, opts.UpdateMode)
	}
	return &Engine{opts: opts}, nil
}

// Options returns the engine's effective policy.
func (e *Engine) Options() Options { return e.opts }

// Diff reconciles one desired row against the resource's current state.
// current is nil when the resource does not exist on the server.
func (e *Engine) Diff(row *model.Row, current *model.ResourceState) (model.DiffResult, error) {
	switch row.Action {
	case model.ActionCreate:
		return e.diffCreate(row, current), nil
	case model.ActionUpdate:
		return e.diffUpdate(row, current), nil
	case model.ActionDelete:
		return e.diffDelete(row, current), nil
	default:
		return model.DiffResult{}, fmt.Errorf("%w: %q (row %s)", ErrUnknownAction, row.Action, row.RowID)
	}
}

func (e *Engine) diffCreate(row *model.Row, current *model.ResourceState) model.DiffResult {
	if current == nil {
		return model.DiffResult{Operation: model.OpCreate}
	}
	if e.opts.UpdateMode == ModeCreateOnly {
		res := model.DiffResult{Operation: model.OpNoop, ResourceID: current.ID}
		res.SetMeta("reason", "already exists")
		return res
	}
	return e.converge(row, current)
}

func (e *Engine) diffUpdate(row *model.Row, current *model.ResourceState) model.DiffResult {
	if current == nil {
		if e.opts.UpdateMode == ModeUpsert {
			res := model.DiffResult{Operation: model.OpCreate}
			res.SetMeta("reason", "upsert")
			return res
		}
		return model.DiffResult{
			Operation:        model.OpNoop,
			ConflictDetected: true,
			ConflictReason:   fmt.Sprintf("row %s requests update but resource does not exist", row.RowID),
		}
	}
	return e.converge(row, current)
}

func (e *Engine) diffDelete(row *model.Row, current *model.ResourceState) model.DiffResult {
	if current == nil {
		res := model.DiffResult{Operation: model.OpNoop}
		res.SetMeta("reason", "already gone")
		return res
	}
	if e.opts.SafeMode {
		res := model.DiffResult{Operation: model.OpNoop, ResourceID: current.ID}
		res.SetMeta("safe_mode_prevented_delete", true)
		return res
	}
	return model.DiffResult{Operation: model.OpDelete, ResourceID: current.ID}
}

// converge compares every desired field against current state and emits an
// UPDATE when anything differs, a NOOP otherwise.
func (e *Engine) converge(row *model.Row, current *model.ResourceState) model.DiffResult {
	changes := ComputeChanges(row, current)
	if len(changes) == 0 {
		return model.DiffResult{Operation: model.OpNoop, ResourceID: current.ID}
	}
	return model.DiffResult{
		Operation:  model.OpUpdate,
		ResourceID: current.ID,
		Changes:    changes,
	}
}

// ComputeChanges returns the normalized field-level differences between a
// desired row and current state. Reserved scaffolding columns never
// participate; absent desired cells are not compared at all.
func ComputeChanges(row *model.Row, current *model.ResourceState) map[string]model.FieldChange {
	changes := make(map[string]model.FieldChange)
	for field, raw := range row.Attrs {
		if model.IsReservedField(field) {
			continue
		}
		desired := Normalize(raw)
		got := Normalize(current.Property(field))
		if !Equal(desired, got) {
			changes[field] = model.FieldChange{Field: field, Old: got, New: desired}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}
