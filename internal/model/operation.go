package model

import "time"

// Operation is one planned mutation against the server. Operations are
// created by the factory, wired into the dependency graph, and mutated only
// by the executor's coordinator goroutine.
type Operation struct {
	RowID      string        `json:"row_id"`
	ObjectType ObjectType    `json:"object_type"`
	Type       OperationType `json:"operation_type"`

	// ResourceID targets an existing server resource. Required for UPDATE
	// and DELETE once resolved; zero for CREATE.
	ResourceID int64 `json:"resource_id,omitempty"`

	// Payload is the request body. It may carry _deferred_* markers that are
	// resolved on a working copy immediately before dispatch.
	Payload map[string]any `json:"payload,omitempty"`

	// Deferred mirrors the payload markers as typed references so the
	// resolver matches on a tag instead of scanning for key prefixes.
	Deferred []DeferredRef `json:"deferred,omitempty"`

	// Changes carries the field-level diff for UPDATE operations and the
	// before/after context persisted to the change log.
	Changes []FieldChange `json:"changes,omitempty"`

	// Before is the pre-mutation snapshot persisted to the change log for
	// UPDATE and DELETE operations. Set by the factory, never sent to the
	// server.
	Before map[string]any `json:"before,omitempty"`

	// Meta carries classification context from the diff (conflict reasons,
	// safe-mode downgrades, orphan details) through to results and reports.
	Meta map[string]any `json:"metadata,omitempty"`

	// Row is the desired-state row this operation came from. Nil for
	// synthetic barrier operations and orphans.
	Row *Row `json:"-"`

	Status       OperationStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`

	// ResultID is the server id after a successful CREATE (or the verified
	// target id for UPDATE/DELETE). Used by reports and the resolver cache.
	ResultID int64 `json:"result_id,omitempty"`

	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// NodeID returns the graph node id for this operation.
func (o *Operation) NodeID() string {
	return NodeID(o.ObjectType, o.RowID)
}

// IsBarrier reports whether this is a synthetic phase barrier.
func (o *Operation) IsBarrier() bool {
	return o.ObjectType == ObjectSystemBarrier
}

// IsMutation reports whether the operation sends a write to the server.
// NOOP, ORPHAN, and barrier operations are bookkeeping only.
func (o *Operation) IsMutation() bool {
	switch o.Type {
	case OpCreate, OpUpdate, OpDelete:
		return !o.IsBarrier()
	}
	return false
}

// WorkingCopy returns a deep copy of the operation suitable for deferred
// resolution. The original payload keeps its markers so a retried attempt
// starts from the same unresolved state.
func (o *Operation) WorkingCopy() *Operation {
	cp := *o
	cp.Payload = ClonePayload(o.Payload)
	cp.Before = ClonePayload(o.Before)
	cp.Meta = ClonePayload(o.Meta)
	if o.Deferred != nil {
		cp.Deferred = make([]DeferredRef, len(o.Deferred))
		copy(cp.Deferred, o.Deferred)
	}
	if o.Changes != nil {
		cp.Changes = make([]FieldChange, len(o.Changes))
		copy(cp.Changes, o.Changes)
	}
	return &cp
}

// ClonePayload deep-copies a payload map. Values are scalars, nested maps,
// or slices; anything else is copied by reference.
func ClonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return ClonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
