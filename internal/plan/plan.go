// Package plan turns a validated dependency graph into an ordered execution
// plan: depth-grouped batches of operations that may run concurrently, with
// pacing estimates and per-type counts for display.
package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/ipamtools/bamsync/internal/graph"
	"github.com/ipamtools/bamsync/internal/model"
)

// Batch is one group of operations with no graph path between any two of
// them. Batches execute strictly in order; operations within a batch run
// concurrently.
type Batch struct {
	ID                int                `json:"batch_id"`
	Depth             int                `json:"depth"`
	Operations        []*model.Operation `json:"operations"`
	EstimatedDuration time.Duration      `json:"estimated_duration"`
}

// Plan is the full ordered batch list plus summary figures.
type Plan struct {
	Batches                []*Batch                    `json:"batches"`
	TotalOperations        int                         `json:"total_operations"`
	MaxParallelism         int                         `json:"max_parallelism"`
	EstimatedTotalDuration time.Duration               `json:"estimated_total_duration"`
	Counts                 map[model.OperationType]int `json:"counts"`
}

// Per-type duration estimates. Display and pacing hints only; the scheduler
// never consults them.
var opEstimates = map[model.OperationType]time.Duration{
	model.OpCreate: 500 * time.Millisecond,
	model.OpUpdate: 300 * time.Millisecond,
	model.OpDelete: 200 * time.Millisecond,
	model.OpNoop:   10 * time.Millisecond,
	model.OpOrphan: 0,
}

// Planner builds plans from graphs.
type Planner struct {
	maxBatchSize int
}

// NewPlanner returns a planner. maxBatchSize <= 0 disables batch splitting.
func NewPlanner(maxBatchSize int) *Planner {
	return &Planner{maxBatchSize: maxBatchSize}
}

// Plan validates the graph, groups operations into depth batches, strips the
// synthetic barrier nodes, and applies the batch-size cap.
func (p *Planner) Plan(g *graph.Graph) (*Plan, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	depthBatches, err := g.TopologicalBatches()
	if err != nil {
		return nil, err
	}

	plan := &Plan{Counts: make(map[model.OperationType]int)}
	id := 0
	for _, nodes := range depthBatches {
		var ops []*model.Operation
		depth := 0
		for _, n := range nodes {
			if n.Op.IsBarrier() {
				continue
			}
			ops = append(ops, n.Op)
			depth = n.Depth
		}
		if len(ops) == 0 {
			continue
		}
		for _, chunk := range split(ops, p.maxBatchSize) {
			batch := &Batch{
				ID:                id,
				Depth:             depth,
				Operations:        chunk,
				EstimatedDuration: estimate(chunk),
			}
			plan.Batches = append(plan.Batches, batch)
			id++
		}
	}

	for _, batch := range plan.Batches {
		plan.TotalOperations += len(batch.Operations)
		plan.EstimatedTotalDuration += batch.EstimatedDuration
		if len(batch.Operations) > plan.MaxParallelism {
			plan.MaxParallelism = len(batch.Operations)
		}
		for _, op := range batch.Operations {
			plan.Counts[op.Type]++
		}
	}
	return plan, nil
}

// Optimize sorts each batch's operations by (operation type, object type,
// row id) for deterministic, cache-friendly dispatch. Operations never move
// between batches.
func (p *Planner) Optimize(plan *Plan) *Plan {
	for _, batch := range plan.Batches {
		sort.SliceStable(batch.Operations, func(i, j int) bool {
			a, b := batch.Operations[i], batch.Operations[j]
			if a.Type != b.Type {
				return a.Type < b.Type
			}
			if a.ObjectType != b.ObjectType {
				return a.ObjectType < b.ObjectType
			}
			return a.RowID < b.RowID
		})
	}
	return plan
}

// split cuts ops into chunks of at most size, preserving order. A size of
// zero or less keeps everything in one chunk.
func split(ops []*model.Operation, size int) [][]*model.Operation {
	if size <= 0 || len(ops) <= size {
		return [][]*model.Operation{ops}
	}
	var chunks [][]*model.Operation
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		chunks = append(chunks, ops[start:end])
	}
	return chunks
}

// estimate is the batch pacing hint: the slowest operation dominates since
// the batch runs concurrently.
func estimate(ops []*model.Operation) time.Duration {
	var max time.Duration
	for _, op := range ops {
		if d := opEstimates[op.Type]; d > max {
			max = d
		}
	}
	return max
}
