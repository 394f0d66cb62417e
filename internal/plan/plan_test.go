package plan

import (
	"testing"
	"time"

	"github.com/ipamtools/bamsync/internal/graph"
	"github.com/ipamtools/bamsync/internal/model"
)

func buildGraph(t *testing.T, ops []*model.Operation) *graph.Graph {
	t.Helper()
	g, err := graph.Build(ops)
	if err != nil {
		t.Fatalf("graph.Build() error = %v", err)
	}
	return g
}

func createOp(objType model.ObjectType, rowID, config string, attrs map[string]string) *model.Operation {
	return &model.Operation{
		RowID:      rowID,
		ObjectType: objType,
		Type:       model.OpCreate,
		Status:     model.StatusPending,
		Row: &model.Row{
			RowID:      rowID,
			ObjectType: objType,
			Action:     model.ActionCreate,
			Config:     config,
			Attrs:      attrs,
		},
	}
}

func TestPlanFiltersBarriers(t *testing.T) {
	g := buildGraph(t, []*model.Operation{
		createOp(model.ObjectIP4Block, "1", "Default", map[string]string{
			"cidr": "10.0.0.0/8",
		}),
		createOp(model.ObjectIP4Network, "2", "Default", map[string]string{
			"parent": "10.0.0.0/8", "cidr": "10.1.0.0/24",
		}),
		createOp(model.ObjectIP4Address, "3", "Default", map[string]string{
			"address": "10.1.0.10", "name": "server1",
		}),
	})

	p, err := NewPlanner(0).Plan(g)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if p.TotalOperations != 3 {
		t.Errorf("TotalOperations = %d, want 3", p.TotalOperations)
	}
	if len(p.Batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(p.Batches))
	}
	wantOrder := []string{"ip4_block:1", "ip4_network:2", "ip4_address:3"}
	for i, batch := range p.Batches {
		if batch.ID != i {
			t.Errorf("batch %d has ID %d", i, batch.ID)
		}
		if len(batch.Operations) != 1 {
			t.Fatalf("batch %d has %d operations, want 1", i, len(batch.Operations))
		}
		if got := batch.Operations[0].NodeID(); got != wantOrder[i] {
			t.Errorf("batch %d operation = %s, want %s", i, got, wantOrder[i])
		}
		if batch.Operations[0].IsBarrier() {
			t.Errorf("barrier operation leaked into batch %d", i)
		}
	}
	if p.Counts[model.OpCreate] != 3 {
		t.Errorf("Counts[CREATE] = %d, want 3", p.Counts[model.OpCreate])
	}
}

func TestPlanSplitsOversizedBatches(t *testing.T) {
	ops := make([]*model.Operation, 0, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		ops = append(ops, createOp(model.ObjectIP4Block, id, "Default", map[string]string{
			"cidr": "10." + id + ".0.0/16",
		}))
	}
	g := buildGraph(t, ops)

	p, err := NewPlanner(2).Plan(g)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(p.Batches) != 3 {
		t.Fatalf("got %d batches, want 3 (2+2+1 split)", len(p.Batches))
	}
	sizes := []int{len(p.Batches[0].Operations), len(p.Batches[1].Operations), len(p.Batches[2].Operations)}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}
	for i, batch := range p.Batches {
		if batch.ID != i {
			t.Errorf("batch IDs not contiguous: batch %d has ID %d", i, batch.ID)
		}
	}
	if p.MaxParallelism != 2 {
		t.Errorf("MaxParallelism = %d, want 2", p.MaxParallelism)
	}
}

func TestPlanEstimates(t *testing.T) {
	del := createOp(model.ObjectHostRecord, "old", "Default", map[string]string{"name": "old.example.com"})
	del.Type = model.OpDelete
	del.Row.Action = model.ActionDelete

	g := buildGraph(t, []*model.Operation{
		del,
		createOp(model.ObjectIP4Block, "1", "Default", map[string]string{"cidr": "10.0.0.0/8"}),
	})

	p, err := NewPlanner(0).Plan(g)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(p.Batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(p.Batches))
	}
	// Delete batch first (deletes precede creates), estimated at 200ms; the
	// create batch at 500ms.
	if p.Batches[0].Operations[0].Type != model.OpDelete {
		t.Fatalf("first batch is %s, want DELETE", p.Batches[0].Operations[0].Type)
	}
	if p.Batches[0].EstimatedDuration != 200*time.Millisecond {
		t.Errorf("delete batch estimate = %v, want 200ms", p.Batches[0].EstimatedDuration)
	}
	if p.Batches[1].EstimatedDuration != 500*time.Millisecond {
		t.Errorf("create batch estimate = %v, want 500ms", p.Batches[1].EstimatedDuration)
	}
	if p.EstimatedTotalDuration != 700*time.Millisecond {
		t.Errorf("total estimate = %v, want 700ms", p.EstimatedTotalDuration)
	}
}

func TestOptimizeOrdersWithinBatch(t *testing.T) {
	// Three independent creates of mixed types land in one batch.
	g := buildGraph(t, []*model.Operation{
		createOp(model.ObjectIP4Network, "z", "Default", map[string]string{"cidr": "10.3.0.0/24"}),
		createOp(model.ObjectIP4Block, "m", "Default", map[string]string{"cidr": "172.16.0.0/12"}),
		createOp(model.ObjectIP4Block, "a", "Default", map[string]string{"cidr": "192.168.0.0/16"}),
	})

	planner := NewPlanner(0)
	p, err := planner.Plan(g)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(p.Batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(p.Batches))
	}

	planner.Optimize(p)
	got := make([]string, 0, 3)
	for _, op := range p.Batches[0].Operations {
		got = append(got, op.NodeID())
	}
	want := []string{"ip4_block:a", "ip4_block:m", "ip4_network:z"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("optimized order = %v, want %v", got, want)
			break
		}
	}
}
