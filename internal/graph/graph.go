// Package graph models the execution-order constraints between operations as
// a dependency DAG: nodes are operations keyed by "{object_type}:{row_id}",
// edges point from dependents to their dependencies, and depth-grouped
// topological batches feed the execution planner.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/model"
)

// Sentinel errors for graph mutations and validation.
var (
	ErrMissingNode = errors.New("node not found in graph")
	ErrCycle       = errors.New("cyclic dependency")
)

// EdgeKind classifies why an edge exists. It never affects ordering, only
// diagnostics.
type EdgeKind string

const (
	EdgeParentChild  EdgeKind = "PARENT_CHILD"
	EdgePrerequisite EdgeKind = "PREREQUISITE"
	EdgeReference    EdgeKind = "REFERENCE"
)

// Node is one operation plus its bidirectional edge sets and computed depth.
type Node struct {
	Op           *model.Operation
	Dependencies map[string]EdgeKind
	Dependents   map[string]bool
	Depth        int
}

// ID returns the node id.
func (n *Node) ID() string { return n.Op.NodeID() }

// Graph is a mutable dependency DAG. Acyclicity is enforced on every edge
// insertion. Not safe for concurrent mutation.
type Graph struct {
	nodes map[string]*Node

	byType       map[model.ObjectType]map[string]*Node
	byOpType     map[model.OperationType]map[string]*Node
	createByType map[model.ObjectType]map[string]*Node

	validated bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:        make(map[string]*Node),
		byType:       make(map[model.ObjectType]map[string]*Node),
		byOpType:     make(map[model.OperationType]map[string]*Node),
		createByType: make(map[model.ObjectType]map[string]*Node),
	}
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.nodes) }

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns all node ids in sorted order for deterministic iteration.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodesOfType returns the nodes of one object type, sorted by id.
func (g *Graph) NodesOfType(t model.ObjectType) []*Node {
	return sortedNodes(g.byType[t])
}

// CreatesOfType returns the CREATE nodes of one object type, sorted by id.
// Deferred references and parent-path edges resolve against these.
func (g *Graph) CreatesOfType(t model.ObjectType) []*Node {
	return sortedNodes(g.createByType[t])
}

// NodesOfOperation returns the nodes of one operation type, sorted by id.
func (g *Graph) NodesOfOperation(t model.OperationType) []*Node {
	return sortedNodes(g.byOpType[t])
}

func sortedNodes(m map[string]*Node) []*Node {
	if len(m) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

// AddOperation inserts a node for op. Duplicate ids are idempotent: the
// existing node is returned and the new operation ignored.
func (g *Graph) AddOperation(op *model.Operation) *Node {
	id := op.NodeID()
	if existing, ok := g.nodes[id]; ok {
		debug.Logf("graph: duplicate node %s ignored\n", id)
		return existing
	}
	n := &Node{
		Op:           op,
		Dependencies: make(map[string]EdgeKind),
		Dependents:   make(map[string]bool),
	}
	g.nodes[id] = n
	g.index(g.byType, op.ObjectType, id, n)
	g.indexOp(op.Type, id, n)
	if op.Type == model.OpCreate {
		g.index(g.createByType, op.ObjectType, id, n)
	}
	g.validated = false
	return n
}

func (g *Graph) index(m map[model.ObjectType]map[string]*Node, t model.ObjectType, id string, n *Node) {
	if m[t] == nil {
		m[t] = make(map[string]*Node)
	}
	m[t][id] = n
}

func (g *Graph) indexOp(t model.OperationType, id string, n *Node) {
	if g.byOpType[t] == nil {
		g.byOpType[t] = make(map[string]*Node)
	}
	g.byOpType[t][id] = n
}

// AddDependency records that dependent must run after dependency. Self-edges
// are ignored. The insertion is rolled back if it would close a cycle.
func (g *Graph) AddDependency(dependent, dependency string, kind EdgeKind) error {
	depNode, ok := g.nodes[dependent]
	if !ok {
		return fmt.Errorf("%w: dependent %q", ErrMissingNode, dependent)
	}
	reqNode, ok := g.nodes[dependency]
	if !ok {
		return fmt.Errorf("%w: dependency %q", ErrMissingNode, dependency)
	}
	if dependent == dependency {
		debug.Logf("graph: ignoring self-edge on %s\n", dependent)
		return nil
	}
	if _, exists := depNode.Dependencies[dependency]; exists {
		return nil
	}

	depNode.Dependencies[dependency] = kind
	reqNode.Dependents[dependent] = true

	if g.reaches(dependency, dependent) {
		delete(depNode.Dependencies, dependency)
		delete(reqNode.Dependents, dependent)
		return fmt.Errorf("%w: %s -> %s would close a cycle", ErrCycle, dependent, dependency)
	}

	g.validated = false
	return nil
}

// reaches reports whether target is reachable from start by following
// dependency edges. Iterative so pathological graphs cannot blow the stack.
func (g *Graph) reaches(start, target string) bool {
	if start == target {
		return true
	}
	stack := []string{start}
	visited := map[string]bool{start: true}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for dep := range g.nodes[id].Dependencies {
			if dep == target {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// RecomputeDepths assigns every node its longest-dependency-path length:
// 0 for roots, else 1 + max over dependencies. Nodes caught in a residual
// cycle keep their previous depth; TopologicalBatches reports them.
func (g *Graph) RecomputeDepths() {
	order, _ := g.kahnOrder()
	for _, id := range order {
		n := g.nodes[id]
		depth := 0
		for dep := range n.Dependencies {
			if d := g.nodes[dep].Depth + 1; d > depth {
				depth = d
			}
		}
		n.Depth = depth
	}
}

// kahnOrder returns node ids in a topological order plus the ids left
// unprocessed when the graph contains a cycle.
func (g *Graph) kahnOrder() (order []string, unprocessed []string) {
	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.Dependencies)
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order = make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unblocked []string
		for dependent := range g.nodes[id].Dependents {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				unblocked = append(unblocked, dependent)
			}
		}
		sort.Strings(unblocked)
		ready = append(ready, unblocked...)
	}

	if len(order) != len(g.nodes) {
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for id := range g.nodes {
			if !seen[id] {
				unprocessed = append(unprocessed, id)
			}
		}
		sort.Strings(unprocessed)
	}
	return order, unprocessed
}

// TopologicalBatches groups nodes by depth after confirming acyclicity.
// Batches come back in ascending depth order; within a batch, nodes are
// sorted by id.
func (g *Graph) TopologicalBatches() ([][]*Node, error) {
	_, unprocessed := g.kahnOrder()
	if len(unprocessed) > 0 {
		return nil, fmt.Errorf("%w: unprocessed nodes %v", ErrCycle, unprocessed)
	}
	g.RecomputeDepths()

	byDepth := make(map[int][]*Node)
	maxDepth := 0
	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		byDepth[n.Depth] = append(byDepth[n.Depth], n)
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}

	var batches [][]*Node
	for d := 0; d <= maxDepth; d++ {
		if nodes := byDepth[d]; len(nodes) > 0 {
			batches = append(batches, nodes)
		}
	}
	return batches, nil
}

// TransitiveDependents returns every node reachable from id via dependent
// edges, in sorted order. Used by the failure cascade.
func (g *Graph) TransitiveDependents(id string) []string {
	start, ok := g.nodes[id]
	if !ok {
		return nil
	}
	visited := make(map[string]bool)
	stack := make([]string, 0, len(start.Dependents))
	for dep := range start.Dependents {
		stack = append(stack, dep)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for dep := range g.nodes[cur].Dependents {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}
	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Validate cross-checks index and edge consistency, then forces a
// topological sort to re-confirm acyclicity.
func (g *Graph) Validate() error {
	if g.validated {
		return nil
	}
	for id, n := range g.nodes {
		if n.Op.NodeID() != id {
			return fmt.Errorf("node %q keyed under wrong id %q", n.Op.NodeID(), id)
		}
		for dep := range n.Dependencies {
			other, ok := g.nodes[dep]
			if !ok {
				return fmt.Errorf("%w: %s depends on unknown %s", ErrMissingNode, id, dep)
			}
			if !other.Dependents[id] {
				return fmt.Errorf("edge %s -> %s missing reverse link", id, dep)
			}
		}
		for dep := range n.Dependents {
			other, ok := g.nodes[dep]
			if !ok {
				return fmt.Errorf("%w: %s has unknown dependent %s", ErrMissingNode, id, dep)
			}
			if _, ok := other.Dependencies[id]; !ok {
				return fmt.Errorf("edge %s <- %s missing forward link", id, dep)
			}
		}
		if byType := g.byType[n.Op.ObjectType]; byType == nil || byType[id] == nil {
			return fmt.Errorf("node %s missing from type index", id)
		}
		if byOp := g.byOpType[n.Op.Type]; byOp == nil || byOp[id] == nil {
			return fmt.Errorf("node %s missing from operation index", id)
		}
	}
	if _, unprocessed := g.kahnOrder(); len(unprocessed) > 0 {
		return fmt.Errorf("%w: unprocessed nodes %v", ErrCycle, unprocessed)
	}
	g.validated = true
	return nil
}
