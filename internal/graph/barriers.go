package graph

import (
	"fmt"

	"github.com/ipamtools/bamsync/internal/model"
)

// ApplyPhaseBarriers serializes the phase ordering: delete phases run in
// reverse (8 down to 0) before create/update phases run forward (0 up to 8).
// Each populated phase gets a synthetic system_barrier NOOP node; the barrier
// depends on every operation in its phase, and every operation in the next
// populated phase depends on the preceding barrier. Nothing in phase N+1 can
// start until all of phase N is terminal.
func (g *Graph) ApplyPhaseBarriers() error {
	deletes := make([][]string, model.NumPhases)
	forwards := make([][]string, model.NumPhases)

	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		if n.Op.IsBarrier() {
			continue
		}
		phase := model.Phase(n.Op.ObjectType)
		if n.Op.Type == model.OpDelete {
			deletes[phase] = append(deletes[phase], id)
		} else {
			forwards[phase] = append(forwards[phase], id)
		}
	}

	type phaseGroup struct {
		name    string
		members []string
	}
	var groups []phaseGroup
	for p := model.NumPhases - 1; p >= 0; p-- {
		if len(deletes[p]) > 0 {
			groups = append(groups, phaseGroup{name: fmt.Sprintf("delete_%d", p), members: deletes[p]})
		}
	}
	for p := 0; p < model.NumPhases; p++ {
		if len(forwards[p]) > 0 {
			groups = append(groups, phaseGroup{name: fmt.Sprintf("create_%d", p), members: forwards[p]})
		}
	}

	prevBarrier := ""
	for _, group := range groups {
		barrier := g.AddOperation(&model.Operation{
			RowID:      group.name,
			ObjectType: model.ObjectSystemBarrier,
			Type:       model.OpNoop,
			Status:     model.StatusPending,
		})
		for _, member := range group.members {
			if err := g.AddDependency(barrier.ID(), member, EdgePrerequisite); err != nil {
				return err
			}
			if prevBarrier != "" {
				if err := g.AddDependency(member, prevBarrier, EdgePrerequisite); err != nil {
					return err
				}
			}
		}
		prevBarrier = barrier.ID()
	}
	return nil
}
