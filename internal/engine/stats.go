package engine

import (
	"time"

	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/throttle"
)

// TypeStats breaks results down for one object type.
type TypeStats struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Stats summarizes one run. Failed counts real failures only; cascade skips
// are tracked separately and never affect the exit code.
type Stats struct {
	Total       int                            `json:"total"`
	Succeeded   int                            `json:"succeeded"`
	Failed      int                            `json:"failed"`
	Skipped     int                            `json:"skipped"`
	SuccessRate float64                        `json:"success_rate"`
	ByType      map[model.ObjectType]*TypeStats `json:"by_type"`
	ByOperation map[model.OperationType]int    `json:"by_operation"`
	Duration    time.Duration                  `json:"duration"`
	Throttle    throttle.Metrics               `json:"throttle"`
}

// ExitCode is the process exit status for an apply: the number of non-skipped
// failures, so 0 means every dispatched operation converged.
func (s *Stats) ExitCode() int { return s.Failed }

// Summarize folds results into run statistics.
func Summarize(results []*Result, th *throttle.Throttle, duration time.Duration) *Stats {
	s := &Stats{
		Total:       len(results),
		ByType:      make(map[model.ObjectType]*TypeStats),
		ByOperation: make(map[model.OperationType]int),
		Duration:    duration,
	}
	if th != nil {
		s.Throttle = th.Metrics()
	}
	for _, r := range results {
		ts := s.ByType[r.Op.ObjectType]
		if ts == nil {
			ts = &TypeStats{}
			s.ByType[r.Op.ObjectType] = ts
		}
		s.ByOperation[r.Op.Type]++
		switch {
		case r.Success:
			s.Succeeded++
			ts.Succeeded++
		case r.Skipped():
			s.Skipped++
			ts.Skipped++
		default:
			s.Failed++
			ts.Failed++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
	}
	return s
}
