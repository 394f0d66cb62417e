package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/plan"
)

const targetWidth = 44

// RenderPlan renders an execution plan as an aligned table grouped by batch,
// followed by a summary line. Cells are padded before styling so ANSI codes
// never skew the columns.
func RenderPlan(p *plan.Plan) string {
	type tableRow struct {
		batch  string
		op     model.OperationType
		typ    string
		rowID  string
		target string
	}

	rows := make([]tableRow, 0, p.TotalOperations)
	for _, batch := range p.Batches {
		for i, op := range batch.Operations {
			r := tableRow{
				op:     op.Type,
				typ:    string(op.ObjectType),
				rowID:  op.RowID,
				target: TruncateSimple(opTarget(op), targetWidth),
			}
			if i == 0 {
				r.batch = fmt.Sprintf("%d", batch.ID)
			}
			rows = append(rows, r)
		}
	}

	header := []string{"BATCH", "ACTION", "TYPE", "ROW", "TARGET"}
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, r := range rows {
		cells := []string{r.batch, string(r.op), r.typ, r.rowID, r.target}
		for i, c := range cells {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	var b strings.Builder
	for i, h := range header {
		b.WriteString(RenderHeader(pad(h, widths[i])))
		if i < len(header)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteString("\n")

	for _, r := range rows {
		b.WriteString(RenderMuted(pad(r.batch, widths[0])))
		b.WriteString("  ")
		style, ok := opStyles[r.op]
		opCell := pad(string(r.op), widths[1])
		if ok {
			opCell = style.Render(opCell)
		}
		b.WriteString(opCell)
		fmt.Fprintf(&b, "  %s  %s  %s\n", pad(r.typ, widths[2]), pad(r.rowID, widths[3]), pad(r.target, widths[4]))
	}

	fmt.Fprintf(&b, "\n%d operations in %d batches (max parallelism %d, est. %s)\n",
		p.TotalOperations, len(p.Batches), p.MaxParallelism,
		p.EstimatedTotalDuration.Round(10*time.Millisecond))
	b.WriteString(renderCounts(p.Counts))
	return b.String()
}

// renderCounts is the one-line action tally under the plan table.
func renderCounts(counts map[model.OperationType]int) string {
	if len(counts) == 0 {
		return ""
	}
	ops := make([]model.OperationType, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		parts = append(parts, fmt.Sprintf("%s %d", RenderOp(op), counts[op]))
	}
	return strings.Join(parts, "  ") + "\n"
}

// RenderSummary renders post-run statistics for the apply and resume commands.
func RenderSummary(s *engine.Stats) string {
	var b strings.Builder
	b.WriteString(RenderHeader("RESULT"))
	b.WriteString("\n")

	line := fmt.Sprintf("%s %d succeeded", IconPass, s.Succeeded)
	b.WriteString(RenderPass(line))
	if s.Failed > 0 {
		b.WriteString("  ")
		b.WriteString(RenderFail(fmt.Sprintf("%s %d failed", IconFail, s.Failed)))
	}
	if s.Skipped > 0 {
		b.WriteString("  ")
		b.WriteString(RenderMuted(fmt.Sprintf("%s %d skipped", IconSkip, s.Skipped)))
	}
	fmt.Fprintf(&b, "\n%d operations in %s (%.1f%% success)\n",
		s.Total, s.Duration.Round(time.Millisecond), s.SuccessRate*100)

	if s.Throttle.Acquired > 0 {
		fmt.Fprintf(&b, "throttle: capacity %d, avg latency %.0fms, %d rate limits\n",
			s.Throttle.Capacity, s.Throttle.AvgLatencyMs, s.Throttle.RateLimits)
	}
	return b.String()
}

// opTarget is the human-readable identity column for a plan row.
func opTarget(op *model.Operation) string {
	if op.Row != nil {
		if key := op.Row.NaturalKey(); key != "" {
			return key
		}
	}
	if op.ResourceID != 0 {
		return fmt.Sprintf("id %d", op.ResourceID)
	}
	if name, ok := op.Meta["name"].(string); ok {
		return name
	}
	return ""
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
