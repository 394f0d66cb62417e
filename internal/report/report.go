// Package report renders per-session run reports in markdown: totals,
// per-type breakdowns, failures, skip chains, orphans, and throttle metrics.
// The apply command writes one next to the session's change log; the report
// command prints it back.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/model"
)

// Run is everything a report needs about one session.
type Run struct {
	SessionID  string
	InputFile  string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      *engine.Stats
	Results    []*engine.Result
}

// Render returns the full markdown report.
func Render(run *Run) string {
	var b strings.Builder
	writeHeader(&b, run)
	writeSummary(&b, run)
	writeTypeBreakdown(&b, run)
	writeFailures(&b, run)
	writeSkips(&b, run)
	writeOrphans(&b, run)
	writeThrottle(&b, run)
	return b.String()
}

// Write renders the report to w.
func Write(w io.Writer, run *Run) error {
	_, err := io.WriteString(w, Render(run))
	return err
}

// Filename is the canonical report name for a session.
func Filename(sessionID string) string {
	return fmt.Sprintf("report-%s.md", sessionID)
}

func writeHeader(b *strings.Builder, run *Run) {
	fmt.Fprintf(b, "# bamsync run report\n\n")
	fmt.Fprintf(b, "- Session: `%s`\n", run.SessionID)
	if run.InputFile != "" {
		fmt.Fprintf(b, "- Input: `%s`\n", run.InputFile)
	}
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(b, "- Started: %s\n", run.StartedAt.Format(time.RFC3339))
	}
	if run.DryRun {
		fmt.Fprintf(b, "- Mode: dry run (no server mutations, no persistence)\n")
	}
	fmt.Fprintln(b)
}

func writeSummary(b *strings.Builder, run *Run) {
	s := run.Stats
	if s == nil {
		return
	}
	fmt.Fprintf(b, "## Summary\n\n")
	fmt.Fprintf(b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Total operations | %d |\n", s.Total)
	fmt.Fprintf(b, "| Succeeded | %d |\n", s.Succeeded)
	fmt.Fprintf(b, "| Failed | %d |\n", s.Failed)
	fmt.Fprintf(b, "| Skipped | %d |\n", s.Skipped)
	fmt.Fprintf(b, "| Success rate | %.1f%% |\n", s.SuccessRate*100)
	fmt.Fprintf(b, "| Duration | %s |\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintln(b)

	if len(s.ByOperation) > 0 {
		ops := make([]model.OperationType, 0, len(s.ByOperation))
		for op := range s.ByOperation {
			ops = append(ops, op)
		}
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
		fmt.Fprintf(b, "| Operation | Count |\n|---|---|\n")
		for _, op := range ops {
			fmt.Fprintf(b, "| %s | %d |\n", op, s.ByOperation[op])
		}
		fmt.Fprintln(b)
	}
}

func writeTypeBreakdown(b *strings.Builder, run *Run) {
	s := run.Stats
	if s == nil || len(s.ByType) == 0 {
		return
	}
	types := make([]model.ObjectType, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Fprintf(b, "## By object type\n\n")
	fmt.Fprintf(b, "| Type | Succeeded | Failed | Skipped |\n|---|---|---|---|\n")
	for _, t := range types {
		ts := s.ByType[t]
		fmt.Fprintf(b, "| %s | %d | %d | %d |\n", t, ts.Succeeded, ts.Failed, ts.Skipped)
	}
	fmt.Fprintln(b)
}

func writeFailures(b *strings.Builder, run *Run) {
	var failures []*engine.Result
	for _, r := range run.Results {
		if !r.Success && !r.Skipped() {
			failures = append(failures, r)
		}
	}
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(b, "## Failures\n\n")
	for _, r := range failures {
		fmt.Fprintf(b, "- row `%s` (%s %s): %s\n", r.Op.RowID, r.Op.Type, r.Op.ObjectType, r.Error)
	}
	fmt.Fprintln(b)
}

// writeSkips groups cascade skips under the failed ancestor named in their
// reason so chains read as one unit.
func writeSkips(b *strings.Builder, run *Run) {
	chains := make(map[string][]*engine.Result)
	var parents []string
	for _, r := range run.Results {
		if !r.Skipped() {
			continue
		}
		parent := skipParent(r.Error)
		if _, seen := chains[parent]; !seen {
			parents = append(parents, parent)
		}
		chains[parent] = append(chains[parent], r)
	}
	if len(chains) == 0 {
		return
	}
	sort.Strings(parents)

	fmt.Fprintf(b, "## Skipped (failure cascade)\n\n")
	for _, parent := range parents {
		fmt.Fprintf(b, "- after `%s` failed:\n", parent)
		for _, r := range chains[parent] {
			fmt.Fprintf(b, "  - `%s` (%s %s)\n", r.Op.RowID, r.Op.Type, r.Op.ObjectType)
		}
	}
	fmt.Fprintln(b)
}

func writeOrphans(b *strings.Builder, run *Run) {
	var orphans []*engine.Result
	for _, r := range run.Results {
		if r.Op.Type == model.OpOrphan {
			orphans = append(orphans, r)
		}
	}
	if len(orphans) == 0 {
		return
	}
	fmt.Fprintf(b, "## Orphans (report only, not deleted)\n\n")
	for _, r := range orphans {
		name, _ := r.Metadata["name"].(string)
		if name == "" {
			name = fmt.Sprintf("id %d", r.Op.ResourceID)
		}
		fmt.Fprintf(b, "- %s %s\n", r.Op.ObjectType, name)
	}
	fmt.Fprintln(b)
}

func writeThrottle(b *strings.Builder, run *Run) {
	s := run.Stats
	if s == nil || s.Throttle.Acquired == 0 {
		return
	}
	m := s.Throttle
	fmt.Fprintf(b, "## Throttle\n\n")
	fmt.Fprintf(b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Final capacity | %d |\n", m.Capacity)
	fmt.Fprintf(b, "| Avg latency | %.1f ms |\n", m.AvgLatencyMs)
	fmt.Fprintf(b, "| Acquisitions | %d |\n", m.Acquired)
	fmt.Fprintf(b, "| Rate limits | %d |\n", m.RateLimits)
	fmt.Fprintf(b, "| Capacity raises | %d |\n", m.Raises)
	fmt.Fprintf(b, "| Capacity halvings | %d |\n", m.Halves)
	fmt.Fprintln(b)
}

// skipParent extracts the failed node id from a cascade reason.
func skipParent(reason string) string {
	const prefix = "Skipped because parent "
	rest, ok := strings.CutPrefix(reason, prefix)
	if !ok {
		return "unknown"
	}
	if i := strings.Index(rest, " failed"); i > 0 {
		return rest[:i]
	}
	return rest
}
