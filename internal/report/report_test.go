package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/throttle"
)

func result(rowID string, objType model.ObjectType, opType model.OperationType, success bool, errMsg string, meta map[string]any) *engine.Result {
	return &engine.Result{
		Op: &model.Operation{
			RowID:      rowID,
			ObjectType: objType,
			Type:       opType,
		},
		Success:  success,
		Error:    errMsg,
		Metadata: meta,
	}
}

func TestRenderFullReport(t *testing.T) {
	results := []*engine.Result{
		result("r1", model.ObjectIP4Block, model.OpCreate, true, "", nil),
		result("r2", model.ObjectIP4Network, model.OpCreate, false, "server error (status 500)", nil),
		result("r3", model.ObjectIP4Address, model.OpCreate, false,
			"Skipped because parent ip4_network:r2 failed: server error (status 500)",
			map[string]any{"skipped": true}),
		result("orphan-1", model.ObjectHostRecord, model.OpOrphan, true, "",
			map[string]any{"orphan": true, "name": "stale.example.com"}),
	}

	th := throttle.New(throttle.Config{Initial: 4})
	if err := th.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	th.Release()
	th.RecordSuccess(20 * time.Millisecond)

	stats := engine.Summarize(results, th, 1500*time.Millisecond)
	out := Render(&Run{
		SessionID: "sess-1",
		InputFile: "desired.csv",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Stats:     stats,
		Results:   results,
	})

	for _, want := range []string{
		"# bamsync run report",
		"Session: `sess-1`",
		"Input: `desired.csv`",
		"| Total operations | 4 |",
		"| Succeeded | 2 |",
		"| Failed | 1 |",
		"| Skipped | 1 |",
		"| Duration | 1.5s |",
		"| CREATE | 3 |",
		"| ORPHAN | 1 |",
		"## By object type",
		"| ip4_network | 0 | 1 | 0 |",
		"## Failures",
		"row `r2` (CREATE ip4_network): server error (status 500)",
		"## Skipped (failure cascade)",
		"after `ip4_network:r2` failed:",
		"- `r3` (CREATE ip4_address)",
		"## Orphans (report only, not deleted)",
		"- host_record stale.example.com",
		"## Throttle",
		"| Acquisitions | 1 |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	results := []*engine.Result{
		result("r1", model.ObjectIP4Block, model.OpCreate, true, "", nil),
	}
	stats := engine.Summarize(results, nil, time.Second)
	out := Render(&Run{SessionID: "sess-2", Stats: stats, Results: results})

	for _, absent := range []string{"## Failures", "## Skipped", "## Orphans", "## Throttle"} {
		if strings.Contains(out, absent) {
			t.Errorf("report should omit %q when empty\n%s", absent, out)
		}
	}
}

func TestRenderDryRunHeader(t *testing.T) {
	out := Render(&Run{SessionID: "sess-3", DryRun: true})
	if !strings.Contains(out, "dry run") {
		t.Errorf("dry run marker missing:\n%s", out)
	}
}

func TestSkipParent(t *testing.T) {
	cases := []struct {
		reason string
		want   string
	}{
		{"Skipped because parent ip4_block:r9 failed: boom", "ip4_block:r9"},
		{"Skipped because parent dns_zone:z1 failed", "dns_zone:z1"},
		{"something else entirely", "unknown"},
	}
	for _, tc := range cases {
		if got := skipParent(tc.reason); got != tc.want {
			t.Errorf("skipParent(%q) = %q, want %q", tc.reason, got, tc.want)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("abc123"); got != "report-abc123.md" {
		t.Errorf("Filename = %q", got)
	}
}
