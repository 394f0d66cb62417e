package rollback

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ipamtools/bamsync/internal/csvio"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/store"
)

type sliceLog struct {
	entries []*store.ChangeLogEntry
}

func (s *sliceLog) RecordOperation(ctx context.Context, e *store.ChangeLogEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *sliceLog) SessionEntries(ctx context.Context, sessionID string) ([]*store.ChangeLogEntry, error) {
	var out []*store.ChangeLogEntry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *sliceLog) Close() error { return nil }

func TestGenerateInverseCSV(t *testing.T) {
	log := &sliceLog{entries: []*store.ChangeLogEntry{
		{
			SessionID: "s1", RowID: "1", ObjectType: model.ObjectIP4Block,
			Operation: model.OpCreate, Success: true, ResourceID: 101,
			AfterState: map[string]any{"id": int64(101), "type": "ip4_block", "cidr": "10.0.0.0/16", "name": "corp"},
		},
		{
			SessionID: "s1", RowID: "3", ObjectType: model.ObjectIP4Address,
			Operation: model.OpCreate, Success: true, ResourceID: 303,
			AfterState: map[string]any{"id": float64(303), "name": "web-01", "address": "10.1.0.10"},
		},
		{
			SessionID: "s1", RowID: "7", ObjectType: model.ObjectIP4Network,
			Operation: model.OpUpdate, Success: true, ResourceID: 42,
			BeforeState: map[string]any{"id": int64(42), "type": "ip4_network", "name": "old-tier", "vlan_id": float64(100)},
			AfterState:  map[string]any{"id": int64(42), "name": "web-tier", "vlan_id": float64(200)},
		},
		{
			SessionID: "s1", RowID: "9", ObjectType: model.ObjectDNSZone,
			Operation: model.OpDelete, Success: true, ResourceID: 77,
			BeforeState: map[string]any{"id": int64(77), "type": "dns_zone", "name": "old.example.com"},
		},
		{
			SessionID: "s1", RowID: "11", ObjectType: model.ObjectIP4Network,
			Operation: model.OpCreate, Success: false, Error: "boom",
		},
	}}

	var buf bytes.Buffer
	summary, err := NewGenerator(log).Generate(context.Background(), "s1", &buf)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if summary.DeleteRows != 2 || summary.UpdateRows != 1 || summary.Annotations != 1 || summary.SkippedOps != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Total() != 3 {
		t.Errorf("Total() = %d", summary.Total())
	}

	text := buf.String()
	if !strings.Contains(text, "# row 9: DELETE of dns_zone 77 is not auto-reversed") {
		t.Errorf("missing delete annotation in:\n%s", text)
	}
	if !strings.Contains(text, `"old.example.com"`) {
		t.Errorf("annotation lacks before-state:\n%s", text)
	}

	// The output must replay through the CSV layer.
	parsed, err := csvio.NewReader(strings.NewReader(text)).ReadAll()
	if err != nil {
		t.Fatalf("round-trip parse error = %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("round-trip produced %d rows, want 3", len(parsed))
	}
	for _, p := range parsed {
		if p.Err != nil {
			t.Errorf("inverse row %s failed validation: %v", p.Row.RowID, p.Err)
		}
	}

	// Reverse chronological: the update undoes last, then the creates.
	first := parsed[0].Row
	if first.Action != model.ActionUpdate || first.BAMID != 42 {
		t.Errorf("first inverse row = %+v, want update of 42", first)
	}
	if first.Attr("name") != "old-tier" || first.Attr("vlan_id") != "100" {
		t.Errorf("restored attrs = %v", first.Attrs)
	}
	if first.HasAttr("type") {
		t.Error("identity field leaked into restored attributes")
	}

	second := parsed[1].Row
	if second.Action != model.ActionDelete || second.BAMID != 303 {
		t.Errorf("second inverse row = %+v, want delete of 303", second)
	}
	if second.Attr("verify_name") != "web-01" || second.Attr("verify_address") != "10.1.0.10" {
		t.Errorf("verification fields = %v", second.Attrs)
	}

	third := parsed[2].Row
	if third.Action != model.ActionDelete || third.BAMID != 101 || third.ObjectType != model.ObjectIP4Block {
		t.Errorf("third inverse row = %+v, want delete of the block", third)
	}
}

func TestGenerateEmptySessionErrors(t *testing.T) {
	if _, err := NewGenerator(&sliceLog{}).Generate(context.Background(), "missing", &bytes.Buffer{}); err == nil {
		t.Fatal("Generate() accepted a session with no entries")
	}
}

func TestGenerateAllFailuresYieldsHeaderOnly(t *testing.T) {
	log := &sliceLog{entries: []*store.ChangeLogEntry{
		{SessionID: "s2", RowID: "1", ObjectType: model.ObjectIP4Block,
			Operation: model.OpCreate, Success: false, Error: "boom"},
	}}
	var buf bytes.Buffer
	summary, err := NewGenerator(log).Generate(context.Background(), "s2", &buf)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if summary.Total() != 0 || summary.SkippedOps != 1 {
		t.Errorf("summary = %+v", summary)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "row_id,") {
		t.Errorf("output = %q, want header only", buf.String())
	}
}
