package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/csvio"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/store"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleCSV = `row_id,object_type,action,config,cidr
r1,ip4_block,create,prod,10.0.0.0/8
r2,ip4_network,create,prod,10.1.0.0/24
`

func TestLoadInput(t *testing.T) {
	path := writeInput(t, sampleCSV)

	parsed, hash, err := loadInput(path)
	if err != nil {
		t.Fatalf("loadInput: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d rows, want 2", len(parsed))
	}
	if hash == "" {
		t.Fatal("empty input hash")
	}

	_, hash2, err := loadInput(path)
	if err != nil {
		t.Fatalf("loadInput again: %v", err)
	}
	if hash != hash2 {
		t.Errorf("hash not stable: %s vs %s", hash, hash2)
	}
}

func TestLoadInputMissingFile(t *testing.T) {
	if _, _, err := loadInput(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidRowsFiltersErrors(t *testing.T) {
	parsed := []csvio.ParsedRow{
		{Row: &model.Row{RowID: "a"}},
		{Row: &model.Row{RowID: "b"}, Err: os.ErrInvalid},
		{Row: &model.Row{RowID: "c"}},
	}
	rows := validRows(parsed)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].RowID != "a" || rows[1].RowID != "c" {
		t.Errorf("wrong rows kept: %s, %s", rows[0].RowID, rows[1].RowID)
	}
	if countInvalidRows(parsed) != 1 {
		t.Errorf("countInvalidRows = %d, want 1", countInvalidRows(parsed))
	}
}

func TestOpenStoresSQLite(t *testing.T) {
	t.Setenv("BAMSYNC_CONFIG_DIR", t.TempDir())
	if err := config.Initialize(); err != nil {
		t.Fatal(err)
	}
	config.Set("db", filepath.Join(t.TempDir(), "sessions.db"))

	ctx := context.Background()
	stores, err := openStores(ctx)
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	defer func() { _ = stores.Close() }()

	cp := &store.Checkpoint{
		SessionID: "sess-1",
		Timestamp: time.Now(),
		BatchID:   2,
		Completed: 5,
		Total:     9,
		Status:    store.SessionInProgress,
		InputHash: "abc",
	}
	if err := stores.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	got, err := stores.LatestCheckpoint(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if got.BatchID != 2 || got.InputHash != "abc" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
}

func TestOpenStoresRejectsBadMySQLURL(t *testing.T) {
	t.Setenv("BAMSYNC_CONFIG_DIR", t.TempDir())
	if err := config.Initialize(); err != nil {
		t.Fatal(err)
	}
	config.Set("db", "mysql://nodatabase")

	if _, err := openStores(context.Background()); err == nil {
		t.Fatal("expected error for mysql URL without database name")
	}
}

func TestResultsFromEntries(t *testing.T) {
	entries := []*store.ChangeLogEntry{
		{RowID: "r1", ObjectType: model.ObjectIP4Block, Operation: model.OpCreate, Success: true, ResourceID: 10},
		{RowID: "r2", ObjectType: model.ObjectIP4Network, Operation: model.OpUpdate, Success: false, Error: "boom"},
	}
	results := resultsFromEntries(entries)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Success || results[0].ResourceID != 10 || results[0].Op.Type != model.OpCreate {
		t.Errorf("first result mismatch: %+v", results[0])
	}
	if results[1].Success || results[1].Error != "boom" {
		t.Errorf("second result mismatch: %+v", results[1])
	}
}

func TestCreatedCount(t *testing.T) {
	created := store.CreatedResources{}
	created.Put(model.ClassNetwork, "prod/10.0.0.0/24", 7)
	created.Put(model.ClassNetwork, "prod/10.1.0.0/24", 8)
	created.Put(model.ClassZone, "default/example.com", 9)
	if got := createdCount(created); got != 3 {
		t.Errorf("createdCount = %d, want 3", got)
	}
}
