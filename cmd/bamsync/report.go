package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/report"
	"github.com/ipamtools/bamsync/internal/store"
	"github.com/ipamtools/bamsync/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Show the run report for a session",
	Long: `Report prints the markdown run report written when the session executed.
When the file is gone it is rebuilt from the change log; a rebuilt report
covers mutations only, since no-ops and cascade skips are never logged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]

		path := filepath.Join(config.StateDir(), report.Filename(sessionID))
		if data, err := os.ReadFile(path); err == nil { // #nosec G304 - path derives from our own state dir
			return ui.ToPager(string(data))
		}

		rebuilt, err := rebuildReport(sessionID)
		if err != nil {
			return err
		}
		return ui.ToPager(rebuilt)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

// rebuildReport reconstructs a report from the session's change log entries.
func rebuildReport(sessionID string) (string, error) {
	stores, err := openStores(rootCtx)
	if err != nil {
		return "", err
	}
	defer func() { _ = stores.Close() }()

	entries, err := stores.SessionEntries(rootCtx, sessionID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no report file and no change log entries for session %s", sessionID)
	}

	results := resultsFromEntries(entries)
	run := &report.Run{
		SessionID: sessionID,
		StartedAt: entries[0].Timestamp,
		Stats:     engine.Summarize(results, nil, entries[len(entries)-1].Timestamp.Sub(entries[0].Timestamp)),
		Results:   results,
	}
	return report.Render(run), nil
}

// resultsFromEntries lifts change log rows back into executor results.
func resultsFromEntries(entries []*store.ChangeLogEntry) []*engine.Result {
	results := make([]*engine.Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, &engine.Result{
			Op: &model.Operation{
				RowID:      e.RowID,
				ObjectType: e.ObjectType,
				Type:       e.Operation,
				ResourceID: e.ResourceID,
			},
			Success:    e.Success,
			ResourceID: e.ResourceID,
			Error:      e.Error,
		})
	}
	return results
}
