package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/store"
	"github.com/ipamtools/bamsync/internal/ui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and clean up reconciliation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with their latest checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := openStores(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = stores.Close() }()

		checkpoints, err := stores.ListSessions(rootCtx)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(checkpoints)
			return nil
		}
		if len(checkpoints) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, cp := range checkpoints {
			fmt.Printf("%s  %s  %s  %d/%d operations\n",
				cp.SessionID,
				cp.Timestamp.Format(time.RFC3339),
				renderStatus(cp.Status),
				cp.Completed, cp.Total)
		}
		return nil
	},
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete checkpoints of old completed and failed sessions",
	Long: `Cleanup deletes terminal (completed or failed) checkpoints older than the
retention window. In-progress sessions are never touched, so an old
interrupted run stays resumable until it finishes or fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("retention-days")
		if days <= 0 {
			days = config.GetInt("retention-days")
		}

		stores, err := openStores(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = stores.Close() }()

		deleted, err := stores.CleanupOldCheckpoints(rootCtx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(map[string]any{"deleted": deleted, "retention_days": days})
			return nil
		}
		ui.Successf("deleted %d checkpoints older than %d days", deleted, days)
		return nil
	},
}

// renderStatus colors a session status for the list view.
func renderStatus(s store.SessionStatus) string {
	switch s {
	case store.SessionCompleted:
		return ui.RenderPass(string(s))
	case store.SessionFailed:
		return ui.RenderFail(string(s))
	default:
		return ui.RenderWarn(string(s))
	}
}

func init() {
	sessionsCleanupCmd.Flags().Int("retention-days", 0, "Retention window in days (default from config)")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
}
