package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/rollback"
	"github.com/ipamtools/bamsync/internal/ui"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <session-id>",
	Short: "Generate the inverse CSV for a completed session",
	Long: `Rollback reads a session's change log and writes a CSV that undoes it:
creates become deletes, updates restore the fields they changed, and deletes
become annotated comments carrying the before-state for manual recreation.

Rows come out children-first, so the output applies cleanly with
'bamsync apply -f <rollback.csv>'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = fmt.Sprintf("rollback-%s.csv", sessionID)
		}

		stores, err := openStores(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = stores.Close() }()

		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 - user-chosen output path
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer func() { _ = f.Close() }()

		summary, err := rollback.NewGenerator(stores).Generate(rootCtx, sessionID, f)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"session_id": sessionID,
				"output":     output,
				"summary":    summary,
			})
			return nil
		}
		ui.Successf("wrote %s: %d delete rows, %d update rows, %d annotations",
			output, summary.DeleteRows, summary.UpdateRows, summary.Annotations)
		if summary.SkippedOps > 0 {
			ui.Warnf("%d operations had nothing to undo (failures and no-ops)", summary.SkippedOps)
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().StringP("output", "o", "", "Output file (default rollback-<session-id>.csv)")
	rootCmd.AddCommand(rollbackCmd)
}
