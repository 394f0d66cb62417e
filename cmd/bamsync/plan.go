package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/csvio"
	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/resolvercache"
	"github.com/ipamtools/bamsync/internal/ui"
)

var planCmd = &cobra.Command{
	Use:   "plan -f <file.csv>",
	Short: "Show the reconciliation plan without executing it",
	Long: `Plan parses the input file, loads current server state, diffs under the
effective policy, and prints the ordered execution plan. Nothing is executed.

With --strict the exit code is 1 when any row fails schema validation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		strict, _ := cmd.Flags().GetBool("strict")
		maxBatchSize, _ := cmd.Flags().GetInt("max-batch-size")

		parsed, _, err := loadInput(file)
		if err != nil {
			return err
		}
		pol, policyPath, err := config.LoadPolicy("")
		if err != nil {
			return err
		}
		if policyPath != "" {
			debug.Logf("plan: using policy %s\n", policyPath)
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		ops, err := buildOperations(rootCtx, client, parsed, pol, resolvercache.New())
		if err != nil {
			return err
		}
		_, p, err := buildPlan(ops, maxBatchSize)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(p)
		} else {
			fmt.Print(ui.RenderPlan(p))
		}

		if invalid := countInvalidRows(parsed); invalid > 0 {
			ui.Warnf("%d rows failed validation and will fail on apply", invalid)
			if strict {
				exitCode = 1
			}
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringP("file", "f", "", "Desired-state CSV file (required)")
	_ = planCmd.MarkFlagRequired("file")
	planCmd.Flags().Bool("strict", false, "Exit 1 when any row fails schema validation")
	planCmd.Flags().Int("max-batch-size", 0, "Split batches larger than this (0 = unlimited)")
	rootCmd.AddCommand(planCmd)
}

// countInvalidRows counts rows that carry a schema error and can only fail
// when applied.
func countInvalidRows(parsed []csvio.ParsedRow) int {
	n := 0
	for _, pr := range parsed {
		if pr.Err != nil {
			n++
		}
	}
	return n
}
