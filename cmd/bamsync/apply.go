package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/plan"
	"github.com/ipamtools/bamsync/internal/report"
	"github.com/ipamtools/bamsync/internal/resolvercache"
	"github.com/ipamtools/bamsync/internal/session"
	"github.com/ipamtools/bamsync/internal/telemetry"
	"github.com/ipamtools/bamsync/internal/throttle"
	"github.com/ipamtools/bamsync/internal/ui"
)

var applyCmd = &cobra.Command{
	Use:   "apply -f <file.csv>",
	Short: "Execute the reconciliation plan for a CSV file",
	Long: `Apply computes the reconciliation plan for the input file and executes it:
parallel batches under the adaptive throttle, a checkpoint after every batch,
and an append-only change log for rollback.

Plans containing DELETE operations ask for confirmation unless --yes is set
or stdin is not a terminal. The exit code is the number of failed operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		allowDangerous, _ := cmd.Flags().GetBool("allow-dangerous")
		maxBatchSize, _ := cmd.Flags().GetInt("max-batch-size")

		parsed, hash, err := loadInput(file)
		if err != nil {
			return err
		}
		pol, policyPath, err := config.LoadPolicy("")
		if err != nil {
			return err
		}
		if policyPath != "" {
			debug.Logf("apply: using policy %s\n", policyPath)
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		cache := resolvercache.New()
		ops, err := buildOperations(rootCtx, client, parsed, pol, cache)
		if err != nil {
			return err
		}
		g, p, err := buildPlan(ops, maxBatchSize)
		if err != nil {
			return err
		}
		if p.TotalOperations == 0 {
			ui.Successf("nothing to do")
			return nil
		}

		if !jsonOutput && !quietFlag {
			fmt.Print(ui.RenderPlan(p))
			fmt.Println()
		}
		ok, err := confirmDeletes(p)
		if err != nil {
			return err
		}
		if !ok {
			ui.Warnf("aborted, no operations executed")
			return nil
		}

		cfg := engine.Config{
			SessionID:      session.NewID(),
			InputHash:      hash,
			DryRun:         dryRun,
			AllowDangerous: allowDangerous,
			Cache:          cache,
			Metrics:        telemetry.NewEngineMetrics(),
		}

		// Dry runs persist nothing: no lock, no checkpoints, no change log.
		if !dryRun {
			stores, err := openStores(rootCtx)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()
			cfg.Checkpoints = stores
			cfg.ChangeLog = stores

			lock, err := session.NewLock(config.StateDir())
			if err != nil {
				return err
			}
			if err := lock.Acquire(rootCtx); err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()
		}

		th := throttle.New(pol.Concurrency)
		exec := engine.NewExecutor(client, th, cfg)

		started := time.Now()
		results, execErr := exec.ExecutePlan(rootCtx, g, p)
		stats := engine.Summarize(results, th, time.Since(started))

		run := &report.Run{
			SessionID:  cfg.SessionID,
			InputFile:  file,
			DryRun:     dryRun,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Stats:      stats,
			Results:    results,
		}
		if !dryRun {
			if path, err := writeReport(run); err != nil {
				ui.Warnf("failed to write run report: %v", err)
			} else {
				debug.Logf("apply: report written to %s\n", path)
			}
		}

		printRunOutcome(run, execErr)
		exitCode = stats.ExitCode()
		return nil
	},
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Desired-state CSV file (required)")
	_ = applyCmd.MarkFlagRequired("file")
	applyCmd.Flags().Bool("dry-run", false, "Evaluate the full plan without touching the server")
	applyCmd.Flags().Bool("allow-dangerous", false, "Allow deleting containers that still hold children")
	applyCmd.Flags().Int("max-batch-size", 0, "Split batches larger than this (0 = unlimited)")
	rootCmd.AddCommand(applyCmd)
}

// confirmDeletes prompts before executing a plan that removes resources.
// Skipped by --yes and on non-interactive stdin, where prompting would hang
// scripts.
func confirmDeletes(p *plan.Plan) (bool, error) {
	deletes := p.Counts[model.OpDelete]
	if deletes == 0 || yesFlag || !ui.IsTTY(os.Stdin) {
		return true, nil
	}

	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("This plan deletes %d resources. Execute?", deletes)).
			Affirmative("Apply").
			Negative("Abort").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return confirmed, nil
}

// writeReport renders the run report next to the session database.
func writeReport(run *report.Run) (string, error) {
	dir := config.StateDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, report.Filename(run.SessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 - path derives from our own state dir
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	if err := report.Write(f, run); err != nil {
		return "", err
	}
	return path, nil
}

// printRunOutcome emits the post-run summary in the selected format and, on
// interruption, the resume hint.
func printRunOutcome(run *report.Run, execErr error) {
	if jsonOutput {
		outputJSON(map[string]any{
			"session_id":  run.SessionID,
			"dry_run":     run.DryRun,
			"interrupted": execErr != nil,
			"stats":       run.Stats,
			"results":     run.Results,
		})
	} else {
		fmt.Println()
		fmt.Print(ui.RenderSummary(run.Stats))
		printFailures(run.Results)
	}

	if execErr != nil && errors.Is(execErr, context.Canceled) && !run.DryRun {
		ui.Warnf("run interrupted; resume with: bamsync resume %s -f %s", run.SessionID, run.InputFile)
	}
}

// printFailures lists real failures (not cascade skips) after the summary.
func printFailures(results []*engine.Result) {
	for _, r := range results {
		if r.Success || r.Skipped() {
			continue
		}
		ui.Failf("%s %s %s: %s", r.Op.Type, r.Op.ObjectType, r.Op.RowID, r.Error)
	}
}
