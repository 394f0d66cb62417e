package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/report"
	"github.com/ipamtools/bamsync/internal/resolvercache"
	"github.com/ipamtools/bamsync/internal/session"
	"github.com/ipamtools/bamsync/internal/store"
	"github.com/ipamtools/bamsync/internal/telemetry"
	"github.com/ipamtools/bamsync/internal/throttle"
	"github.com/ipamtools/bamsync/internal/ui"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id] -f <file.csv>",
	Short: "Resume an interrupted reconciliation run",
	Long: `Resume continues an interrupted session from its last checkpoint: completed
batches are skipped and ids created before the interruption are loaded so
deferred references still resolve.

The input file must be byte-identical to the original run; the checkpointed
input hash is verified before anything executes. With --latest the most
recent in-progress session matching the input is picked automatically.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		latest, _ := cmd.Flags().GetBool("latest")
		allowDangerous, _ := cmd.Flags().GetBool("allow-dangerous")
		maxBatchSize, _ := cmd.Flags().GetInt("max-batch-size")

		if !latest && len(args) == 0 {
			return errors.New("provide a session id or --latest")
		}

		parsed, hash, err := loadInput(file)
		if err != nil {
			return err
		}

		stores, err := openStores(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = stores.Close() }()

		checkpoint, err := findCheckpoint(stores, args, latest, hash)
		if err != nil {
			return err
		}
		if checkpoint.InputHash != hash {
			return fmt.Errorf("input file has changed since session %s was interrupted; diff it or start a fresh apply", checkpoint.SessionID)
		}
		created, err := stores.LoadCreatedResources(rootCtx, checkpoint.SessionID)
		if err != nil {
			return fmt.Errorf("failed to load created resources: %w", err)
		}
		debug.Logf("resume: session %s from batch %d (%d/%d done, %d created ids)\n",
			checkpoint.SessionID, checkpoint.BatchID, checkpoint.Completed, checkpoint.Total, createdCount(created))

		pol, _, err := config.LoadPolicy("")
		if err != nil {
			return err
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

		lock, err := session.NewLock(config.StateDir())
		if err != nil {
			return err
		}
		if err := lock.Acquire(rootCtx); err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		th := throttle.New(pol.Concurrency)
		exec := engine.NewExecutor(client, th, engine.Config{
			SessionID:      checkpoint.SessionID,
			InputHash:      hash,
			AllowDangerous: allowDangerous,
			StartBatch:     checkpoint.BatchID,
			Completed:      checkpoint.Completed,
			Created:        created,
			Checkpoints:    stores,
			ChangeLog:      stores,
			Cache:          cache,
			Metrics:        telemetry.NewEngineMetrics(),
		})

		started := time.Now()
		results, execErr := exec.ExecutePlan(rootCtx, g, p)
		stats := engine.Summarize(results, th, time.Since(started))

		run := &report.Run{
			SessionID:  checkpoint.SessionID,
			InputFile:  file,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Stats:      stats,
			Results:    results,
		}
		if path, err := writeReport(run); err != nil {
			ui.Warnf("failed to write run report: %v", err)
		} else {
			debug.Logf("resume: report written to %s\n", path)
		}

		printRunOutcome(run, execErr)
		exitCode = stats.ExitCode()
		return nil
	},
}

func init() {
	resumeCmd.Flags().StringP("file", "f", "", "Desired-state CSV file of the interrupted run (required)")
	_ = resumeCmd.MarkFlagRequired("file")
	resumeCmd.Flags().Bool("latest", false, "Resume the most recent in-progress session matching the input")
	resumeCmd.Flags().Bool("allow-dangerous", false, "Allow deleting containers that still hold children")
	resumeCmd.Flags().Int("max-batch-size", 0, "Split batches larger than this (0 = unlimited)")
	rootCmd.AddCommand(resumeCmd)
}

// findCheckpoint resolves which session to resume: the explicit id's latest
// checkpoint, or the newest in-progress session matching the input hash.
func findCheckpoint(stores *sessionStore, args []string, latest bool, hash string) (*store.Checkpoint, error) {
	if latest {
		cp, err := stores.FindResumableSession(rootCtx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.New("no in-progress session matches this input file")
		}
		if err != nil {
			return nil, err
		}
		return cp, nil
	}

	sessionID := args[0]
	cp, err := stores.LatestCheckpoint(rootCtx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no checkpoints for session %s", sessionID)
	}
	if err != nil {
		return nil, err
	}
	if cp.Status != store.SessionInProgress {
		return nil, fmt.Errorf("session %s is %s, not resumable", sessionID, cp.Status)
	}
	return cp, nil
}

// createdCount totals the primed created-resource ids across classes.
func createdCount(created store.CreatedResources) int {
	n := 0
	for _, m := range created {
		n += len(m)
	}
	return n
}
