// Command bamsync reconciles desired-state CSV files against an IPAM/DNS
// server: it diffs rows against current state, orders the resulting
// operations by dependency, and executes them concurrently with
// checkpointing so interrupted runs can resume.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/telemetry"
	"github.com/ipamtools/bamsync/internal/ui"
)

var (
	cfgFile     string
	serverFlag  string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
	yesFlag     bool
	noColorFlag bool

	// Signal-aware context for graceful cancellation. The executor checks it
	// between batches, so one Ctrl-C finishes in-flight operations and saves
	// a checkpoint before exiting.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// exitCode is the process exit status when Execute itself succeeds.
	// apply and resume set it to the number of non-skipped failures.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "bamsync",
	Short: "bamsync - declarative IPAM/DNS reconciliation",
	Long: `bamsync reconciles desired-state CSV files against an Address Manager.

A run parses the CSV, loads current server state, computes the minimal set
of CREATE/UPDATE/DELETE operations, orders them by dependency, and executes
them in parallel batches with checkpointing and an append-only change log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("bamsync version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitializeFromFile(cfgFile); err != nil {
			return err
		}
		applyFlagOverrides(cmd)

		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
		if noColorFlag || !config.GetBool("color") {
			ui.DisableColor()
		}

		rootCtx, rootCancel = signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)

		if err := telemetry.Init(rootCtx, "bamsync", Version); err != nil {
			// Telemetry is optional; a broken exporter must not block a run.
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()

		if rootCancel != nil {
			rootCancel()
		}
	},
}

// applyFlagOverrides pushes explicitly set persistent flags over the config
// values so flags beat both file and environment.
func applyFlagOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("server") {
		config.Set("server", serverFlag)
	}
	if cmd.Flags().Changed("json") {
		config.Set("json", jsonOutput)
	}
	jsonOutput = config.GetBool("json")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/bamsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Address Manager server URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Skip confirmation prompts")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			outputJSONError(err, "")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
