package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ipamtools/bamsync/internal/bam"
	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/diff"
	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/ui"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans -f <file.csv>",
	Short: "Report server resources the CSV no longer references",
	Long: `Orphans scans the containers the input file defines (blocks, networks, DNS
zones) and reports their direct children that no desired row references.

The scan is scoped strictly to CSV-declared containers and never mutates:
removing an orphan requires an explicit delete row.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		parsed, _, err := loadInput(file)
		if err != nil {
			return err
		}
		pol, _, err := config.LoadPolicy("")
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		orphans, err := scanOrphans(rootCtx, client, validRows(parsed), pol)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(orphans)
			return nil
		}
		if len(orphans) == 0 {
			ui.Successf("no orphans found")
			return nil
		}
		for _, o := range orphans {
			ui.Warnf("%s %s (id %d) under %s",
				o.Metadata["resource_type"], orphanIdentity(o), o.ResourceID, o.Metadata["scope"])
		}
		fmt.Printf("\n%d orphans; deleting one requires an explicit CSV delete row\n", len(orphans))
		return nil
	},
}

func init() {
	orphansCmd.Flags().StringP("file", "f", "", "Desired-state CSV file defining the scan scope (required)")
	_ = orphansCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(orphansCmd)
}

// scanOrphans lists each CSV-declared container's direct children and runs
// orphan detection against the full desired-row set. Containers that do not
// exist yet have no children to scan; lookup failures degrade to warnings so
// one unreachable container does not hide the rest of the report.
func scanOrphans(ctx context.Context, client engine.Client, rows []*model.Row, pol *config.Policy) ([]model.DiffResult, error) {
	// Safe mode is deliberately off here: the command only reports, and a
	// downgraded NOOP would hide the orphan it exists to show.
	diffEngine, err := diff.NewEngine(diff.Options{
		UpdateMode:      pol.UpdateMode,
		OrphanDetection: true,
	})
	if err != nil {
		return nil, err
	}

	var orphans []model.DiffResult
	for _, row := range rows {
		if row.Action == model.ActionDelete {
			continue
		}
		entity, scope, err := containerEntity(ctx, client, row)
		if err != nil {
			ui.Warnf("skipping %s %s: %v", row.ObjectType, scope, err)
			continue
		}
		if entity == nil {
			continue
		}

		children, err := client.Children(ctx, entity.ID, "")
		if err != nil {
			ui.Warnf("failed to list children of %s: %v", scope, err)
			continue
		}
		if len(children) == 0 {
			continue
		}
		current := make([]*model.ResourceState, len(children))
		for i := range children {
			current[i] = children[i].State()
		}
		found := diffEngine.DetectOrphans(rows, current, scope)
		debug.Logf("orphans: %s has %d children, %d orphaned\n", scope, len(children), len(found))
		orphans = append(orphans, found...)
	}
	return orphans, nil
}

// containerEntity resolves a desired row to a server-side container worth
// scanning. Non-container rows and containers that do not exist return nil.
func containerEntity(ctx context.Context, client engine.Client, row *model.Row) (*bam.Entity, string, error) {
	var (
		entity *bam.Entity
		scope  string
		err    error
	)
	switch row.ObjectType {
	case model.ObjectIP4Block:
		scope = row.CIDR()
		entity, err = client.BlockByCIDR(ctx, row.Config, row.CIDR())
	case model.ObjectIP4Network:
		scope = row.CIDR()
		entity, err = client.NetworkByCIDR(ctx, row.Config, row.CIDR())
	case model.ObjectDNSZone:
		scope = row.Name()
		entity, err = client.ZoneByFQDN(ctx, row.ViewPath(), row.Name())
	default:
		return nil, "", nil
	}
	if errors.Is(err, bam.ErrNotFound) {
		return nil, scope, nil
	}
	if err != nil {
		return nil, scope, err
	}
	return entity, scope, nil
}

// orphanIdentity picks the most specific identity the scan recorded.
func orphanIdentity(o model.DiffResult) string {
	for _, key := range []string{"name", "address", "cidr"} {
		if v, ok := o.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("id %d", o.ResourceID)
}
