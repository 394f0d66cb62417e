package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipamtools/bamsync/internal/bam"
	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/csvio"
	"github.com/ipamtools/bamsync/internal/diff"
	"github.com/ipamtools/bamsync/internal/engine"
	"github.com/ipamtools/bamsync/internal/graph"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/plan"
	"github.com/ipamtools/bamsync/internal/resolvercache"
	"github.com/ipamtools/bamsync/internal/session"
	"github.com/ipamtools/bamsync/internal/store"
	"github.com/ipamtools/bamsync/internal/store/mysql"
	"github.com/ipamtools/bamsync/internal/store/sqlite"
)

// loadInput reads and parses the desired-state CSV. The returned hash gates
// resume: a checkpoint only matches an input with identical bytes.
func loadInput(path string) ([]csvio.ParsedRow, string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied input file
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input file: %w", err)
	}
	parsed, err := csvio.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return parsed, session.HashInput(data), nil
}

// validRows filters parsed rows down to the ones the diff engine may see.
// Rows with schema errors still become operations, via FromRowError.
func validRows(parsed []csvio.ParsedRow) []*model.Row {
	rows := make([]*model.Row, 0, len(parsed))
	for _, pr := range parsed {
		if pr.Err == nil {
			rows = append(rows, pr.Row)
		}
	}
	return rows
}

// newClient builds the API client from the effective configuration.
func newClient() (*bam.Client, error) {
	server := config.GetString("server")
	if server == "" {
		return nil, errors.New("no server configured: set --server, BAMSYNC_SERVER, or server in the config file")
	}
	token := config.GetString("token")
	if token == "" {
		return nil, errors.New("no API token configured: run 'bamsync login' or set BAMSYNC_TOKEN")
	}
	client := bam.NewClient(server, token)
	if timeout := config.GetDuration("timeout"); timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}
	return client, nil
}

// buildOperations runs the read side of a reconcile: load every row's current
// state, diff under the policy, and convert diffs plus row-level errors into
// operations. Rows whose state lookup failed become failing operations rather
// than aborting the run.
func buildOperations(ctx context.Context, client engine.Client, parsed []csvio.ParsedRow, pol *config.Policy, cache *resolvercache.Cache) ([]*model.Operation, error) {
	diffEngine, err := diff.NewEngine(pol.DiffOptions())
	if err != nil {
		return nil, err
	}

	rows := validRows(parsed)
	loader := engine.NewStateLoader(client, cache, 0)
	current, err := loader.Load(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to load current state: %w", err)
	}

	factory := engine.NewFactory(rows)
	ops := make([]*model.Operation, 0, len(parsed))
	for _, pr := range parsed {
		if pr.Err != nil {
			ops = append(ops, factory.FromRowError(pr.Row, pr.Err))
			continue
		}
		if lookupErr := current.Err(pr.Row); lookupErr != nil {
			ops = append(ops, factory.FromRowError(pr.Row, lookupErr))
			continue
		}
		state := current.Get(pr.Row)
		d, diffErr := diffEngine.Diff(pr.Row, state)
		if diffErr != nil {
			ops = append(ops, factory.FromRowError(pr.Row, diffErr))
			continue
		}
		ops = append(ops, factory.FromDiff(pr.Row, state, d))
	}
	return ops, nil
}

// buildPlan orders operations into an optimized execution plan.
func buildPlan(ops []*model.Operation, maxBatchSize int) (*graph.Graph, *plan.Plan, error) {
	g, err := graph.Build(ops)
	if err != nil {
		return nil, nil, err
	}
	planner := plan.NewPlanner(maxBatchSize)
	p, err := planner.Plan(g)
	if err != nil {
		return nil, nil, err
	}
	return g, planner.Optimize(p), nil
}

// sessionStore bundles the two persistence interfaces, which one backend
// object implements. Close once.
type sessionStore struct {
	store.CheckpointStore
	store.ChangeLog
}

// Close releases the underlying backend.
func (s *sessionStore) Close() error {
	return s.CheckpointStore.Close()
}

// openStores opens the session database: MySQL when the db setting is a
// mysql:// URL, else embedded SQLite at the given path or the state
// directory default.
func openStores(ctx context.Context) (*sessionStore, error) {
	dbSpec := config.GetString("db")
	if strings.HasPrefix(dbSpec, "mysql://") {
		s, err := mysql.New(ctx, dbSpec)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		return &sessionStore{CheckpointStore: s, ChangeLog: s}, nil
	}

	path := dbSpec
	if path == "" {
		path = filepath.Join(config.StateDir(), "bamsync.db")
	}
	s, err := sqlite.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	return &sessionStore{CheckpointStore: s, ChangeLog: s}, nil
}
