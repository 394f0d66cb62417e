package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ipamtools/bamsync/internal/bam"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/resolvercache"
)

// DefaultLoadConcurrency bounds the state loader's parallel lookups.
const DefaultLoadConcurrency = 8

// CurrentState is the server's view of every row in the input, keyed by node
// id. Rows whose lookup failed (beyond plain not-found) carry an entry in
// Errors instead and must fail individually rather than abort the run.
type CurrentState struct {
	States map[string]*model.ResourceState
	Errors map[string]error
}

// Get returns the state for a row, or nil when the resource does not exist.
func (c *CurrentState) Get(row *model.Row) *model.ResourceState {
	if c == nil {
		return nil
	}
	return c.States[row.NodeID()]
}

// Err returns the load error for a row, if any.
func (c *CurrentState) Err(row *model.Row) error {
	if c == nil {
		return nil
	}
	return c.Errors[row.NodeID()]
}

// StateLoader fetches current resource state for every input row, with
// bounded concurrency and a path cache in front of the natural-key lookups.
type StateLoader struct {
	client Client
	cache  *resolvercache.Cache
	limit  int
}

// NewStateLoader returns a loader. cache may be nil; limit <= 0 uses the
// default.
func NewStateLoader(client Client, cache *resolvercache.Cache, limit int) *StateLoader {
	if limit <= 0 {
		limit = DefaultLoadConcurrency
	}
	return &StateLoader{client: client, cache: cache, limit: limit}
}

// Load resolves every row's current state concurrently. Only a canceled
// context aborts the load; individual lookup failures land in Errors.
func (l *StateLoader) Load(ctx context.Context, rows []*model.Row) (*CurrentState, error) {
	out := &CurrentState{
		States: make(map[string]*model.ResourceState, len(rows)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.limit)
	for _, row := range rows {
		g.Go(func() error {
			state, err := l.loadRow(ctx, row)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				out.Errors[row.NodeID()] = err
				return nil
			}
			out.States[row.NodeID()] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadRow fetches one row's state: direct by id when the row carries one,
// otherwise through the cache and the type's natural-key lookup. A missing
// resource is a nil state, not an error.
func (l *StateLoader) loadRow(ctx context.Context, row *model.Row) (*model.ResourceState, error) {
	if row.BAMID != 0 {
		entity, err := l.client.GetEntityByID(ctx, row.BAMID)
		if errors.Is(err, bam.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return entity.State(), nil
	}

	path := resourcePath(row)
	if l.cache != nil {
		if id, ok := l.cache.Get(path, string(row.ObjectType)); ok {
			entity, err := l.client.GetEntityByID(ctx, id)
			if err == nil {
				return entity.State(), nil
			}
			if !errors.Is(err, bam.ErrNotFound) {
				return nil, err
			}
			// Stale entry; fall back to the natural-key lookup.
			l.cache.Invalidate(path, string(row.ObjectType))
		}
	}

	if row.NaturalKey() == "" {
		return nil, nil
	}
	entity, err := conflictLookup(ctx, l.client, row)
	if errors.Is(err, bam.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		l.cache.Put(path, string(row.ObjectType), entity.ID)
	}
	return entity.State(), nil
}
