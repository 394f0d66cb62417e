package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/ipamtools/bamsync/internal/bam"
	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/graph"
	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/plan"
	"github.com/ipamtools/bamsync/internal/resolvercache"
	"github.com/ipamtools/bamsync/internal/store"
	"github.com/ipamtools/bamsync/internal/telemetry"
	"github.com/ipamtools/bamsync/internal/throttle"
)

// Config wires an executor to a session and its collaborators. Checkpoints,
// ChangeLog, Cache, and Metrics are all optional; a nil store simply skips
// that concern.
type Config struct {
	SessionID string
	InputHash string

	// DryRun short-circuits every server mutation and persists nothing.
	// Created-resource maps still fill with synthetic ids so deferred
	// resolution can be evaluated end to end.
	DryRun bool

	// AllowDangerous is passed to DELETE calls; it permits removing
	// containers that still hold children.
	AllowDangerous bool

	// StartBatch skips every batch with a smaller id. Used on resume
	// together with Created.
	StartBatch int

	// Completed seeds the progress counter on resume.
	Completed int

	// Created primes deferred resolution with ids from an interrupted
	// session. Nil starts empty.
	Created store.CreatedResources

	Checkpoints store.CheckpointStore
	ChangeLog   store.ChangeLog
	Cache       *resolvercache.Cache
	Metrics     *telemetry.EngineMetrics
}

// Result is the terminal outcome of one operation.
type Result struct {
	Op         *model.Operation `json:"operation"`
	Success    bool             `json:"success"`
	ResourceID int64            `json:"resource_id,omitempty"`
	Error      string           `json:"error,omitempty"`
	Latency    time.Duration    `json:"latency"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// Skipped reports whether this result is a cascade skip rather than a real
// failure.
func (r *Result) Skipped() bool {
	v, _ := r.Metadata["skipped"].(bool)
	return v
}

// Executor drives an execution plan: batches strictly in order, operations
// within a batch concurrently under the throttle. All operation and map
// mutation happens on the coordinator goroutine; dispatch goroutines only
// talk to the server and report outcomes on a channel.
type Executor struct {
	client   Client
	throttle *throttle.Throttle
	cfg      Config

	// created is read by dispatch goroutines during a batch and mutated by
	// the coordinator only between batches, so no lock is needed.
	created store.CreatedResources

	skipped map[string]string
	failed  map[string]bool
	lastErr string
}

// NewExecutor returns an executor for one session.
func NewExecutor(client Client, th *throttle.Throttle, cfg Config) *Executor {
	created := cfg.Created
	if created == nil {
		created = make(store.CreatedResources)
	}
	if th == nil {
		th = throttle.New(throttle.Config{})
	}
	return &Executor{
		client:   client,
		throttle: th,
		cfg:      cfg,
		created:  created,
		skipped:  make(map[string]string),
		failed:   make(map[string]bool),
	}
}

// CreatedResources exposes the created-id maps, primarily for tests and
// reports.
func (e *Executor) CreatedResources() store.CreatedResources { return e.created }

// outcome is what a dispatch goroutine reports back to the coordinator.
type outcome struct {
	op       *model.Operation
	id       int64
	meta     map[string]any
	err      error
	started  time.Time
	finished time.Time
}

// ExecutePlan runs every batch of p against the graph's dependency
// bookkeeping. Cancellation is honored between batches: in-flight operations
// run to a terminal state, the checkpoint stays valid, and ctx.Err() is
// returned alongside the results so far.
func (e *Executor) ExecutePlan(ctx context.Context, g *graph.Graph, p *plan.Plan) ([]*Result, error) {
	var results []*Result
	for _, batch := range p.Batches {
		if batch.ID < e.cfg.StartBatch {
			debug.Logf("executor: skipping batch %d (resume from %d)\n", batch.ID, e.cfg.StartBatch)
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		results = append(results, e.executeBatch(ctx, g, batch)...)
		e.saveCheckpoint(ctx, batch.ID+1, e.cfg.Completed+len(results), p.TotalOperations)
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.RecordCapacity(ctx, e.throttle.Capacity())
		}
	}

	e.finalizeSession(ctx, results)
	return results, ctx.Err()
}

// executeBatch fans the batch out, joins every outcome, then applies all
// mutations in the batch's deterministic order.
func (e *Executor) executeBatch(ctx context.Context, g *graph.Graph, batch *plan.Batch) []*Result {
	var dispatch []*model.Operation
	results := make([]*Result, 0, len(batch.Operations))

	for _, op := range batch.Operations {
		if reason, ok := e.skipCheck(op); ok {
			results = append(results, e.skipResult(op, reason))
			continue
		}
		if msg, ok := op.Payload[payloadErrorKey].(string); ok {
			results = append(results, e.failRowError(ctx, g, op, msg))
			continue
		}
		dispatch = append(dispatch, op)
	}

	if len(dispatch) == 0 {
		return results
	}

	// In-flight operations must reach a terminal state even when the plan
	// is canceled; the batch loop stops before the next batch instead.
	opCtx := context.WithoutCancel(ctx)
	ch := make(chan *outcome, len(dispatch))
	for _, op := range dispatch {
		op.Status = model.StatusInProgress
		go e.dispatch(opCtx, op, ch)
	}

	outcomes := make(map[string]*outcome, len(dispatch))
	for range dispatch {
		o := <-ch
		outcomes[o.op.NodeID()] = o
	}
	for _, op := range dispatch {
		results = append(results, e.applyOutcome(ctx, g, outcomes[op.NodeID()]))
	}
	return results
}

// skipCheck consults the cascade skip set.
func (e *Executor) skipCheck(op *model.Operation) (string, bool) {
	if reason, ok := e.skipped[op.NodeID()]; ok {
		return reason, true
	}
	if op.Status == model.StatusSkipped {
		return op.ErrorMessage, true
	}
	return "", false
}

func (e *Executor) skipResult(op *model.Operation, reason string) *Result {
	op.Status = model.StatusSkipped
	op.ErrorMessage = reason
	r := &Result{
		Op:       op,
		Error:    reason,
		Metadata: map[string]any{"skipped": true},
	}
	e.recordMetrics(op, r)
	return r
}

// failRowError short-circuits an operation the factory already rejected:
// no server call, immediate FAILED, cascade to dependents.
func (e *Executor) failRowError(ctx context.Context, g *graph.Graph, op *model.Operation, msg string) *Result {
	op.Status = model.StatusFailed
	op.ErrorMessage = msg
	e.cascadeFailure(g, op.NodeID(), msg)
	e.lastErr = msg

	meta := map[string]any{"validation": true}
	if tb, ok := op.Payload[payloadTracebackKey].(string); ok {
		meta["traceback"] = tb
	}
	r := &Result{Op: op, Error: msg, Metadata: meta}
	e.recordMetrics(op, r)
	return r
}

// dispatch is the goroutine body for one operation: working copy, deferred
// resolution, throttled server call with the one-shot rate-limit retry. It
// never mutates the original operation.
func (e *Executor) dispatch(ctx context.Context, op *model.Operation, ch chan<- *outcome) {
	o := &outcome{op: op, started: time.Now()}
	defer func() {
		o.finished = time.Now()
		ch <- o
	}()

	working := op.WorkingCopy()
	if err := resolveDeferred(working, e.created); err != nil {
		o.err = err
		return
	}
	o.id, o.meta, o.err = e.perform(ctx, working)
}

// perform acquires a throttle slot, calls the server, and feeds the throttle.
// A rate-limit response sleeps the server-provided hint and retries exactly
// once through the same acquire point.
func (e *Executor) perform(ctx context.Context, working *model.Operation) (int64, map[string]any, error) {
	id, meta, latency, err := e.throttledCall(ctx, working)
	if retryAfter, ok := bam.AsRateLimit(err); ok {
		e.throttle.RecordFailure(true)
		debug.Logf("executor: rate limited on %s, retrying in %s\n", working.NodeID(), retryAfter)
		time.Sleep(retryAfter)
		id, meta, latency, err = e.throttledCall(ctx, working)
	}
	if err != nil {
		_, isRateLimit := bam.AsRateLimit(err)
		e.throttle.RecordFailure(isRateLimit)
		return 0, meta, err
	}
	e.throttle.RecordSuccess(latency)
	return id, meta, nil
}

func (e *Executor) throttledCall(ctx context.Context, working *model.Operation) (int64, map[string]any, time.Duration, error) {
	if err := e.throttle.Acquire(ctx); err != nil {
		return 0, nil, 0, err
	}
	defer e.throttle.Release()

	start := time.Now()
	id, meta, err := e.call(ctx, working)
	return id, meta, time.Since(start), err
}

// call dispatches one resolved operation by type.
func (e *Executor) call(ctx context.Context, working *model.Operation) (int64, map[string]any, error) {
	switch working.Type {
	case model.OpNoop:
		return working.ResourceID, nil, nil
	case model.OpOrphan:
		// Orphans are report-only; deletion requires an explicit CSV row.
		return working.ResourceID, map[string]any{"orphan": true}, nil
	case model.OpCreate:
		return e.create(ctx, working)
	case model.OpUpdate:
		if e.cfg.DryRun {
			return working.ResourceID, nil, nil
		}
		if _, err := e.client.UpdateEntityByID(ctx, working.ResourceID, sanitizePayload(working.Payload)); err != nil {
			return 0, nil, err
		}
		return working.ResourceID, nil, nil
	case model.OpDelete:
		if e.cfg.DryRun {
			return working.ResourceID, nil, nil
		}
		if err := e.client.DeleteEntityByID(ctx, working.ResourceID, e.cfg.AllowDangerous); err != nil {
			return 0, nil, err
		}
		return working.ResourceID, nil, nil
	default:
		return 0, nil, fmt.Errorf("unknown operation type %q", working.Type)
	}
}

// create performs a CREATE with the conflict fallback: a 409 means the
// resource already exists, so recover its id via the natural-key lookup and
// treat the operation as converged.
func (e *Executor) create(ctx context.Context, working *model.Operation) (int64, map[string]any, error) {
	if e.cfg.DryRun {
		return syntheticID(working.RowID), nil, nil
	}
	entity, err := e.client.CreateEntity(ctx, string(working.ObjectType), sanitizePayload(working.Payload))
	if err == nil {
		return entity.ID, nil, nil
	}
	if !errors.Is(err, bam.ErrAlreadyExists) || working.Row == nil {
		return 0, nil, err
	}
	existing, lookupErr := conflictLookup(ctx, e.client, working.Row)
	if lookupErr != nil || existing == nil {
		return 0, nil, err
	}
	return existing.ID, map[string]any{"already_exists": true}, nil
}

// applyOutcome is the single mutation path: statuses, created maps, cascade,
// change log, and cache invalidation all happen here, in batch order.
func (e *Executor) applyOutcome(ctx context.Context, g *graph.Graph, o *outcome) *Result {
	op := o.op
	op.StartedAt = o.started
	op.FinishedAt = o.finished
	latency := o.finished.Sub(o.started)

	meta := mergeMeta(op.Meta, o.meta)

	if o.err != nil {
		op.Status = model.StatusFailed
		op.ErrorMessage = o.err.Error()
		e.failed[op.NodeID()] = true
		e.lastErr = o.err.Error()
		e.cascadeFailure(g, op.NodeID(), o.err.Error())
		e.recordChangeLog(ctx, op, 0, o.err.Error())
		r := &Result{Op: op, Error: o.err.Error(), Latency: latency, Metadata: meta}
		e.recordMetrics(op, r)
		return r
	}

	op.Status = model.StatusSucceeded
	op.ResultID = o.id
	if op.Type == model.OpCreate {
		e.storeCreated(ctx, op, o.id)
	}
	if op.IsMutation() {
		e.invalidatePath(op)
	}
	e.recordChangeLog(ctx, op, o.id, "")

	r := &Result{Op: op, Success: true, ResourceID: o.id, Latency: latency, Metadata: meta}
	e.recordMetrics(op, r)
	return r
}

// cascadeFailure marks every transitive dependent of the failed node as
// SKIPPED so it is never dispatched.
func (e *Executor) cascadeFailure(g *graph.Graph, nodeID, errMsg string) {
	e.failed[nodeID] = true
	for _, depID := range g.TransitiveDependents(nodeID) {
		node, ok := g.Node(depID)
		if !ok || node.Op.Status.IsTerminal() {
			continue
		}
		reason := fmt.Sprintf("Skipped because parent %s failed: %s", nodeID, errMsg)
		node.Op.Status = model.StatusSkipped
		node.Op.ErrorMessage = reason
		e.skipped[depID] = reason
	}
}

// storeCreated records a successful CREATE's id under its natural keys, in
// memory always and in the checkpoint store when persistence is on.
func (e *Executor) storeCreated(ctx context.Context, op *model.Operation, id int64) {
	if op.Row == nil {
		return
	}
	class, keys, ok := createdKeys(op.Row)
	if !ok {
		return
	}
	for _, key := range keys {
		e.created.Put(class, key, id)
		if e.cfg.DryRun || e.cfg.Checkpoints == nil {
			continue
		}
		res := &store.CreatedResource{
			SessionID: e.cfg.SessionID,
			Class:     class,
			Key:       key,
			BAMID:     id,
		}
		if err := e.cfg.Checkpoints.SaveCreatedResource(ctx, res); err != nil {
			debug.Logf("executor: failed to persist created %s %s: %v\n", class, key, err)
		}
	}
}

// invalidatePath drops the mutated resource's path (and its parent) from the
// resolver cache.
func (e *Executor) invalidatePath(op *model.Operation) {
	if e.cfg.Cache == nil {
		return
	}
	path, _ := op.Payload[payloadPathKey].(string)
	if path == "" {
		return
	}
	e.cfg.Cache.Invalidate(path, string(op.ObjectType))
}

// recordChangeLog appends one audit entry for a dispatched mutation.
// NOOP/ORPHAN results and dry runs are not logged.
func (e *Executor) recordChangeLog(ctx context.Context, op *model.Operation, id int64, errMsg string) {
	if e.cfg.ChangeLog == nil || e.cfg.DryRun || !op.IsMutation() {
		return
	}
	entry := &store.ChangeLogEntry{
		SessionID:   e.cfg.SessionID,
		RowID:       op.RowID,
		ObjectType:  op.ObjectType,
		Operation:   op.Type,
		Success:     errMsg == "",
		ResourceID:  id,
		Error:       errMsg,
		BeforeState: op.Before,
		AfterState:  afterState(op, id, errMsg),
	}
	if err := e.cfg.ChangeLog.RecordOperation(ctx, entry); err != nil {
		debug.Logf("executor: failed to record change log for %s: %v\n", op.NodeID(), err)
	}
}

// afterState builds the post-mutation snapshot the rollback generator reads:
// identity plus verification fields for CREATE, the new field values for
// UPDATE.
func afterState(op *model.Operation, id int64, errMsg string) map[string]any {
	if errMsg != "" {
		return nil
	}
	switch op.Type {
	case model.OpCreate:
		after := map[string]any{"id": id, "type": string(op.ObjectType)}
		if op.Row != nil {
			if name := op.Row.Name(); name != "" {
				after["name"] = name
			}
			if addr := op.Row.Address(); addr != "" {
				after["address"] = addr
			}
			if cidr := op.Row.CIDR(); cidr != "" {
				after["cidr"] = cidr
			}
		}
		return after
	case model.OpUpdate:
		after := map[string]any{"id": id, "type": string(op.ObjectType)}
		for _, change := range op.Changes {
			after[change.Field] = change.New
		}
		return after
	}
	return nil
}

// saveCheckpoint persists progress after a batch. BatchID names the next
// batch to run, so a resume passes it straight to StartBatch.
func (e *Executor) saveCheckpoint(ctx context.Context, nextBatch, completed, total int) {
	if e.cfg.Checkpoints == nil || e.cfg.DryRun {
		return
	}
	cp := &store.Checkpoint{
		SessionID: e.cfg.SessionID,
		BatchID:   nextBatch,
		Completed: completed,
		Total:     total,
		Status:    store.SessionInProgress,
		InputHash: e.cfg.InputHash,
	}
	// Persistence must survive plan-level cancellation.
	if err := e.cfg.Checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
		debug.Logf("executor: failed to save checkpoint: %v\n", err)
	}
}

// finalizeSession marks the session terminal: completed on a clean run,
// failed with the last error otherwise.
func (e *Executor) finalizeSession(ctx context.Context, results []*Result) {
	if e.cfg.Checkpoints == nil || e.cfg.DryRun {
		return
	}
	ctx = context.WithoutCancel(ctx)
	failures := 0
	for _, r := range results {
		if !r.Success && !r.Skipped() {
			failures++
		}
	}
	var err error
	if failures == 0 {
		err = e.cfg.Checkpoints.MarkSessionCompleted(ctx, e.cfg.SessionID)
	} else {
		err = e.cfg.Checkpoints.MarkSessionFailed(ctx, e.cfg.SessionID, e.lastErr)
	}
	if err != nil {
		debug.Logf("executor: failed to finalize session %s: %v\n", e.cfg.SessionID, err)
	}
}

func (e *Executor) recordMetrics(op *model.Operation, r *Result) {
	if e.cfg.Metrics == nil {
		return
	}
	e.cfg.Metrics.RecordOperation(context.Background(), string(op.Type), string(op.ObjectType), r.Success, r.Skipped(), r.Latency)
}

func mergeMeta(base, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// syntheticID derives the deterministic dry-run id for a CREATE. Zero means
// unset everywhere else, so it is excluded.
func syntheticID(rowID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rowID))
	id := int64(h.Sum32() % 1_000_000)
	if id == 0 {
		id = 1
	}
	return id
}
