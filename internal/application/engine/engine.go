package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/playlist-hub/playlist-hub/internal/domain/routing"
	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

// Engine drives the approval state machine. The store is the source of
// truth; the cache is write-through and rebuilt from scratch on restart.
// Mutations against one workflow id serialize on a per-key lock; different
// workflows never contend. Cached values are immutable once installed:
// mutators replace the whole entry through cachePut, so unlocked readers
// such as Active never observe a partial write.
type Engine struct {
	store       workflow.Store
	matcher     workflow.Matcher
	dispatcher  workflow.Dispatcher
	builder     workflow.Builder
	routes      *routing.Table
	callTimeout time.Duration
	logger      zerolog.Logger

	locks sync.Map // workflow id -> *sync.Mutex

	mu    sync.RWMutex
	cache map[string]*workflow.Workflow
}

func New(
	store workflow.Store,
	matcher workflow.Matcher,
	dispatcher workflow.Dispatcher,
	builder workflow.Builder,
	callTimeout time.Duration,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		store:       store,
		matcher:     matcher,
		dispatcher:  dispatcher,
		builder:     builder,
		routes:      routing.NewTable(),
		callTimeout: callTimeout,
		logger:      logger.With().Str("service", "engine").Logger(),
		cache:       make(map[string]*workflow.Workflow),
	}
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	l, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.callTimeout)
}

// Create builds a new PENDING workflow and persists it before any
// notification is sent. A crash between persist and notify leaves a
// recoverable record instead of an orphaned notification.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*workflow.Workflow, error) {
	if req.WorkflowID == "" {
		return nil, fmt.Errorf("workflow id required")
	}
	if len(req.Labels) == 0 {
		return nil, fmt.Errorf("at least one request item required")
	}
	if len(req.ApproverIDs) == 0 {
		return nil, fmt.Errorf("at least one approver required")
	}

	intakeID := uuid.NewString()
	logger := e.logger.With().Str("workflow_id", req.WorkflowID).Str("intake_id", intakeID).Logger()

	items := make([]workflow.RequestItem, len(req.Labels))
	for i, label := range req.Labels {
		callCtx, cancel := e.withTimeout(ctx)
		candidates, err := e.matcher.FindCandidates(callCtx, label)
		cancel()
		if err != nil {
			return nil, &workflow.ExternalCallError{Op: "find candidates", Err: err}
		}
		if len(candidates) > workflow.MaxCandidates {
			candidates = candidates[:workflow.MaxCandidates]
		}
		items[i] = workflow.RequestItem{Index: i, Label: label, Candidates: candidates}
	}

	now := time.Now().UTC()
	wf := &workflow.Workflow{
		ID:              req.WorkflowID,
		GuildID:         req.GuildID,
		OriginChannelID: req.OriginChannelID,
		OriginMessageID: req.OriginMessageID,
		Items:           items,
		Selections:      make(workflow.SelectionMap),
		ApproverIDs:     append([]int64(nil), req.ApproverIDs...),
		Status:          workflow.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	lock := e.lockFor(wf.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.store.Create(ctx, wf); err != nil {
		return nil, err
	}
	e.cachePut(wf)
	logger.Info().Int("items", len(items)).Int("approvers", len(req.ApproverIDs)).Msg("workflow created")

	// Dispatch failures are non-fatal: the record is durable, a manual
	// re-notify can recover without losing anything.
	var dispatches []workflow.Dispatch
	for _, approverID := range req.ApproverIDs {
		callCtx, cancel := e.withTimeout(ctx)
		d, err := e.dispatcher.Notify(callCtx, wf.Clone(), approverID)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Int64("approver_id", approverID).Msg("failed to notify approver")
			continue
		}
		dispatches = append(dispatches, *d)
		e.routes.BindDispatch(wf.ID, d)
	}
	if len(dispatches) > 0 {
		if err := e.store.SetDispatches(ctx, wf.ID, dispatches); err != nil {
			logger.Warn().Err(err).Msg("failed to persist dispatch ids")
		} else {
			wf.Dispatches = dispatches
			e.cachePut(wf)
		}
	}

	return wf.Clone(), nil
}

// ApplySelection validates bounds, overwrites any prior selection for the
// index (last-write-wins), persists, then updates the cache. Completeness
// is recomputed but never auto-triggers a build.
func (e *Engine) ApplySelection(ctx context.Context, ev SelectionEvent) error {
	lock := e.lockFor(ev.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	wf, err := e.lookup(ctx, ev.WorkflowID)
	if err != nil {
		return err
	}
	if wf.Status == workflow.StatusComplete {
		return workflow.ErrImmutable
	}
	if !wf.ValidIndex(ev.ItemIndex) {
		return fmt.Errorf("item %d: %w", ev.ItemIndex, workflow.ErrIndexOutOfRange)
	}

	sel := workflow.Selection{SelectedBy: ev.ActorID, SelectedAt: time.Now().UTC()}
	switch {
	case ev.CandidateIndex != nil:
		item := wf.Items[ev.ItemIndex]
		ci := *ev.CandidateIndex
		if ci < 0 || ci >= len(item.Candidates) {
			return fmt.Errorf("candidate %d for item %d: %w", ci, ev.ItemIndex, workflow.ErrIndexOutOfRange)
		}
		cand := item.Candidates[ci]
		sel.Candidate = &cand
	case ev.Override != nil:
		ov := *ev.Override
		sel.Override = &ov
	default:
		return fmt.Errorf("selection event carries neither candidate nor override")
	}

	// Identical retry is a no-op that still succeeds, without advancing
	// updated_at (the sweep clock).
	if prior, ok := wf.Selections[ev.ItemIndex]; ok && prior.Equivalent(sel) {
		return nil
	}

	if err := e.store.ApplySelection(ctx, wf.ID, ev.ItemIndex, sel); err != nil {
		return err
	}
	updated := wf.Clone()
	updated.Selections[ev.ItemIndex] = sel
	updated.UpdatedAt = sel.SelectedAt
	e.cachePut(updated)
	wf = updated

	e.logger.Info().
		Str("workflow_id", wf.ID).
		Int("item", ev.ItemIndex).
		Int64("actor_id", ev.ActorID).
		Bool("manual", sel.Manual()).
		Int("missing", len(wf.MissingIndices())).
		Msg("selection applied")
	return nil
}

// Finalize checks completeness. Incomplete workflows are reported with
// their exact missing indices and left untouched and alive. Complete
// workflows transition to COMPLETE, the builder runs, and the workflow is
// deleted only if the build succeeds; a failed build leaves it COMPLETE so
// a retry is a pure idempotent re-invocation.
func (e *Engine) Finalize(ctx context.Context, ev FinalizeEvent) (string, error) {
	lock := e.lockFor(ev.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	wf, err := e.lookup(ctx, ev.WorkflowID)
	if err != nil {
		return "", err
	}

	if missing := wf.MissingIndices(); len(missing) > 0 {
		callCtx, cancel := e.withTimeout(ctx)
		if err := e.dispatcher.NotifyMissing(callCtx, wf.ID, missing); err != nil {
			e.logger.Warn().Err(err).Str("workflow_id", wf.ID).Msg("failed to send missing-selection notice")
		}
		cancel()
		return "", &workflow.MissingSelectionsError{Indices: missing}
	}

	if wf.Status == workflow.StatusPending {
		if err := e.store.UpdateStatus(ctx, wf.ID, workflow.StatusComplete); err != nil {
			return "", err
		}
		updated := wf.Clone()
		updated.Status = workflow.StatusComplete
		e.cachePut(updated)
		wf = updated
	}

	callCtx, cancel := e.withTimeout(ctx)
	artifactURL, err := e.builder.Build(callCtx, wf.Clone())
	cancel()
	if err != nil {
		// Still COMPLETE and undeleted: the selection set is intact and a
		// later finalize re-invokes the build with the same inputs.
		e.logger.Error().Err(err).Str("workflow_id", wf.ID).Msg("playlist build failed")
		return "", &workflow.ExternalCallError{Op: "build playlist", Err: err}
	}

	if err := e.store.Delete(ctx, wf.ID); err != nil {
		return "", err
	}
	e.cacheDelete(wf.ID)
	e.routes.DropWorkflow(wf.ID)
	e.logger.Info().
		Str("workflow_id", wf.ID).
		Int64("actor_id", ev.ActorID).
		Str("artifact_url", artifactURL).
		Msg("workflow finalized")
	return artifactURL, nil
}

// Cancel deletes unconditionally, regardless of current status. Cancelling
// an absent workflow is not an error.
func (e *Engine) Cancel(ctx context.Context, ev CancelEvent) error {
	lock := e.lockFor(ev.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.store.Delete(ctx, ev.WorkflowID); err != nil {
		return err
	}
	e.cacheDelete(ev.WorkflowID)
	e.routes.DropWorkflow(ev.WorkflowID)
	e.logger.Info().Str("workflow_id", ev.WorkflowID).Int64("actor_id", ev.ActorID).Msg("workflow cancelled")
	return nil
}

// Sweep expires PENDING workflows idle longer than ttl. It takes the same
// per-workflow lock as ordinary mutation, so it cannot race an in-flight
// selection or finalize; COMPLETE-pending-build workflows are never swept.
func (e *Engine) Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	cutoff := now.Add(-ttl)

	e.mu.RLock()
	ids := make([]string, 0, len(e.cache))
	for id := range e.cache {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	expired := 0
	for _, id := range ids {
		lock := e.lockFor(id)
		lock.Lock()
		e.mu.RLock()
		wf := e.cache[id]
		e.mu.RUnlock()
		if wf == nil || wf.Status != workflow.StatusPending || !wf.UpdatedAt.Before(cutoff) {
			lock.Unlock()
			continue
		}
		if err := e.store.UpdateStatus(ctx, id, workflow.StatusExpired); err != nil && !errors.Is(err, workflow.ErrNotFound) {
			lock.Unlock()
			return expired, err
		}
		if err := e.store.Delete(ctx, id); err != nil {
			lock.Unlock()
			return expired, err
		}
		e.cacheDelete(id)
		e.routes.DropWorkflow(id)
		expired++
		e.logger.Info().Str("workflow_id", id).Time("updated_at", wf.UpdatedAt).Msg("workflow expired")
		lock.Unlock()
	}
	return expired, nil
}

// Rehydrate discards the cache entirely and rebuilds it from the store's
// active set, rebinding routing entries from persisted dispatch ids.
func (e *Engine) Rehydrate(ctx context.Context) (int, error) {
	e.mu.Lock()
	e.cache = make(map[string]*workflow.Workflow)
	e.mu.Unlock()
	e.routes.Reset()

	loaded := 0
	afterID := ""
	for {
		page, err := e.store.ListActive(ctx, afterID, rehydratePageSize)
		if err != nil {
			return loaded, err
		}
		if len(page) == 0 {
			return loaded, nil
		}
		for _, wf := range page {
			e.cachePut(wf)
			for i := range wf.Dispatches {
				e.routes.BindDispatch(wf.ID, &wf.Dispatches[i])
			}
			afterID = wf.ID
			loaded++
		}
	}
}

const rehydratePageSize = 200

// Resolve maps a dispatch message id back to its pending decision, for the
// upstream event router.
func (e *Engine) Resolve(messageID int64) (routing.Ref, bool) {
	return e.routes.Resolve(messageID)
}

// Get returns a copy of one cached workflow, falling back to the store.
func (e *Engine) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	wf, err := e.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return wf.Clone(), nil
}

// Summary is the ops view of one active workflow.
type Summary struct {
	WorkflowID string          `json:"workflowId"`
	GuildID    int64           `json:"guildId"`
	Status     workflow.Status `json:"status"`
	Items      int             `json:"items"`
	Selected   int             `json:"selected"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Active returns summaries of every cached workflow.
func (e *Engine) Active() []Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Summary, 0, len(e.cache))
	for _, wf := range e.cache {
		out = append(out, Summary{
			WorkflowID: wf.ID,
			GuildID:    wf.GuildID,
			Status:     wf.Status,
			Items:      len(wf.Items),
			Selected:   len(wf.Selections),
			UpdatedAt:  wf.UpdatedAt,
		})
	}
	return out
}

// lookup returns the current workflow, loading from the store on a cache
// miss. Callers hold the per-key lock and must not mutate the result in
// place; mutators clone it and publish the clone through cachePut.
func (e *Engine) lookup(ctx context.Context, id string) (*workflow.Workflow, error) {
	e.mu.RLock()
	wf := e.cache[id]
	e.mu.RUnlock()
	if wf != nil {
		return wf, nil
	}
	wf, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.cachePut(wf)
	return wf, nil
}

func (e *Engine) cachePut(wf *workflow.Workflow) {
	e.mu.Lock()
	e.cache[wf.ID] = wf.Clone()
	e.mu.Unlock()
}

func (e *Engine) cacheDelete(id string) {
	e.mu.Lock()
	delete(e.cache, id)
	e.mu.Unlock()
	// Ids are never reused, so dropping the lock entry is safe: any later
	// event for this id only observes NotFound.
	e.locks.Delete(id)
}
