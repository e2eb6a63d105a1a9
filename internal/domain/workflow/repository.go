package workflow

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Store,Matcher,Dispatcher,Builder

import (
	"context"
)

// Store is durable keyed storage for workflows, one document per id. Each
// document is an independent unit of atomicity; it is the source of truth
// across restarts.
type Store interface {
	// Create persists a new workflow. Returns ErrDuplicateKey if the id
	// already exists.
	Create(ctx context.Context, wf *Workflow) error

	// Get returns the workflow or ErrNotFound.
	Get(ctx context.Context, id string) (*Workflow, error)

	// ListActive returns PENDING workflows ordered by id, starting after
	// afterID. Restartable pagination; used only to rehydrate the cache at
	// process start.
	ListActive(ctx context.Context, afterID string, limit int) ([]*Workflow, error)

	// ApplySelection atomically sets one selection key on one document and
	// bumps updated_at. Returns ErrNotFound if the workflow is absent.
	// Re-applying an identical selection succeeds.
	ApplySelection(ctx context.Context, id string, itemIndex int, sel Selection) error

	// SetDispatches records the per-approver dispatch message ids.
	SetDispatches(ctx context.Context, id string, dispatches []Dispatch) error

	// UpdateStatus persists a status transition.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// Delete removes the workflow. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
}

// Matcher proposes ranked candidates for a request label. Called once per
// item at workflow creation; retries, caching and rate limiting are the
// collaborator's responsibility.
type Matcher interface {
	FindCandidates(ctx context.Context, label string) ([]Candidate, error)
}

// Dispatcher fans out per-approver decision requests. Failures are
// non-fatal to workflow state: the record persists regardless, so a manual
// re-notify can recover later without losing selections.
type Dispatcher interface {
	Notify(ctx context.Context, wf *Workflow, approverID int64) (*Dispatch, error)
	NotifyMissing(ctx context.Context, workflowID string, missing []int) error
}

// Builder turns a completed selection set into a shareable artifact.
type Builder interface {
	Build(ctx context.Context, wf *Workflow) (string, error)
}
