package engine

import (
	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

// SelectionEvent is an approver picking a candidate (by index into the
// item's candidate list) or supplying a manual override. Exactly one of
// CandidateIndex and Override is set.
type SelectionEvent struct {
	WorkflowID     string
	ItemIndex      int
	CandidateIndex *int
	Override       *workflow.ManualOverride
	ActorID        int64
}

// FinalizeEvent is an explicit completeness check and build trigger.
type FinalizeEvent struct {
	WorkflowID string
	ActorID    int64
}

// CancelEvent discards a workflow unconditionally.
type CancelEvent struct {
	WorkflowID string
	ActorID    int64
}

// CreateRequest describes a detected request batch.
type CreateRequest struct {
	WorkflowID      string
	GuildID         int64
	OriginChannelID int64
	OriginMessageID int64
	Labels          []string
	ApproverIDs     []int64
}
