// Package routing maps inbound dispatch message ids to the pending decision
// they belong to. This is routing metadata, not domain state: it lives
// outside the workflow document and is rebuilt from persisted dispatch ids
// on restart.
package routing

import (
	"sync"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

// SummaryIndex marks a binding to an approver's summary message rather than
// a specific item message.
const SummaryIndex = -1

// Ref identifies the decision a dispatch message belongs to.
type Ref struct {
	WorkflowID string
	ItemIndex  int
	ApproverID int64
}

// Table is an in-memory message-id index. Safe for concurrent use.
type Table struct {
	mu         sync.RWMutex
	refs       map[int64]Ref
	byWorkflow map[string][]int64
}

func NewTable() *Table {
	return &Table{
		refs:       make(map[int64]Ref),
		byWorkflow: make(map[string][]int64),
	}
}

// Bind registers one message id.
func (t *Table) Bind(messageID int64, ref Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[messageID] = ref
	t.byWorkflow[ref.WorkflowID] = append(t.byWorkflow[ref.WorkflowID], messageID)
}

// BindDispatch registers every message of a per-approver dispatch: item
// messages with their index, the summary message with SummaryIndex.
func (t *Table) BindDispatch(workflowID string, d *workflow.Dispatch) {
	for i, msgID := range d.ItemMessageIDs {
		t.Bind(msgID, Ref{WorkflowID: workflowID, ItemIndex: i, ApproverID: d.ApproverID})
	}
	if d.SummaryMessageID != 0 {
		t.Bind(d.SummaryMessageID, Ref{WorkflowID: workflowID, ItemIndex: SummaryIndex, ApproverID: d.ApproverID})
	}
}

// Resolve looks up the decision a message id routes to.
func (t *Table) Resolve(messageID int64) (Ref, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.refs[messageID]
	return ref, ok
}

// Reset drops every binding.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs = make(map[int64]Ref)
	t.byWorkflow = make(map[string][]int64)
}

// DropWorkflow removes every binding of one workflow.
func (t *Table) DropWorkflow(workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msgID := range t.byWorkflow[workflowID] {
		delete(t.refs, msgID)
	}
	delete(t.byWorkflow, workflowID)
}

// Len returns the number of bound message ids.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.refs)
}
