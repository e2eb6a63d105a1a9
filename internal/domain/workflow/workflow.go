package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Status represents workflow status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusComplete  Status = "COMPLETE"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Candidate is one externally-sourced match proposed for a request item.
type Candidate struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	URL        string `json:"url"`
	URI        string `json:"uri,omitempty"`
}

// ManualOverride is a user-supplied selection that bypasses the candidate list.
type ManualOverride struct {
	Link string `json:"link"`
	Note string `json:"note,omitempty"`
}

// Selection records the chosen candidate or manual override for one item.
// Exactly one of Candidate and Override is set.
type Selection struct {
	Candidate  *Candidate      `json:"candidate,omitempty"`
	Override   *ManualOverride `json:"override,omitempty"`
	SelectedBy int64           `json:"selectedBy"`
	SelectedAt time.Time       `json:"selectedAt"`
}

// Manual reports whether the selection is a manual override.
func (s Selection) Manual() bool {
	return s.Candidate == nil && s.Override != nil
}

// Equivalent reports whether two selections carry the same decision by the
// same approver. Timestamps are ignored so a retried event compares equal.
func (s Selection) Equivalent(other Selection) bool {
	if s.SelectedBy != other.SelectedBy {
		return false
	}
	if s.Candidate != nil && other.Candidate != nil {
		return s.Candidate.ExternalID == other.Candidate.ExternalID
	}
	if s.Override != nil && other.Override != nil {
		return *s.Override == *other.Override
	}
	return false
}

// RequestItem is one song entry within a workflow requiring a selection.
type RequestItem struct {
	Index      int         `json:"index"`
	Label      string      `json:"label"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// MaxCandidates bounds the ranked matches kept per item.
const MaxCandidates = 3

// SelectionMap is a sparse item-index keyed map of selections. Keys always
// serialize as decimal strings; JSONB map keys are strings, and mixing key
// types across a restart silently drops selections on reload.
type SelectionMap map[int]Selection

func (m SelectionMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]Selection, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}
	return json.Marshal(out)
}

func (m *SelectionMap) UnmarshalJSON(data []byte) error {
	raw := make(map[string]Selection)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := make(SelectionMap, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("non-numeric selection key %q: %w", k, err)
		}
		parsed[idx] = v
	}
	*m = parsed
	return nil
}

// Dispatch is the per-approver notification record: the summary message plus
// one message per item. Message ids feed the routing table.
type Dispatch struct {
	ApproverID       int64   `json:"approverId"`
	SummaryMessageID int64   `json:"summaryMessageId"`
	ItemMessageIDs   []int64 `json:"itemMessageIds"`
}

// Workflow is a durable record tracking approval state for one batch of
// song requests. The id is an externally issued message identifier and is
// never reused.
type Workflow struct {
	ID              string        `json:"workflowId"`
	GuildID         int64         `json:"guildId"`
	OriginChannelID int64         `json:"originChannelId"`
	OriginMessageID int64         `json:"originMessageId"`
	Items           []RequestItem `json:"items"`
	Selections      SelectionMap  `json:"selections"`
	Dispatches      []Dispatch    `json:"dispatches,omitempty"`
	ApproverIDs     []int64       `json:"approverIds"`
	Status          Status        `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// ValidIndex reports whether i addresses an item of this workflow.
func (w *Workflow) ValidIndex(i int) bool {
	return i >= 0 && i < len(w.Items)
}

// MissingIndices returns the sorted item indices without a selection.
func (w *Workflow) MissingIndices() []int {
	var missing []int
	for i := range w.Items {
		if _, ok := w.Selections[i]; !ok {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing
}

// Complete reports whether every item has a selection.
func (w *Workflow) Complete() bool {
	return len(w.MissingIndices()) == 0
}

// Clone returns a deep copy so cached state never aliases caller state.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.Items = make([]RequestItem, len(w.Items))
	for i, item := range w.Items {
		cp.Items[i] = item
		cp.Items[i].Candidates = append([]Candidate(nil), item.Candidates...)
	}
	cp.Selections = make(SelectionMap, len(w.Selections))
	for k, v := range w.Selections {
		cp.Selections[k] = v
	}
	cp.Dispatches = make([]Dispatch, len(w.Dispatches))
	for i, d := range w.Dispatches {
		cp.Dispatches[i] = d
		cp.Dispatches[i].ItemMessageIDs = append([]int64(nil), d.ItemMessageIDs...)
	}
	cp.ApproverIDs = append([]int64(nil), w.ApproverIDs...)
	return &cp
}
