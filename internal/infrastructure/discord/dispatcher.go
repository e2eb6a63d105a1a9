package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

// Keycap digits in fully qualified form (digit, U+FE0F variation selector,
// U+20E3 combining keycap); the reaction endpoint rejects the unqualified
// sequence.
var selectEmojis = []string{"1️⃣", "2️⃣", "3️⃣"}

const (
	approveEmoji = "✅"
	rejectEmoji  = "❌"
)

// Dispatcher implements workflow.Dispatcher: one DM message per item with
// numbered reactions plus a summary message carrying approve/cancel.
type Dispatcher struct {
	client  *Client
	adminID int64
}

func NewDispatcher(client *Client, adminID int64) *Dispatcher {
	return &Dispatcher{client: client, adminID: adminID}
}

// Notify sends the full decision request to one approver. Returned message
// ids feed the routing table and are persisted on the workflow.
func (d *Dispatcher) Notify(ctx context.Context, wf *workflow.Workflow, approverID int64) (*workflow.Dispatch, error) {
	channelID, err := d.client.CreateDM(ctx, approverID)
	if err != nil {
		return nil, err
	}

	dispatch := &workflow.Dispatch{ApproverID: approverID}
	for _, item := range wf.Items {
		msgID, err := d.client.SendMessage(ctx, channelID, itemMessage(item), uuid.NewString())
		if err != nil {
			return nil, err
		}
		dispatch.ItemMessageIDs = append(dispatch.ItemMessageIDs, msgID)
		for i := range item.Candidates {
			if err := d.client.AddReaction(ctx, channelID, msgID, selectEmojis[i]); err != nil {
				return nil, err
			}
		}
	}

	summaryID, err := d.client.SendMessage(ctx, channelID, summaryMessage(wf), uuid.NewString())
	if err != nil {
		return nil, err
	}
	dispatch.SummaryMessageID = summaryID
	if err := d.client.AddReaction(ctx, channelID, summaryID, approveEmoji); err != nil {
		return nil, err
	}
	if err := d.client.AddReaction(ctx, channelID, summaryID, rejectEmoji); err != nil {
		return nil, err
	}

	d.client.logger.Info().Str("workflow_id", wf.ID).Int64("approver_id", approverID).
		Int("messages", len(dispatch.ItemMessageIDs)+1).Msg("approver notified")
	return dispatch, nil
}

// NotifyMissing tells the admin which items still need a decision.
func (d *Dispatcher) NotifyMissing(ctx context.Context, workflowID string, missing []int) error {
	channelID, err := d.client.CreateDM(ctx, d.adminID)
	if err != nil {
		return err
	}
	lines := make([]string, len(missing))
	for i, idx := range missing {
		lines[i] = fmt.Sprintf("- item %d", idx+1)
	}
	content := fmt.Sprintf("⚠️ Cannot build playlist for workflow %s - missing selections:\n%s",
		workflowID, strings.Join(lines, "\n"))
	_, err = d.client.SendMessage(ctx, channelID, content, uuid.NewString())
	return err
}

func itemMessage(item workflow.RequestItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Song %d: %s**\n", item.Index+1, item.Label)
	if len(item.Candidates) == 0 {
		b.WriteString("No matches found. Reply with a link to select manually.")
		return b.String()
	}
	for i, c := range item.Candidates {
		fmt.Fprintf(&b, "%s [%s](%s)\n%s - %s\n", selectEmojis[i], c.Name, c.URL, c.Artist, c.Album)
	}
	return b.String()
}

func summaryMessage(wf *workflow.Workflow) string {
	return fmt.Sprintf(
		"**Setlist approval - %d songs**\nPick an option on each song above, then react %s here to build the playlist or %s to cancel.",
		len(wf.Items), approveEmoji, rejectEmoji)
}
