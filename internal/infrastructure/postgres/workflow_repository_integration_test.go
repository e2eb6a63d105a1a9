//go:build integration
// +build integration

package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

func newTestRepository(t *testing.T) *WorkflowRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE approval_workflows`)
	require.NoError(t, err)

	return NewWorkflowRepository(pool)
}

// Postgres keeps microsecond precision, so fixture timestamps are truncated
// to survive a round trip unchanged.
func testWorkflow(id string) *workflow.Workflow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &workflow.Workflow{
		ID:              id,
		GuildID:         42,
		OriginChannelID: 7,
		OriginMessageID: 9,
		Items: []workflow.RequestItem{
			{Index: 0, Label: "Salt Creek", Candidates: []workflow.Candidate{
				{ExternalID: "t1", Name: "Salt Creek", Artist: "Doc Watson", Album: "Live", URL: "https://open.spotify.com/track/t1", URI: "spotify:track:t1"},
			}},
			{Index: 1, Label: "Gold Rush"},
		},
		Selections:  make(workflow.SelectionMap),
		ApproverIDs: []int64{100},
		Status:      workflow.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepositoryCreateGetRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	wf := testWorkflow("wf-1")
	require.NoError(t, repo.Create(ctx, wf))

	got, err := repo.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, wf.GuildID, got.GuildID)
	assert.Equal(t, wf.Items, got.Items)
	assert.Equal(t, wf.ApproverIDs, got.ApproverIDs)
	assert.Equal(t, workflow.StatusPending, got.Status)
	assert.True(t, wf.CreatedAt.Equal(got.CreatedAt))
	assert.Empty(t, got.Selections)
}

func TestRepositoryCreateDuplicateKey(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testWorkflow("wf-1")))
	err := repo.Create(ctx, testWorkflow("wf-1"))
	require.ErrorIs(t, err, workflow.ErrDuplicateKey)
}

func TestRepositoryApplySelectionWritesStringKeys(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	wf := testWorkflow("wf-1")
	require.NoError(t, repo.Create(ctx, wf))

	sel := workflow.Selection{
		Candidate:  &wf.Items[0].Candidates[0],
		SelectedBy: 100,
		SelectedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.ApplySelection(ctx, "wf-1", 0, sel))

	// The raw JSONB document must be keyed by the decimal string, not by a
	// number; a mixed key type silently loses selections across a restart.
	var raw []byte
	err := repo.pool.QueryRow(ctx, `SELECT selections FROM approval_workflows WHERE workflow_id=$1`, "wf-1").Scan(&raw)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Contains(t, doc, "0")

	first, err := repo.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.Contains(t, first.Selections, 0)
	assert.True(t, first.Selections[0].Equivalent(sel))

	// Overwrite of the same key replaces, never appends, and bumps
	// updated_at (both timestamps come from the database clock).
	override := workflow.Selection{
		Override:   &workflow.ManualOverride{Link: "https://open.spotify.com/track/zzz"},
		SelectedBy: 200,
		SelectedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.ApplySelection(ctx, "wf-1", 0, override))
	got, err := repo.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, got.Selections, 1)
	assert.True(t, got.Selections[0].Manual())
	assert.Equal(t, int64(200), got.Selections[0].SelectedBy)
	assert.True(t, got.UpdatedAt.After(first.UpdatedAt), "apply must bump updated_at")
}

func TestRepositoryAbsentWorkflowErrors(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "nope")
	require.ErrorIs(t, err, workflow.ErrNotFound)

	err = repo.ApplySelection(ctx, "nope", 0, workflow.Selection{
		Override: &workflow.ManualOverride{Link: "x"}, SelectedBy: 1,
	})
	require.ErrorIs(t, err, workflow.ErrNotFound)

	err = repo.SetDispatches(ctx, "nope", []workflow.Dispatch{{ApproverID: 1}})
	require.ErrorIs(t, err, workflow.ErrNotFound)

	err = repo.UpdateStatus(ctx, "nope", workflow.StatusExpired)
	require.ErrorIs(t, err, workflow.ErrNotFound)

	// Delete of an absent id is not an error.
	require.NoError(t, repo.Delete(ctx, "nope"))
}

func TestRepositoryDispatchRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testWorkflow("wf-1")))
	dispatches := []workflow.Dispatch{
		{ApproverID: 100, SummaryMessageID: 30, ItemMessageIDs: []int64{10, 20}},
	}
	require.NoError(t, repo.SetDispatches(ctx, "wf-1", dispatches))

	got, err := repo.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, dispatches, got.Dispatches)
}

func TestRepositoryListActivePagination(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, id := range []string{"wf-a", "wf-b", "wf-c", "wf-d"} {
		require.NoError(t, repo.Create(ctx, testWorkflow(id)))
	}
	require.NoError(t, repo.UpdateStatus(ctx, "wf-b", workflow.StatusComplete))

	page, err := repo.ListActive(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "wf-a", page[0].ID)
	assert.Equal(t, "wf-c", page[1].ID)

	page, err = repo.ListActive(ctx, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "wf-d", page[0].ID)

	page, err = repo.ListActive(ctx, page[0].ID, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
