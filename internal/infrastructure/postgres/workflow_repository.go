package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playlist-hub/playlist-hub/internal/domain/workflow"
)

const uniqueViolation = "23505"

// WorkflowRepository implements workflow.Store on Postgres, one JSONB
// document per workflow. Selection keys are written and read as decimal
// strings; see workflow.SelectionMap.
type WorkflowRepository struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

func (r *WorkflowRepository) Create(ctx context.Context, wf *workflow.Workflow) error {
	items, err := json.Marshal(wf.Items)
	if err != nil {
		return err
	}
	selections, err := json.Marshal(wf.Selections)
	if err != nil {
		return err
	}
	dispatches, err := json.Marshal(wf.Dispatches)
	if err != nil {
		return err
	}
	approvers, err := json.Marshal(wf.ApproverIDs)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO approval_workflows
		(workflow_id, guild_id, origin_channel_id, origin_message_id, items, selections, dispatches, approver_ids, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, wf.ID, wf.GuildID, wf.OriginChannelID, wf.OriginMessageID, items, selections, dispatches, approvers, wf.Status, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return workflow.ErrDuplicateKey
		}
		return &workflow.StorageError{Err: err}
	}
	return nil
}

func (r *WorkflowRepository) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT workflow_id, guild_id, origin_channel_id, origin_message_id, items, selections, dispatches, approver_ids, status, created_at, updated_at
		FROM approval_workflows WHERE workflow_id=$1
	`, id)
	return scanWorkflow(row)
}

func (r *WorkflowRepository) ListActive(ctx context.Context, afterID string, limit int) ([]*workflow.Workflow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT workflow_id, guild_id, origin_channel_id, origin_message_id, items, selections, dispatches, approver_ids, status, created_at, updated_at
		FROM approval_workflows
		WHERE status=$1 AND workflow_id > $2
		ORDER BY workflow_id
		LIMIT $3
	`, workflow.StatusPending, afterID, limit)
	if err != nil {
		return nil, &workflow.StorageError{Err: err}
	}
	defer rows.Close()
	var workflows []*workflow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, &workflow.StorageError{Err: err}
	}
	return workflows, nil
}

// ApplySelection is a single-statement read-modify-write: the selection key
// is set (or overwritten) inside the document and updated_at bumped in the
// same atomic update.
func (r *WorkflowRepository) ApplySelection(ctx context.Context, id string, itemIndex int, sel workflow.Selection) error {
	payload, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE approval_workflows
		SET selections = jsonb_set(selections, ARRAY[$2], $3::jsonb, true),
		    updated_at = NOW()
		WHERE workflow_id=$1
	`, id, strconv.Itoa(itemIndex), payload)
	if err != nil {
		return &workflow.StorageError{Err: err}
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepository) SetDispatches(ctx context.Context, id string, dispatches []workflow.Dispatch) error {
	payload, err := json.Marshal(dispatches)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE approval_workflows SET dispatches=$2, updated_at=NOW() WHERE workflow_id=$1
	`, id, payload)
	if err != nil {
		return &workflow.StorageError{Err: err}
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id string, status workflow.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE approval_workflows SET status=$2, updated_at=NOW() WHERE workflow_id=$1
	`, id, status)
	if err != nil {
		return &workflow.StorageError{Err: err}
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM approval_workflows WHERE workflow_id=$1`, id); err != nil {
		return &workflow.StorageError{Err: err}
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*workflow.Workflow, error) {
	var (
		wf         workflow.Workflow
		items      []byte
		selections []byte
		dispatches []byte
		approvers  []byte
	)
	err := row.Scan(&wf.ID, &wf.GuildID, &wf.OriginChannelID, &wf.OriginMessageID,
		&items, &selections, &dispatches, &approvers, &wf.Status, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrNotFound
		}
		return nil, &workflow.StorageError{Err: err}
	}
	if err := json.Unmarshal(items, &wf.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(selections, &wf.Selections); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dispatches, &wf.Dispatches); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(approvers, &wf.ApproverIDs); err != nil {
		return nil, err
	}
	return &wf, nil
}
