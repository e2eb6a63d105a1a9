package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema ships with the binary; one statement batch, safe to re-run.
const schema = `
CREATE TABLE IF NOT EXISTS approval_workflows (
    workflow_id       TEXT PRIMARY KEY,
    guild_id          BIGINT NOT NULL,
    origin_channel_id BIGINT NOT NULL,
    origin_message_id BIGINT NOT NULL,
    items             JSONB NOT NULL,
    selections        JSONB NOT NULL DEFAULT '{}',
    dispatches        JSONB NOT NULL DEFAULT '[]',
    approver_ids      JSONB NOT NULL DEFAULT '[]',
    status            TEXT NOT NULL DEFAULT 'PENDING',
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_approval_workflows_status ON approval_workflows(status);
CREATE INDEX IF NOT EXISTS idx_approval_workflows_guild ON approval_workflows(guild_id);
`

// RunMigrations applies the schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
