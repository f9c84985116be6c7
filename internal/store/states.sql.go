package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const insertOAuthState = `-- name: InsertOAuthState :exec
INSERT INTO oauth_state (state, tenant_id, provider, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (state) DO NOTHING
`

type InsertOAuthStateParams struct {
	State     string    `json:"state"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

func (q *Queries) InsertOAuthState(ctx context.Context, arg InsertOAuthStateParams) error {
	_, err := q.db.Exec(ctx, insertOAuthState, arg.State, arg.TenantID, arg.Provider, arg.CreatedAt)
	return err
}

// Check and delete happen in one statement: two callbacks racing on the same
// state cannot both see a row. A state only matches on the tenant it was
// issued for.
const consumeOAuthState = `-- name: ConsumeOAuthState :one
DELETE FROM oauth_state
WHERE state = $1 AND tenant_id = $2 AND created_at > $3
RETURNING provider
`

type ConsumeOAuthStateParams struct {
	State        string    `json:"state"`
	TenantID     uuid.UUID `json:"tenant_id"`
	CreatedAfter time.Time `json:"created_after"`
}

func (q *Queries) ConsumeOAuthState(ctx context.Context, arg ConsumeOAuthStateParams) (string, error) {
	row := q.db.QueryRow(ctx, consumeOAuthState, arg.State, arg.TenantID, arg.CreatedAfter)
	var provider string
	err := row.Scan(&provider)
	return provider, err
}

const purgeOAuthStates = `-- name: PurgeOAuthStates :execrows
DELETE FROM oauth_state
WHERE created_at <= $1
`

func (q *Queries) PurgeOAuthStates(ctx context.Context, createdBefore time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, purgeOAuthStates, createdBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
