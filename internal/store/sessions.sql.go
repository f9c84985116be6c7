package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createSession = `-- name: CreateSession :one
INSERT INTO sessions (tenant_id, user_id, token_hash, user_agent, remote_addr, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, tenant_id, user_id, token_hash, user_agent, remote_addr, expires_at, created_at
`

type CreateSessionParams struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	UserID     uuid.UUID `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	UserAgent  string    `json:"user_agent"`
	RemoteAddr string    `json:"remote_addr"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, createSession,
		arg.TenantID,
		arg.UserID,
		arg.TokenHash,
		arg.UserAgent,
		arg.RemoteAddr,
		arg.ExpiresAt,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.UserID,
		&i.TokenHash,
		&i.UserAgent,
		&i.RemoteAddr,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	return i, err
}
