package store

import (
	"context"

	"github.com/google/uuid"
)

const createTenant = `-- name: CreateTenant :one
INSERT INTO tenants (host, encrypted_data_key)
VALUES ($1, $2)
RETURNING id, host, encrypted_data_key, created_at
`

type CreateTenantParams struct {
	Host             string `json:"host"`
	EncryptedDataKey []byte `json:"encrypted_data_key"`
}

func (q *Queries) CreateTenant(ctx context.Context, arg CreateTenantParams) (Tenant, error) {
	row := q.db.QueryRow(ctx, createTenant, arg.Host, arg.EncryptedDataKey)
	var i Tenant
	err := row.Scan(&i.ID, &i.Host, &i.EncryptedDataKey, &i.CreatedAt)
	return i, err
}

const getTenantByHost = `-- name: GetTenantByHost :one
SELECT id, host, encrypted_data_key, created_at FROM tenants
WHERE host = lower($1)
`

func (q *Queries) GetTenantByHost(ctx context.Context, host string) (Tenant, error) {
	row := q.db.QueryRow(ctx, getTenantByHost, host)
	var i Tenant
	err := row.Scan(&i.ID, &i.Host, &i.EncryptedDataKey, &i.CreatedAt)
	return i, err
}

const getTenantByID = `-- name: GetTenantByID :one
SELECT id, host, encrypted_data_key, created_at FROM tenants
WHERE id = $1
`

func (q *Queries) GetTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := q.db.QueryRow(ctx, getTenantByID, id)
	var i Tenant
	err := row.Scan(&i.ID, &i.Host, &i.EncryptedDataKey, &i.CreatedAt)
	return i, err
}
