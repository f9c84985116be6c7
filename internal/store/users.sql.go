package store

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, tenant_id, username, email, first_name, last_name, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Username,
		&i.Email,
		&i.FirstName,
		&i.LastName,
		&i.PasswordHash,
		&i.CreatedAt,
	)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users
WHERE tenant_id = $1 AND lower(email) = lower($2)
`

type GetUserByEmailParams struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Email    string    `json:"email"`
}

func (q *Queries) GetUserByEmail(ctx context.Context, arg GetUserByEmailParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, arg.TenantID, arg.Email))
}

const usernameExists = `-- name: UsernameExists :one
SELECT EXISTS (
    SELECT 1 FROM users WHERE tenant_id = $1 AND username = $2
)
`

type UsernameExistsParams struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Username string    `json:"username"`
}

func (q *Queries) UsernameExists(ctx context.Context, arg UsernameExistsParams) (bool, error) {
	row := q.db.QueryRow(ctx, usernameExists, arg.TenantID, arg.Username)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

// OAuth-only accounts are created without a password hash.
const createUser = `-- name: CreateUser :one
INSERT INTO users (tenant_id, username, email, first_name, last_name)
VALUES ($1, $2, lower($3), $4, $5)
RETURNING ` + userColumns + `
`

type CreateUserParams struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser,
		arg.TenantID,
		arg.Username,
		arg.Email,
		arg.FirstName,
		arg.LastName,
	))
}

const deleteUser = `-- name: DeleteUser :exec
DELETE FROM users WHERE id = $1
`

func (q *Queries) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteUser, id)
	return err
}
