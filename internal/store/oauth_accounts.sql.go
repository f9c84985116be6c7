package store

import (
	"context"

	"github.com/google/uuid"
)

const oauthAccountColumns = `user_id, tenant_id, provider, provider_user_id, email, encrypted_access_token, encrypted_refresh_token, created_at, updated_at`

func scanOAuthAccount(row interface{ Scan(...any) error }) (OauthAccount, error) {
	var i OauthAccount
	err := row.Scan(
		&i.UserID,
		&i.TenantID,
		&i.Provider,
		&i.ProviderUserID,
		&i.Email,
		&i.EncryptedAccessToken,
		&i.EncryptedRefreshToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOAuthAccount = `-- name: GetOAuthAccount :one
SELECT ` + oauthAccountColumns + ` FROM oauth_accounts
WHERE tenant_id = $1 AND provider = $2 AND provider_user_id = $3
`

type GetOAuthAccountParams struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
}

func (q *Queries) GetOAuthAccount(ctx context.Context, arg GetOAuthAccountParams) (OauthAccount, error) {
	return scanOAuthAccount(q.db.QueryRow(ctx, getOAuthAccount, arg.TenantID, arg.Provider, arg.ProviderUserID))
}

const insertOAuthAccount = `-- name: InsertOAuthAccount :one
INSERT INTO oauth_accounts (
    user_id, tenant_id, provider, provider_user_id, email, encrypted_access_token, encrypted_refresh_token
) VALUES ($1, $2, $3, $4, lower($5), $6, $7)
RETURNING ` + oauthAccountColumns + `
`

type InsertOAuthAccountParams struct {
	UserID                uuid.UUID `json:"user_id"`
	TenantID              uuid.UUID `json:"tenant_id"`
	Provider              string    `json:"provider"`
	ProviderUserID        string    `json:"provider_user_id"`
	Email                 string    `json:"email"`
	EncryptedAccessToken  []byte    `json:"encrypted_access_token"`
	EncryptedRefreshToken []byte    `json:"encrypted_refresh_token"`
}

func (q *Queries) InsertOAuthAccount(ctx context.Context, arg InsertOAuthAccountParams) (OauthAccount, error) {
	return scanOAuthAccount(q.db.QueryRow(ctx, insertOAuthAccount,
		arg.UserID,
		arg.TenantID,
		arg.Provider,
		arg.ProviderUserID,
		arg.Email,
		arg.EncryptedAccessToken,
		arg.EncryptedRefreshToken,
	))
}

// A NULL refresh token keeps the stored one; providers only send it on consent.
const updateOAuthAccountTokens = `-- name: UpdateOAuthAccountTokens :one
UPDATE oauth_accounts
SET encrypted_access_token  = $3,
    encrypted_refresh_token = COALESCE($4, encrypted_refresh_token),
    updated_at              = now()
WHERE user_id = $1 AND provider = $2
RETURNING ` + oauthAccountColumns + `
`

type UpdateOAuthAccountTokensParams struct {
	UserID                uuid.UUID `json:"user_id"`
	Provider              string    `json:"provider"`
	EncryptedAccessToken  []byte    `json:"encrypted_access_token"`
	EncryptedRefreshToken []byte    `json:"encrypted_refresh_token"`
}

func (q *Queries) UpdateOAuthAccountTokens(ctx context.Context, arg UpdateOAuthAccountTokensParams) (OauthAccount, error) {
	return scanOAuthAccount(q.db.QueryRow(ctx, updateOAuthAccountTokens,
		arg.UserID,
		arg.Provider,
		arg.EncryptedAccessToken,
		arg.EncryptedRefreshToken,
	))
}
