package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Tenant struct {
	ID               uuid.UUID `json:"id"`
	Host             string    `json:"host"`
	EncryptedDataKey []byte    `json:"encrypted_data_key"`
	CreatedAt        time.Time `json:"created_at"`
}

type OauthState struct {
	State     string    `json:"state"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           uuid.UUID   `json:"id"`
	TenantID     uuid.UUID   `json:"tenant_id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	PasswordHash pgtype.Text `json:"password_hash"`
	CreatedAt    time.Time   `json:"created_at"`
}

type OauthAccount struct {
	UserID                uuid.UUID `json:"user_id"`
	TenantID              uuid.UUID `json:"tenant_id"`
	Provider              string    `json:"provider"`
	ProviderUserID        string    `json:"provider_user_id"`
	Email                 string    `json:"email"`
	EncryptedAccessToken  []byte    `json:"encrypted_access_token"`
	EncryptedRefreshToken []byte    `json:"encrypted_refresh_token"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Session struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	UserID     uuid.UUID `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	UserAgent  string    `json:"user_agent"`
	RemoteAddr string    `json:"remote_addr"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
