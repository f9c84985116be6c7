package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Querier interface {
	CreateTenant(ctx context.Context, arg CreateTenantParams) (Tenant, error)
	GetTenantByHost(ctx context.Context, host string) (Tenant, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error)

	InsertOAuthState(ctx context.Context, arg InsertOAuthStateParams) error
	ConsumeOAuthState(ctx context.Context, arg ConsumeOAuthStateParams) (string, error)
	PurgeOAuthStates(ctx context.Context, createdBefore time.Time) (int64, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, arg GetUserByEmailParams) (User, error)
	UsernameExists(ctx context.Context, arg UsernameExistsParams) (bool, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	GetOAuthAccount(ctx context.Context, arg GetOAuthAccountParams) (OauthAccount, error)
	InsertOAuthAccount(ctx context.Context, arg InsertOAuthAccountParams) (OauthAccount, error)
	UpdateOAuthAccountTokens(ctx context.Context, arg UpdateOAuthAccountTokensParams) (OauthAccount, error)

	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
}
