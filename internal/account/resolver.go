// Package account reconciles verified provider identities with the
// tenant's accounts: it resolves existing links and creates new linked
// accounts, compensating when the link cannot be written.
package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/store"
)

// Store is the slice of store.Querier that account resolution and linking use.
type Store interface {
	GetOAuthAccount(ctx context.Context, arg store.GetOAuthAccountParams) (store.OauthAccount, error)
	UpdateOAuthAccountTokens(ctx context.Context, arg store.UpdateOAuthAccountTokensParams) (store.OauthAccount, error)
	InsertOAuthAccount(ctx context.Context, arg store.InsertOAuthAccountParams) (store.OauthAccount, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (store.User, error)
	GetUserByEmail(ctx context.Context, arg store.GetUserByEmailParams) (store.User, error)
	UsernameExists(ctx context.Context, arg store.UsernameExistsParams) (bool, error)
	CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// Sealer encrypts provider tokens before they are stored.
type Sealer interface {
	Seal(token string) ([]byte, error)
}

// Scope identifies the tenant an identity is resolved in and the key its
// provider tokens are sealed with.
type Scope struct {
	TenantID uuid.UUID
	Sealer   Sealer
}

// Resolution is the outcome of looking up a verified identity. It is one
// of Linked, Conflict or NotFound.
type Resolution interface {
	resolution()
}

// Linked means the identity is already linked to User.
type Linked struct {
	User store.User
}

// Conflict means an account with Email exists but is not linked to this
// identity. It must not be linked automatically.
type Conflict struct {
	Email string
}

// NotFound means neither a link nor an account with the email exists.
type NotFound struct{}

func (Linked) resolution()   {}
func (Conflict) resolution() {}
func (NotFound) resolution() {}

type Resolver struct {
	q      Store
	logger *zap.Logger
}

func NewResolver(q Store, logger *zap.Logger) *Resolver {
	return &Resolver{q: q, logger: logger}
}

// Resolve looks the identity up by (provider, provider_user_id) and then by
// email. On Linked the link's tokens are refreshed from p; a failed refresh
// is logged and does not block sign-in.
func (r *Resolver) Resolve(ctx context.Context, scope Scope, p *oauth.Profile) (Resolution, error) {
	link, err := r.q.GetOAuthAccount(ctx, store.GetOAuthAccountParams{
		TenantID:       scope.TenantID,
		Provider:       p.Provider,
		ProviderUserID: p.ProviderUserID,
	})
	switch {
	case err == nil:
		user, err := r.q.GetUserByID(ctx, link.UserID)
		if err != nil {
			return nil, &oauth.Error{Kind: oauth.KindUnexpected, Provider: p.Provider, Err: fmt.Errorf("load linked user: %w", err)}
		}
		r.refreshTokens(ctx, scope, link, p)
		return Linked{User: user}, nil
	case !store.IsNotFound(err):
		return nil, &oauth.Error{Kind: oauth.KindUnexpected, Provider: p.Provider, Err: fmt.Errorf("lookup link: %w", err)}
	}

	existing, err := r.q.GetUserByEmail(ctx, store.GetUserByEmailParams{TenantID: scope.TenantID, Email: p.Email})
	switch {
	case err == nil:
		return Conflict{Email: existing.Email}, nil
	case store.IsNotFound(err):
		return NotFound{}, nil
	default:
		return nil, &oauth.Error{Kind: oauth.KindUnexpected, Provider: p.Provider, Err: fmt.Errorf("lookup email: %w", err)}
	}
}

func (r *Resolver) refreshTokens(ctx context.Context, scope Scope, link store.OauthAccount, p *oauth.Profile) {
	access, refresh, err := sealTokens(scope.Sealer, p)
	if err == nil {
		_, err = r.q.UpdateOAuthAccountTokens(ctx, store.UpdateOAuthAccountTokensParams{
			UserID:                link.UserID,
			Provider:              link.Provider,
			EncryptedAccessToken:  access,
			EncryptedRefreshToken: refresh,
		})
	}
	if err != nil {
		r.logger.Warn("refresh provider tokens",
			zap.String("user_id", link.UserID.String()),
			zap.String("provider", link.Provider),
			zap.Error(err),
		)
	}
}

func sealTokens(s Sealer, p *oauth.Profile) (access, refresh []byte, err error) {
	if access, err = s.Seal(p.AccessToken); err != nil {
		return nil, nil, fmt.Errorf("seal access token: %w", err)
	}
	if refresh, err = s.Seal(p.RefreshToken); err != nil {
		return nil, nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return access, refresh, nil
}
