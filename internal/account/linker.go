package account

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/store"
)

type Linker struct {
	q      Store
	logger *zap.Logger
}

func NewLinker(q Store, logger *zap.Logger) *Linker {
	return &Linker{q: q, logger: logger}
}

// Link creates a password-less account for p and links the identity to it.
//
// The account row and the link row are separate writes. If the link insert
// fails the account is deleted again; if that delete fails too the result
// is rollback_failed carrying the orphan's id, and nothing retries.
func (l *Linker) Link(ctx context.Context, scope Scope, p *oauth.Profile) (store.User, error) {
	if exists, err := l.emailTaken(ctx, scope, p.Email); err != nil {
		return store.User{}, &oauth.Error{Kind: oauth.KindAccountCreationFailed, Provider: p.Provider, Err: err}
	} else if exists {
		return store.User{}, &oauth.Error{Kind: oauth.KindUserExists, Provider: p.Provider, Email: p.Email}
	}

	access, refresh, err := sealTokens(scope.Sealer, p)
	if err != nil {
		return store.User{}, &oauth.Error{Kind: oauth.KindAccountCreationFailed, Provider: p.Provider, Err: err}
	}

	user, err := l.createUser(ctx, scope, p)
	if err != nil {
		return store.User{}, err
	}

	_, err = l.q.InsertOAuthAccount(ctx, store.InsertOAuthAccountParams{
		UserID:                user.ID,
		TenantID:              scope.TenantID,
		Provider:              p.Provider,
		ProviderUserID:        p.ProviderUserID,
		Email:                 p.Email,
		EncryptedAccessToken:  access,
		EncryptedRefreshToken: refresh,
	})
	if err == nil {
		return user, nil
	}

	linkErr := fmt.Errorf("insert oauth account: %w", err)
	if delErr := l.q.DeleteUser(ctx, user.ID); delErr != nil {
		l.logger.Error("rollback of unlinked account failed; manual reconciliation required",
			zap.String("user_id", user.ID.String()),
			zap.String("tenant_id", scope.TenantID.String()),
			zap.String("provider", p.Provider),
			zap.String("email", p.Email),
			zap.NamedError("link_error", err),
			zap.Error(delErr),
		)
		return store.User{}, &oauth.Error{
			Kind:     oauth.KindRollbackFailed,
			Provider: p.Provider,
			Email:    p.Email,
			UserID:   user.ID,
			Err:      fmt.Errorf("%w; delete user: %v", linkErr, delErr),
		}
	}
	l.logger.Warn("account rolled back after link failure",
		zap.String("provider", p.Provider),
		zap.Error(err),
	)
	return store.User{}, &oauth.Error{Kind: oauth.KindAccountCreationFailed, Provider: p.Provider, Err: linkErr}
}

// createUser inserts the account row. A unique violation is either a
// racing signup with the same email (user_exists) or a racing signup that
// took the generated username, in which case one fresh username is tried.
func (l *Linker) createUser(ctx context.Context, scope Scope, p *oauth.Profile) (store.User, error) {
	const attempts = 2
	var err error
	for i := 0; i < attempts; i++ {
		var username string
		username, err = GenerateUsername(ctx, l.q, scope.TenantID, p.FirstName, p.Email)
		if err != nil {
			return store.User{}, &oauth.Error{Kind: oauth.KindAccountCreationFailed, Provider: p.Provider, Err: err}
		}

		var user store.User
		user, err = l.q.CreateUser(ctx, store.CreateUserParams{
			TenantID:  scope.TenantID,
			Username:  username,
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		})
		if err == nil {
			return user, nil
		}
		if !store.IsUniqueViolation(err) {
			break
		}
		taken, lookupErr := l.emailTaken(ctx, scope, p.Email)
		if lookupErr != nil {
			break
		}
		if taken {
			return store.User{}, &oauth.Error{Kind: oauth.KindUserExists, Provider: p.Provider, Email: p.Email}
		}
		l.logger.Debug("username taken concurrently, regenerating",
			zap.String("username", username),
			zap.String("provider", p.Provider),
		)
	}
	return store.User{}, &oauth.Error{Kind: oauth.KindAccountCreationFailed, Provider: p.Provider, Err: fmt.Errorf("create user: %w", err)}
}

func (l *Linker) emailTaken(ctx context.Context, scope Scope, email string) (bool, error) {
	_, err := l.q.GetUserByEmail(ctx, store.GetUserByEmailParams{TenantID: scope.TenantID, Email: email})
	switch {
	case err == nil:
		return true, nil
	case store.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("lookup email: %w", err)
	}
}
