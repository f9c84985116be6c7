package account_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/account"
	"github.com/thidima/fedlink/internal/crypto"
	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/store"
)

// faultyStore injects failures into an otherwise real Memory store.
type faultyStore struct {
	*store.Memory
	insertErr error
	deleteErr error
	updateErr error
	// beforeCreate runs just before CreateUser, to simulate a racing signup.
	beforeCreate func()
}

func (f *faultyStore) InsertOAuthAccount(ctx context.Context, arg store.InsertOAuthAccountParams) (store.OauthAccount, error) {
	if f.insertErr != nil {
		return store.OauthAccount{}, f.insertErr
	}
	return f.Memory.InsertOAuthAccount(ctx, arg)
}

func (f *faultyStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Memory.DeleteUser(ctx, id)
}

func (f *faultyStore) UpdateOAuthAccountTokens(ctx context.Context, arg store.UpdateOAuthAccountTokensParams) (store.OauthAccount, error) {
	if f.updateErr != nil {
		return store.OauthAccount{}, f.updateErr
	}
	return f.Memory.UpdateOAuthAccountTokens(ctx, arg)
}

func (f *faultyStore) CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	return f.Memory.CreateUser(ctx, arg)
}

func newScope(t *testing.T) account.Scope {
	t.Helper()
	sealer, err := crypto.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return account.Scope{TenantID: uuid.New(), Sealer: sealer}
}

func profile() *oauth.Profile {
	return &oauth.Profile{
		Provider:       "google",
		ProviderUserID: "123",
		Email:          "a@x.com",
		FirstName:      "Ana",
		LastName:       "Silva",
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
	}
}

func TestResolve_LinkedRefreshesTokens(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	scope := newScope(t)

	linked, err := account.NewLinker(m, zap.NewNop()).Link(ctx, scope, profile())
	require.NoError(t, err)

	p := profile()
	p.AccessToken = "access-2"
	p.RefreshToken = ""
	res, err := account.NewResolver(m, zap.NewNop()).Resolve(ctx, scope, p)
	require.NoError(t, err)

	got, ok := res.(account.Linked)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, linked.ID, got.User.ID)

	link, err := m.GetOAuthAccount(ctx, store.GetOAuthAccountParams{TenantID: scope.TenantID, Provider: "google", ProviderUserID: "123"})
	require.NoError(t, err)
	sealer := scope.Sealer.(*crypto.Sealer)
	access, err := sealer.Open(link.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)
	refresh, err := sealer.Open(link.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", refresh, "an absent refresh token keeps the stored one")
}

func TestResolve_LinkedSurvivesTokenUpdateFailure(t *testing.T) {
	ctx := context.Background()
	f := &faultyStore{Memory: store.NewMemory()}
	scope := newScope(t)
	_, err := account.NewLinker(f, zap.NewNop()).Link(ctx, scope, profile())
	require.NoError(t, err)

	f.updateErr = errors.New("connection reset")
	res, err := account.NewResolver(f, zap.NewNop()).Resolve(ctx, scope, profile())
	require.NoError(t, err)
	assert.IsType(t, account.Linked{}, res)
}

func TestResolve_ConflictWithPasswordAccount(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	scope := newScope(t)
	existing, err := m.CreateUser(ctx, store.CreateUserParams{TenantID: scope.TenantID, Username: "ana", Email: "a@x.com"})
	require.NoError(t, err)

	res, err := account.NewResolver(m, zap.NewNop()).Resolve(ctx, scope, profile())
	require.NoError(t, err)
	assert.Equal(t, account.Conflict{Email: "a@x.com"}, res)

	after, err := m.GetUserByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, existing, after)
	_, err = m.GetOAuthAccount(ctx, store.GetOAuthAccountParams{TenantID: scope.TenantID, Provider: "google", ProviderUserID: "123"})
	assert.True(t, store.IsNotFound(err), "conflict must not create a link")
}

func TestResolve_NotFound(t *testing.T) {
	res, err := account.NewResolver(store.NewMemory(), zap.NewNop()).Resolve(context.Background(), newScope(t), profile())
	require.NoError(t, err)
	assert.Equal(t, account.NotFound{}, res)
}

func TestResolve_OtherTenantIsNotFound(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, err := account.NewLinker(m, zap.NewNop()).Link(ctx, newScope(t), profile())
	require.NoError(t, err)

	res, err := account.NewResolver(m, zap.NewNop()).Resolve(ctx, newScope(t), profile())
	require.NoError(t, err)
	assert.Equal(t, account.NotFound{}, res)
}

func TestLink_CreatesPasswordlessAccount(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	scope := newScope(t)

	user, err := account.NewLinker(m, zap.NewNop()).Link(ctx, scope, profile())
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "a@x.com", user.Email)
	assert.False(t, user.PasswordHash.Valid)

	link, err := m.GetOAuthAccount(ctx, store.GetOAuthAccountParams{TenantID: scope.TenantID, Provider: "google", ProviderUserID: "123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, link.UserID)
	assert.NotEqual(t, []byte("access-1"), link.EncryptedAccessToken, "tokens are sealed at rest")
}

func TestLink_RollbackSucceeded(t *testing.T) {
	ctx := context.Background()
	f := &faultyStore{Memory: store.NewMemory(), insertErr: errors.New("link insert failed")}
	scope := newScope(t)

	_, err := account.NewLinker(f, zap.NewNop()).Link(ctx, scope, profile())
	assert.Equal(t, oauth.KindAccountCreationFailed, oauth.KindOf(err))

	_, err = f.GetUserByEmail(ctx, store.GetUserByEmailParams{TenantID: scope.TenantID, Email: "a@x.com"})
	assert.True(t, store.IsNotFound(err), "the created account is removed again")
}

func TestLink_RollbackFailed(t *testing.T) {
	ctx := context.Background()
	f := &faultyStore{
		Memory:    store.NewMemory(),
		insertErr: errors.New("link insert failed"),
		deleteErr: errors.New("delete failed"),
	}
	scope := newScope(t)

	_, err := account.NewLinker(f, zap.NewNop()).Link(ctx, scope, profile())
	require.Error(t, err)

	var oe *oauth.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, oauth.KindRollbackFailed, oe.Kind)
	assert.Equal(t, "google", oe.Provider)
	assert.Equal(t, "a@x.com", oe.Email)

	orphan, err := f.GetUserByEmail(ctx, store.GetUserByEmailParams{TenantID: scope.TenantID, Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, oe.UserID)
}

func TestLink_UserExists(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	scope := newScope(t)
	_, err := m.CreateUser(ctx, store.CreateUserParams{TenantID: scope.TenantID, Username: "someone", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = account.NewLinker(m, zap.NewNop()).Link(ctx, scope, profile())
	assert.Equal(t, oauth.KindUserExists, oauth.KindOf(err))
}

func TestLink_UserExistsWhenRacingSignupWins(t *testing.T) {
	ctx := context.Background()
	scope := newScope(t)
	f := &faultyStore{Memory: store.NewMemory()}
	f.beforeCreate = func() {
		f.beforeCreate = nil
		_, err := f.Memory.CreateUser(ctx, store.CreateUserParams{TenantID: scope.TenantID, Username: "racer", Email: "a@x.com"})
		require.NoError(t, err)
	}

	_, err := account.NewLinker(f, zap.NewNop()).Link(ctx, scope, profile())
	assert.Equal(t, oauth.KindUserExists, oauth.KindOf(err))
}

func TestLink_RegeneratesUsernameTakenByRacingSignup(t *testing.T) {
	ctx := context.Background()
	scope := newScope(t)
	f := &faultyStore{Memory: store.NewMemory()}
	f.beforeCreate = func() {
		f.beforeCreate = nil
		_, err := f.Memory.CreateUser(ctx, store.CreateUserParams{TenantID: scope.TenantID, Username: "ana", Email: "other@x.com"})
		require.NoError(t, err)
	}

	user, err := account.NewLinker(f, zap.NewNop()).Link(ctx, scope, profile())
	require.NoError(t, err)
	assert.Equal(t, "ana2", user.Username)
	assert.Equal(t, "a@x.com", user.Email)
}

func TestLink_GivesUpAfterRepeatedUsernameRaces(t *testing.T) {
	ctx := context.Background()
	scope := newScope(t)
	f := &faultyStore{Memory: store.NewMemory()}
	racers := []string{"ana", "ana2"}
	f.beforeCreate = func() {
		if len(racers) == 0 {
			return
		}
		name := racers[0]
		racers = racers[1:]
		_, err := f.Memory.CreateUser(ctx, store.CreateUserParams{TenantID: scope.TenantID, Username: name, Email: name + "@racer.com"})
		require.NoError(t, err)
	}

	_, err := account.NewLinker(f, zap.NewNop()).Link(ctx, scope, profile())
	assert.Equal(t, oauth.KindAccountCreationFailed, oauth.KindOf(err))
	_, err = f.GetUserByEmail(ctx, store.GetUserByEmailParams{TenantID: scope.TenantID, Email: "a@x.com"})
	assert.True(t, store.IsNotFound(err))
}

func TestGenerateUsername(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	tenantID := uuid.New()
	for _, name := range []string{"ana", "ana2"} {
		_, err := m.CreateUser(ctx, store.CreateUserParams{TenantID: tenantID, Username: name, Email: name + "@x.com"})
		require.NoError(t, err)
	}

	tests := []struct {
		first, email, want string
	}{
		{"Ana", "a@x.com", "ana3"},
		{"", "John.Doe+tag@x.com", "johndoetag"},
		{"Zoë", "z@x.com", "zo"},
		{"", "@x.com", "user"},
		{"李", "", "user"},
	}
	for _, tt := range tests {
		got, err := account.GenerateUsername(ctx, m, tenantID, tt.first, tt.email)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "first=%q email=%q", tt.first, tt.email)
	}

	got, err := account.GenerateUsername(ctx, m, uuid.New(), "Ana", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "ana", got, "usernames are unique per tenant only")
}
