package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicate is returned by Memory where Postgres would raise a unique violation.
var ErrDuplicate = errors.New("store: duplicate key")

var _ Querier = (*Memory)(nil)

// Memory is an in-process Querier used with STORE=memory and in tests.
// A single mutex serialises every call, so ConsumeOAuthState is the same
// atomic delete-if-valid the SQL statement gives.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	tenants  map[uuid.UUID]Tenant
	states   map[string]OauthState
	users    map[uuid.UUID]User
	accounts map[accountKey]OauthAccount
	sessions map[uuid.UUID]Session
}

type accountKey struct {
	userID   uuid.UUID
	provider string
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		tenants:  make(map[uuid.UUID]Tenant),
		states:   make(map[string]OauthState),
		users:    make(map[uuid.UUID]User),
		accounts: make(map[accountKey]OauthAccount),
		sessions: make(map[uuid.UUID]Session),
	}
}

// WithClock replaces the clock used for created_at and updated_at columns.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) CreateTenant(_ context.Context, arg CreateTenantParams) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	host := strings.ToLower(arg.Host)
	for _, t := range m.tenants {
		if t.Host == host {
			return Tenant{}, ErrDuplicate
		}
	}
	t := Tenant{ID: uuid.New(), Host: host, EncryptedDataKey: arg.EncryptedDataKey, CreatedAt: m.now()}
	m.tenants[t.ID] = t
	return t, nil
}

func (m *Memory) GetTenantByHost(_ context.Context, host string) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	host = strings.ToLower(host)
	for _, t := range m.tenants {
		if t.Host == host {
			return t, nil
		}
	}
	return Tenant{}, pgx.ErrNoRows
}

func (m *Memory) GetTenantByID(_ context.Context, id uuid.UUID) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return Tenant{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *Memory) InsertOAuthState(_ context.Context, arg InsertOAuthStateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[arg.State]; ok {
		return nil
	}
	m.states[arg.State] = OauthState(arg)
	return nil
}

func (m *Memory) ConsumeOAuthState(_ context.Context, arg ConsumeOAuthStateParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[arg.State]
	if !ok || s.TenantID != arg.TenantID || !s.CreatedAt.After(arg.CreatedAfter) {
		return "", pgx.ErrNoRows
	}
	delete(m.states, arg.State)
	return s.Provider, nil
}

func (m *Memory) PurgeOAuthStates(_ context.Context, createdBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.states {
		if !s.CreatedAt.After(createdBefore) {
			delete(m.states, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetUserByID(_ context.Context, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, arg GetUserByEmailParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.userByEmail(arg.TenantID, arg.Email); ok {
		return u, nil
	}
	return User{}, pgx.ErrNoRows
}

func (m *Memory) userByEmail(tenantID uuid.UUID, email string) (User, bool) {
	for _, u := range m.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return User{}, false
}

func (m *Memory) UsernameExists(_ context.Context, arg UsernameExistsParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usernameTaken(arg.TenantID, arg.Username), nil
}

func (m *Memory) usernameTaken(tenantID uuid.UUID, username string) bool {
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Username == username {
			return true
		}
	}
	return false
}

func (m *Memory) CreateUser(_ context.Context, arg CreateUserParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userByEmail(arg.TenantID, arg.Email); ok {
		return User{}, ErrDuplicate
	}
	if m.usernameTaken(arg.TenantID, arg.Username) {
		return User{}, ErrDuplicate
	}
	u := User{
		ID:        uuid.New(),
		TenantID:  arg.TenantID,
		Username:  arg.Username,
		Email:     strings.ToLower(arg.Email),
		FirstName: arg.FirstName,
		LastName:  arg.LastName,
		CreatedAt: m.now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	for k := range m.accounts {
		if k.userID == id {
			delete(m.accounts, k)
		}
	}
	for k, s := range m.sessions {
		if s.UserID == id {
			delete(m.sessions, k)
		}
	}
	return nil
}

func (m *Memory) GetOAuthAccount(_ context.Context, arg GetOAuthAccountParams) (OauthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.TenantID == arg.TenantID && a.Provider == arg.Provider && a.ProviderUserID == arg.ProviderUserID {
			return a, nil
		}
	}
	return OauthAccount{}, pgx.ErrNoRows
}

func (m *Memory) InsertOAuthAccount(_ context.Context, arg InsertOAuthAccountParams) (OauthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[arg.UserID]; !ok {
		return OauthAccount{}, errors.New("store: user does not exist")
	}
	key := accountKey{userID: arg.UserID, provider: arg.Provider}
	if _, ok := m.accounts[key]; ok {
		return OauthAccount{}, ErrDuplicate
	}
	for _, a := range m.accounts {
		if a.TenantID == arg.TenantID && a.Provider == arg.Provider && a.ProviderUserID == arg.ProviderUserID {
			return OauthAccount{}, ErrDuplicate
		}
	}
	now := m.now()
	a := OauthAccount{
		UserID:                arg.UserID,
		TenantID:              arg.TenantID,
		Provider:              arg.Provider,
		ProviderUserID:        arg.ProviderUserID,
		Email:                 strings.ToLower(arg.Email),
		EncryptedAccessToken:  arg.EncryptedAccessToken,
		EncryptedRefreshToken: arg.EncryptedRefreshToken,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	m.accounts[key] = a
	return a, nil
}

func (m *Memory) UpdateOAuthAccountTokens(_ context.Context, arg UpdateOAuthAccountTokensParams) (OauthAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := accountKey{userID: arg.UserID, provider: arg.Provider}
	a, ok := m.accounts[key]
	if !ok {
		return OauthAccount{}, pgx.ErrNoRows
	}
	a.EncryptedAccessToken = arg.EncryptedAccessToken
	if arg.EncryptedRefreshToken != nil {
		a.EncryptedRefreshToken = arg.EncryptedRefreshToken
	}
	a.UpdatedAt = m.now()
	m.accounts[key] = a
	return a, nil
}

func (m *Memory) CreateSession(_ context.Context, arg CreateSessionParams) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == arg.TokenHash {
			return Session{}, ErrDuplicate
		}
	}
	s := Session{
		ID:         uuid.New(),
		TenantID:   arg.TenantID,
		UserID:     arg.UserID,
		TokenHash:  arg.TokenHash,
		UserAgent:  arg.UserAgent,
		RemoteAddr: arg.RemoteAddr,
		ExpiresAt:  arg.ExpiresAt,
		CreatedAt:  m.now(),
	}
	m.sessions[s.ID] = s
	return s, nil
}
