// Package session issues login sessions for resolved accounts.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thidima/fedlink/internal/store"
)

// Store is the session slice of store.Querier.
type Store interface {
	CreateSession(ctx context.Context, arg store.CreateSessionParams) (store.Session, error)
}

// Request describes the client a session is issued to.
type Request struct {
	UserAgent  string
	RemoteAddr string
}

// Session is a freshly issued session. Token is only ever available here;
// the store keeps its hash.
type Session struct {
	ID        uuid.UUID
	Token     string
	ExpiresAt time.Time
	User      store.User
}

type Issuer struct {
	q   Store
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(q Store, ttl time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{q: q, ttl: ttl, now: now}
}

// Issue creates a session for user in tenantID.
func (i *Issuer) Issue(ctx context.Context, tenantID uuid.UUID, user store.User, req Request) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	expires := i.now().Add(i.ttl).UTC()
	s, err := i.q.CreateSession(ctx, store.CreateSessionParams{
		TenantID:   tenantID,
		UserID:     user.ID,
		TokenHash:  HashToken(token),
		UserAgent:  req.UserAgent,
		RemoteAddr: req.RemoteAddr,
		ExpiresAt:  expires,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Session{ID: s.ID, Token: token, ExpiresAt: expires, User: user}, nil
}

// HashToken is the stored form of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
