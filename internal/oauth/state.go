package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thidima/fedlink/internal/store"
)

// DefaultStateTTL is how long an issued state token can be consumed.
const DefaultStateTTL = 600 * time.Second

// StateQuerier is the subset of store.Querier the state store needs.
type StateQuerier interface {
	InsertOAuthState(ctx context.Context, arg store.InsertOAuthStateParams) error
	ConsumeOAuthState(ctx context.Context, arg store.ConsumeOAuthStateParams) (string, error)
}

// StateStore issues and consumes single-use CSRF state tokens.
type StateStore struct {
	q   StateQuerier
	ttl time.Duration
	now func() time.Time
}

func NewStateStore(q StateQuerier, ttl time.Duration, now func() time.Time) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateStore{q: q, ttl: ttl, now: now}
}

// TTL is the consumption window.
func (s *StateStore) TTL() time.Duration { return s.ttl }

// Issue creates a state token of the form <tag>_<uuid> for p, bound to
// the tenant the sign-in started on.
func (s *StateStore) Issue(ctx context.Context, tenantID uuid.UUID, p Provider) (string, error) {
	token := p.Tag() + "_" + uuid.NewString()
	err := s.q.InsertOAuthState(ctx, store.InsertOAuthStateParams{
		State:     token,
		TenantID:  tenantID,
		Provider:  p.Name(),
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", &Error{Kind: KindInitFailed, Provider: p.Name(), Err: fmt.Errorf("insert state: %w", err)}
	}
	return token, nil
}

// Consume deletes token if it was issued for tenantID and is younger than
// the TTL, in one statement, and returns the provider it was issued for.
// Any other outcome is invalid_state.
func (s *StateStore) Consume(ctx context.Context, tenantID uuid.UUID, token string) (string, error) {
	if token == "" {
		return "", &Error{Kind: KindMissingState}
	}
	provider, err := s.q.ConsumeOAuthState(ctx, store.ConsumeOAuthStateParams{
		State:        token,
		TenantID:     tenantID,
		CreatedAfter: s.now().Add(-s.ttl),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &Error{Kind: KindInvalidState}
	}
	if err != nil {
		return "", &Error{Kind: KindInvalidState, Err: fmt.Errorf("consume state: %w", err)}
	}
	return provider, nil
}
