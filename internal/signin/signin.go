// Package signin drives a federated sign-in from the authorization redirect
// to an issued session.
package signin

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/account"
	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/session"
	"github.com/thidima/fedlink/internal/store"
)

var validCode = regexp.MustCompile(`^[A-Za-z0-9\-_./]+$`)

// Result is the outcome of a callback: SignedIn, Conflict or Failed.
type Result interface {
	result()
}

// SignedIn carries the new session. Created is true when the account was
// created by this callback.
type SignedIn struct {
	Session *session.Session
	Created bool
}

// Conflict reports an existing account with Email that is not linked to
// the identity. The user has to sign in by their existing method first.
type Conflict struct {
	Email    string
	Provider string
}

// Failed carries the classified failure.
type Failed struct {
	Err *oauth.Error
}

func (SignedIn) result() {}
func (Conflict) result() {}
func (Failed) result()   {}

// Prompt is returned by Start.
type Prompt struct {
	AuthURL string
	State   string
}

// CallbackRequest is everything the provider sent back plus the request
// context the session is issued for.
type CallbackRequest struct {
	Provider    string
	Code        string
	State       string
	User        string
	RedirectURI string
	Scope       account.Scope
	Client      session.Request
}

type StateStore interface {
	Issue(ctx context.Context, tenantID uuid.UUID, p oauth.Provider) (string, error)
	Consume(ctx context.Context, tenantID uuid.UUID, token string) (string, error)
}

type Resolver interface {
	Resolve(ctx context.Context, scope account.Scope, p *oauth.Profile) (account.Resolution, error)
}

type Linker interface {
	Link(ctx context.Context, scope account.Scope, p *oauth.Profile) (store.User, error)
}

type SessionIssuer interface {
	Issue(ctx context.Context, tenantID uuid.UUID, user store.User, req session.Request) (*session.Session, error)
}

// Service composes the sign-in collaborators.
type Service struct {
	providers *oauth.Registry
	states    StateStore
	resolver  Resolver
	linker    Linker
	sessions  SessionIssuer
	logger    *zap.Logger
}

func NewService(providers *oauth.Registry, states StateStore, resolver Resolver, linker Linker, sessions SessionIssuer, logger *zap.Logger) *Service {
	return &Service{
		providers: providers,
		states:    states,
		resolver:  resolver,
		linker:    linker,
		sessions:  sessions,
		logger:    logger,
	}
}

// Start issues a state token for provider on tenantID and returns the URL
// to send the user to.
func (s *Service) Start(ctx context.Context, tenantID uuid.UUID, provider, redirectURI string) (*Prompt, error) {
	p, ok := s.providers.Get(provider)
	if !ok {
		return nil, &oauth.Error{Kind: oauth.KindCredentialsMissing, Provider: provider}
	}
	state, err := s.states.Issue(ctx, tenantID, p)
	if err != nil {
		s.logger.Warn("issue state", zap.String("provider", p.Name()), zap.Error(err))
		return nil, asError(err, oauth.KindInitFailed)
	}
	return &Prompt{AuthURL: p.AuthURL(state, redirectURI), State: state}, nil
}

// Callback completes a sign-in. Every outcome, including failures, is
// returned as a Result.
func (s *Service) Callback(ctx context.Context, req CallbackRequest) Result {
	res := s.callback(ctx, req)
	if f, ok := res.(Failed); ok && f.Err.Kind != oauth.KindRollbackFailed {
		s.logger.Warn("sign-in failed",
			zap.String("provider", req.Provider),
			zap.String("kind", string(f.Err.Kind)),
			zap.Error(f.Err),
		)
	}
	return res
}

func (s *Service) callback(ctx context.Context, req CallbackRequest) Result {
	p, ok := s.providers.Get(req.Provider)
	if !ok {
		return fail(oauth.KindCredentialsMissing, req.Provider)
	}
	// The code is checked first so a malformed request cannot burn a
	// valid state token.
	if !validCode.MatchString(req.Code) {
		return fail(oauth.KindInvalidCode, p.Name())
	}
	if req.State == "" {
		return fail(oauth.KindMissingState, p.Name())
	}

	issuedFor, err := s.states.Consume(ctx, req.Scope.TenantID, req.State)
	if err != nil {
		return Failed{Err: asError(err, oauth.KindInvalidState)}
	}
	if issuedFor != p.Name() {
		return Failed{Err: &oauth.Error{Kind: oauth.KindInvalidState, Provider: p.Name(), Message: "state was issued for " + issuedFor}}
	}

	profile, err := p.Exchange(ctx, oauth.Callback{Code: req.Code, User: req.User, RedirectURI: req.RedirectURI})
	if err != nil {
		return Failed{Err: asError(err, oauth.KindTokenExchangeFailed)}
	}

	resolution, err := s.resolver.Resolve(ctx, req.Scope, profile)
	if err != nil {
		return Failed{Err: asError(err, oauth.KindUnexpected)}
	}

	var (
		user    store.User
		created bool
	)
	switch r := resolution.(type) {
	case account.Linked:
		user = r.User
	case account.Conflict:
		return Conflict{Email: r.Email, Provider: p.Name()}
	case account.NotFound:
		user, err = s.linker.Link(ctx, req.Scope, profile)
		if err != nil {
			return Failed{Err: asError(err, oauth.KindAccountCreationFailed)}
		}
		created = true
	default:
		panic(fmt.Sprintf("signin: unhandled resolution %T", resolution))
	}

	sess, err := s.sessions.Issue(ctx, req.Scope.TenantID, user, req.Client)
	if err != nil {
		return Failed{Err: &oauth.Error{Kind: oauth.KindSessionFetchFailed, Provider: p.Name(), UserID: user.ID, Err: err}}
	}
	return SignedIn{Session: sess, Created: created}
}

func fail(kind oauth.ErrorKind, provider string) Failed {
	return Failed{Err: &oauth.Error{Kind: kind, Provider: provider}}
}

// asError returns err's *oauth.Error, or wraps err under fallback.
func asError(err error, fallback oauth.ErrorKind) *oauth.Error {
	var oe *oauth.Error
	if errors.As(err, &oe) {
		return oe
	}
	return &oauth.Error{Kind: fallback, Err: err}
}
