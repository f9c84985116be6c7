package oauth

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/thidima/fedlink/internal/identity"
)

// Profile is the verified identity a provider returns for one callback.
// It is never persisted as-is.
type Profile struct {
	Provider       string
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	AccessToken    string
	RefreshToken   string
}

// Callback carries what the provider sent back to the redirect URI.
type Callback struct {
	Code string
	// User is Apple's first-authorization user JSON; empty otherwise.
	User        string
	RedirectURI string
}

// Provider defines the interface each identity provider must implement.
type Provider interface {
	// Name is the route segment and stored provider column, e.g. "google".
	Name() string
	// Tag prefixes state tokens issued for this provider.
	Tag() string
	// AuthURL returns the URL to redirect the user to for authorization.
	AuthURL(state, redirectURI string) string
	// Exchange redeems the authorization code and returns a verified
	// profile. Errors are *Error of kind token_exchange_failed,
	// invalid_profile or email_not_verified.
	Exchange(ctx context.Context, cb Callback) (*Profile, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// profileFromClaims builds a Profile from verified claims, enforcing the
// email_verified claim and the presence of the fields an account needs.
func profileFromClaims(provider string, claims *identity.Claims) (*Profile, error) {
	if claims.Subject == "" || claims.Email == "" {
		return nil, &Error{Kind: KindInvalidProfile, Provider: provider, Message: "identity token lacks sub or email"}
	}
	if !claims.EmailVerified {
		return nil, &Error{Kind: KindEmailNotVerified, Provider: provider, Email: claims.Email}
	}
	return &Profile{
		Provider:       provider,
		ProviderUserID: claims.Subject,
		Email:          strings.ToLower(strings.TrimSpace(claims.Email)),
		FirstName:      claims.GivenName,
		LastName:       claims.FamilyName,
	}, nil
}

// verificationFailure wraps an identity.VerificationError as invalid_profile.
// A provider key endpoint that could not be reached is an exchange failure,
// not a verdict on the token.
func verificationFailure(provider string, err error) *Error {
	if errors.Is(err, identity.ErrKeySetUnavailable) {
		return &Error{
			Kind:     KindTokenExchangeFailed,
			Provider: provider,
			Message:  string(identity.ReasonOf(err)),
			Err:      err,
		}
	}
	return &Error{
		Kind:     KindInvalidProfile,
		Provider: provider,
		Message:  string(identity.ReasonOf(err)),
		Err:      err,
	}
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
