package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/thidima/fedlink/internal/config"
	"github.com/thidima/fedlink/internal/identity"
)

type AppleProvider struct {
	config   *oauth2.Config
	secrets  *ClientSecretCache
	client   *http.Client
	verifier *identity.Verifier
	keys     identity.KeyResolver
	expect   identity.Expectation
	logger   *zap.Logger
}

// NewAppleProvider creates a Sign in with Apple provider. The client secret
// is minted per exchange from secrets.
func NewAppleProvider(cfg config.AppleConfig, secrets *ClientSecretCache, verifier *identity.Verifier, keys identity.KeyResolver, client *http.Client, logger *zap.Logger) *AppleProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppleProvider{
		config: &oauth2.Config{
			ClientID: cfg.ServiceID,
			Scopes:   []string{"name", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		secrets:  secrets,
		client:   defaultClient(client),
		verifier: verifier,
		keys:     keys,
		expect: identity.Expectation{
			Issuers:   []string{appleAudience},
			Audience:  cfg.ServiceID,
			Algorithm: "RS256",
		},
		logger: logger,
	}
}

func (a *AppleProvider) Name() string { return "apple" }

func (a *AppleProvider) Tag() string { return "a" }

// AuthURL asks Apple to POST the callback so the user's name, sent only on
// first authorization, reaches us in the form body.
func (a *AppleProvider) AuthURL(state, redirectURI string) string {
	cfg := *a.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "form_post"))
}

func (a *AppleProvider) Exchange(ctx context.Context, cb Callback) (*Profile, error) {
	secret, err := a.secrets.Get()
	if err != nil {
		return nil, &Error{Kind: KindTokenExchangeFailed, Provider: a.Name(), Err: err}
	}
	cfg := *a.config
	cfg.ClientSecret = secret
	cfg.RedirectURL = cb.RedirectURI

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	t, err := cfg.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, &Error{Kind: KindTokenExchangeFailed, Provider: a.Name(), Err: fmt.Errorf("apple token exchange: %w", err)}
	}

	raw, _ := t.Extra("id_token").(string)
	if raw == "" {
		return nil, &Error{Kind: KindInvalidProfile, Provider: a.Name(), Message: "token response has no id_token"}
	}
	claims, err := a.verifier.Verify(ctx, raw, a.expect, a.keys)
	if err != nil {
		return nil, verificationFailure(a.Name(), err)
	}

	profile, err := profileFromClaims(a.Name(), claims)
	if err != nil {
		return nil, err
	}
	profile.FirstName, profile.LastName = a.parseUser(cb.User)
	profile.AccessToken = t.AccessToken
	profile.RefreshToken = t.RefreshToken
	return profile, nil
}

type appleUser struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
}

// parseUser reads the name Apple posts on first authorization. Absent or
// malformed input yields empty names.
func (a *AppleProvider) parseUser(raw string) (first, last string) {
	if strings.TrimSpace(raw) == "" {
		return "", ""
	}
	var u appleUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		a.logger.Warn("ignoring malformed apple user payload", zap.Error(err))
		return "", ""
	}
	return strings.TrimSpace(u.Name.FirstName), strings.TrimSpace(u.Name.LastName)
}
