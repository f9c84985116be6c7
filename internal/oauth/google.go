package oauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/thidima/fedlink/internal/config"
	"github.com/thidima/fedlink/internal/identity"
)

// Google issues id tokens under either spelling of its issuer.
var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

type GoogleProvider struct {
	config   *oauth2.Config
	client   *http.Client
	verifier *identity.Verifier
	keys     identity.KeyResolver
	expect   identity.Expectation
}

// NewGoogleProvider creates a Google OpenID Connect provider. keys resolves
// Google's published signing keys; client bounds the token exchange.
func NewGoogleProvider(cfg config.GoogleConfig, verifier *identity.Verifier, keys identity.KeyResolver, client *http.Client) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		client:   defaultClient(client),
		verifier: verifier,
		keys:     keys,
		expect: identity.Expectation{
			Issuers:  googleIssuers,
			Audience: cfg.ClientID,
		},
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) Tag() string { return "g" }

func (g *GoogleProvider) AuthURL(state, redirectURI string) string {
	cfg := *g.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleProvider) Exchange(ctx context.Context, cb Callback) (*Profile, error) {
	cfg := *g.config
	cfg.RedirectURL = cb.RedirectURI

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	t, err := cfg.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, &Error{Kind: KindTokenExchangeFailed, Provider: g.Name(), Err: fmt.Errorf("google token exchange: %w", err)}
	}

	raw, _ := t.Extra("id_token").(string)
	if raw == "" {
		return nil, &Error{Kind: KindInvalidProfile, Provider: g.Name(), Message: "token response has no id_token"}
	}
	claims, err := g.verifier.Verify(ctx, raw, g.expect, g.keys)
	if err != nil {
		return nil, verificationFailure(g.Name(), err)
	}

	profile, err := profileFromClaims(g.Name(), claims)
	if err != nil {
		return nil, err
	}
	profile.AccessToken = t.AccessToken
	profile.RefreshToken = t.RefreshToken
	return profile, nil
}
