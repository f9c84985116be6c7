// Package testutil holds fakes shared by package tests: an RSA identity-token
// issuer with its JWKS, and a fake provider token endpoint.
package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/thidima/fedlink/internal/identity"
)

// Issuer signs RS256 identity tokens and publishes the matching JWKS.
type Issuer struct {
	KeyID string
	Key   *rsa.PrivateKey
}

func NewIssuer(t testing.TB, kid string) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &Issuer{KeyID: kid, Key: key}
}

// Sign returns a compact RS256 token with the issuer's kid in the header.
func (i *Issuer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.KeyID
	s, err := tok.SignedString(i.Key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// JWKS returns the public key set as served by a provider.
func (i *Issuer) JWKS(t testing.TB) []byte {
	t.Helper()
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &i.Key.PublicKey,
		KeyID:     i.KeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return b
}

// StaticKeys is a KeyResolver backed by a fixed map.
type StaticKeys map[string]any

func (s StaticKeys) Key(_ context.Context, kid string) (any, error) {
	if k, ok := s[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: %s", identity.ErrUnknownSigningKey, kid)
}

// JWKSServer serves a JWKS document and counts requests.
type JWKSServer struct {
	*httptest.Server
	hits  atomic.Int32
	mu    sync.Mutex
	body  []byte
	delay time.Duration
}

func NewJWKSServer(t testing.TB, body []byte) *JWKSServer {
	t.Helper()
	s := &JWKSServer{body: body}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		b, delay := s.body, s.delay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	}))
	t.Cleanup(s.Close)
	return s
}

// SetBody swaps the served document, simulating key rotation.
func (s *JWKSServer) SetBody(b []byte) {
	s.mu.Lock()
	s.body = b
	s.mu.Unlock()
}

// SetDelay makes every response wait d, simulating a slow provider.
func (s *JWKSServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *JWKSServer) Hits() int { return int(s.hits.Load()) }

// TokenEndpoint fakes an OAuth token endpoint. Respond decides the reply
// for each form-encoded request.
type TokenEndpoint struct {
	*httptest.Server
	mu       sync.Mutex
	requests []url.Values
}

func NewTokenEndpoint(t testing.TB, respond func(form url.Values) (int, map[string]any)) *TokenEndpoint {
	t.Helper()
	e := &TokenEndpoint{}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		e.mu.Lock()
		e.requests = append(e.requests, r.PostForm)
		e.mu.Unlock()
		status, body := respond(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(e.Close)
	return e
}

// Requests returns the forms received so far.
func (e *TokenEndpoint) Requests() []url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]url.Values(nil), e.requests...)
}
