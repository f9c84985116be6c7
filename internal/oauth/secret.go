package oauth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const appleAudience = "https://appleid.apple.com"

// ClientSecretConfig describes the signed client secret Apple expects in
// place of a static one.
type ClientSecretConfig struct {
	TeamID    string
	ServiceID string
	KeyID     string
	// PrivateKeyPEM is the .p8 key downloaded from the Apple developer portal.
	PrivateKeyPEM []byte
	TTL           time.Duration
	Now           func() time.Time
}

type clientSecret struct {
	value     string
	expiresAt time.Time
}

// ClientSecretCache hands out an ES256 client secret and regenerates it
// once it has expired. Concurrent regeneration is harmless: every secret
// is valid until its own expiry, so the last one stored wins.
type ClientSecretCache struct {
	teamID    string
	serviceID string
	keyID     string
	key       *ecdsa.PrivateKey
	ttl       time.Duration
	now       func() time.Time

	current atomic.Pointer[clientSecret]
}

func NewClientSecretCache(cfg ClientSecretConfig) (*ClientSecretCache, error) {
	if cfg.TeamID == "" || cfg.ServiceID == "" || cfg.KeyID == "" {
		return nil, errors.New("apple team id, service id and key id are required")
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse apple private key: %w", err)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 240 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ClientSecretCache{
		teamID:    cfg.TeamID,
		serviceID: cfg.ServiceID,
		keyID:     cfg.KeyID,
		key:       key,
		ttl:       cfg.TTL,
		now:       cfg.Now,
	}, nil
}

// Get returns the cached secret while it is unexpired, else a fresh one.
func (c *ClientSecretCache) Get() (string, error) {
	now := c.now()
	if s := c.current.Load(); s != nil && now.Before(s.expiresAt) {
		return s.value, nil
	}

	exp := now.Add(c.ttl)
	// Apple documents aud as a single string, not an array.
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.teamID,
		"sub": c.serviceID,
		"aud": appleAudience,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})
	token.Header["kid"] = c.keyID

	value, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign apple client secret: %w", err)
	}
	c.current.Store(&clientSecret{value: value, expiresAt: exp})
	return value, nil
}
