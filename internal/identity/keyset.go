package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	// ErrKeySetRateLimited is returned when a refresh is needed but the
	// requests-per-minute budget for the key endpoint is spent.
	ErrKeySetRateLimited = errors.New("jwks refresh rate limited")
	// ErrKeySetUnavailable is returned when no usable key set could be
	// fetched. It says nothing about the token being verified.
	ErrKeySetUnavailable = errors.New("jwks unavailable")
)

// KeySetConfig configures a remote JWKS.
type KeySetConfig struct {
	URL               string
	TTL               time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
	Now               func() time.Time
}

// KeySet resolves signing keys from a provider's published JWKS. Keys are
// cached for TTL; an unknown kid forces a refresh so rotated keys are
// picked up, bounded by RequestsPerMinute. Concurrent misses share one fetch.
type KeySet struct {
	url     string
	ttl     time.Duration
	client  *http.Client
	now     func() time.Time
	limiter *rate.Limiter
	group   singleflight.Group

	mu        sync.RWMutex
	keys      map[string]jose.JSONWebKey
	fetchedAt time.Time
}

func NewKeySet(cfg KeySetConfig) *KeySet {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &KeySet{
		url:     cfg.URL,
		ttl:     cfg.TTL,
		client:  cfg.HTTPClient,
		now:     cfg.Now,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute),
	}
}

// Key implements KeyResolver.
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	key, found, fresh := k.cached(kid)
	if found && fresh {
		return key, nil
	}

	// The shared fetch outlives any one caller; each caller stops waiting
	// when its own ctx ends. The HTTP client timeout bounds the fetch.
	fetchCtx := context.WithoutCancel(ctx)
	ch := k.group.DoChan("refresh", func() (any, error) {
		// A concurrent caller may have refreshed while we waited for the group.
		if _, ok, fresh := k.cached(kid); ok && fresh {
			return nil, nil
		}
		if !k.limiter.Allow() {
			return nil, ErrKeySetRateLimited
		}
		return nil, k.refresh(fetchCtx)
	})
	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if found {
			// Stale beats nothing while the endpoint is unreachable or throttled.
			return key, nil
		}
		if errors.Is(err, ErrKeySetRateLimited) && k.fetched() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSigningKey, kid)
		}
		return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, err)
	}

	key, found, _ = k.cached(kid)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigningKey, kid)
	}
	return key, nil
}

func (k *KeySet) cached(kid string) (key any, found, fresh bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	jwk, ok := k.keys[kid]
	if !ok {
		return nil, false, false
	}
	return jwk.Key, true, k.now().Sub(k.fetchedAt) < k.ttl
}

// fetched reports whether a key set was ever retrieved.
func (k *KeySet) fetched() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return !k.fetchedAt.IsZero()
}

func (k *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jwks endpoint returned %d: %s", resp.StatusCode, body)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" || !jwk.IsPublic() || !jwk.Valid() {
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		keys[jwk.KeyID] = jwk
	}

	k.mu.Lock()
	k.keys = keys
	k.fetchedAt = k.now()
	k.mu.Unlock()
	return nil
}
