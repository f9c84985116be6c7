package oauth

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/config"
	"github.com/thidima/fedlink/internal/identity"
)

// ProvidersFromConfig builds a Registry holding every provider whose
// credentials are complete. Missing credentials leave the provider out so
// start answers credentials_missing; a malformed Apple key is an error.
func ProvidersFromConfig(cfg config.Config, logger *zap.Logger) (*Registry, error) {
	client := &http.Client{Timeout: cfg.ProviderTimeout}
	verifier := identity.NewVerifier(nil)
	var providers []Provider

	if cfg.Google.Configured() {
		keys := identity.NewKeySet(identity.KeySetConfig{
			URL:               cfg.Google.JWKSURL,
			TTL:               cfg.Google.JWKSCacheTTL,
			RequestsPerMinute: cfg.Google.JWKSRequestsPerMinute,
			HTTPClient:        client,
		})
		providers = append(providers, NewGoogleProvider(cfg.Google, verifier, keys, client))
	} else {
		logger.Info("google sign-in disabled: credentials missing")
	}

	if cfg.Apple.Configured() {
		pem, err := cfg.Apple.PrivateKeyPEM()
		if err != nil {
			return nil, err
		}
		secrets, err := NewClientSecretCache(ClientSecretConfig{
			TeamID:        cfg.Apple.TeamID,
			ServiceID:     cfg.Apple.ServiceID,
			KeyID:         cfg.Apple.KeyID,
			PrivateKeyPEM: pem,
			TTL:           cfg.Apple.ClientSecretTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("apple client secret: %w", err)
		}
		keys := identity.NewKeySet(identity.KeySetConfig{
			URL:               cfg.Apple.JWKSURL,
			TTL:               cfg.Apple.JWKSCacheTTL,
			RequestsPerMinute: cfg.Apple.JWKSRequestsPerMinute,
			HTTPClient:        client,
		})
		providers = append(providers, NewAppleProvider(cfg.Apple, secrets, verifier, keys, client, logger.Named("apple")))
	} else {
		logger.Info("apple sign-in disabled: credentials missing")
	}

	return NewRegistry(providers...), nil
}
