package oauth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/config"
	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/testutil"
)

func TestProvidersFromConfig(t *testing.T) {
	pemKey, _ := testutil.NewECKeyPEM(t)
	base := config.Config{ProviderTimeout: 5 * time.Second}

	t.Run("none configured", func(t *testing.T) {
		r, err := oauth.ProvidersFromConfig(base, zap.NewNop())
		require.NoError(t, err)
		assert.Empty(t, r.Names())
	})

	t.Run("google only", func(t *testing.T) {
		cfg := base
		cfg.Google = config.GoogleConfig{ClientID: "id", ClientSecret: "secret"}
		r, err := oauth.ProvidersFromConfig(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, []string{"google"}, r.Names())
	})

	t.Run("both", func(t *testing.T) {
		cfg := base
		cfg.Google = config.GoogleConfig{ClientID: "id", ClientSecret: "secret"}
		cfg.Apple = config.AppleConfig{TeamID: "T", ServiceID: "S", KeyID: "K", PrivateKey: string(pemKey)}
		r, err := oauth.ProvidersFromConfig(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, []string{"apple", "google"}, r.Names())
	})

	t.Run("malformed apple key", func(t *testing.T) {
		cfg := base
		cfg.Apple = config.AppleConfig{TeamID: "T", ServiceID: "S", KeyID: "K", PrivateKey: "garbage"}
		_, err := oauth.ProvidersFromConfig(cfg, zap.NewNop())
		assert.Error(t, err)
	})
}
