package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read once at startup.
type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL"`
	Store             string        `env:"STORE"               envDefault:"postgres"`
	RootEncryptionKey string        `env:"ROOT_ENCRYPTION_KEY,required"`
	AdminToken        string        `env:"ADMIN_TOKEN"`
	Mode              string        `env:"MODE"`
	Port              string        `env:"PORT"                envDefault:"8080"`
	PublicBaseURL     string        `env:"PUBLIC_BASE_URL"`
	StateTTL          time.Duration `env:"STATE_TTL"           envDefault:"10m"`
	SessionTTL        time.Duration `env:"SESSION_TTL"         envDefault:"720h"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT"    envDefault:"10s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL"      envDefault:"1m"`

	Log    LogConfig    `envPrefix:"LOG_"`
	Google GoogleConfig `envPrefix:"GOOGLE_"`
	Apple  AppleConfig  `envPrefix:"APPLE_"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
}

// GoogleConfig holds the Google client registration. The endpoint overrides
// exist so tests and staging can point at fakes.
type GoogleConfig struct {
	ClientID              string        `env:"CLIENT_ID"`
	ClientSecret          string        `env:"CLIENT_SECRET"`
	AuthURL               string        `env:"AUTH_URL"  envDefault:"https://accounts.google.com/o/oauth2/auth"`
	TokenURL              string        `env:"TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	JWKSURL               string        `env:"JWKS_URL"  envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	JWKSCacheTTL          time.Duration `env:"JWKS_CACHE_TTL"           envDefault:"10m"`
	JWKSRequestsPerMinute int           `env:"JWKS_REQUESTS_PER_MINUTE" envDefault:"5"`
}

// Configured reports whether Google sign-in can be offered.
func (g GoogleConfig) Configured() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// AppleConfig holds the Sign in with Apple service registration.
type AppleConfig struct {
	TeamID                string        `env:"TEAM_ID"`
	ServiceID             string        `env:"SERVICE_ID"`
	KeyID                 string        `env:"KEY_ID"`
	PrivateKey            string        `env:"PRIVATE_KEY"`
	PrivateKeyFile        string        `env:"PRIVATE_KEY_FILE"`
	AuthURL               string        `env:"AUTH_URL"  envDefault:"https://appleid.apple.com/auth/authorize"`
	TokenURL              string        `env:"TOKEN_URL" envDefault:"https://appleid.apple.com/auth/token"`
	JWKSURL               string        `env:"JWKS_URL"  envDefault:"https://appleid.apple.com/auth/keys"`
	JWKSCacheTTL          time.Duration `env:"JWKS_CACHE_TTL"           envDefault:"10m"`
	JWKSRequestsPerMinute int           `env:"JWKS_REQUESTS_PER_MINUTE" envDefault:"5"`
	ClientSecretTTL       time.Duration `env:"CLIENT_SECRET_TTL"        envDefault:"240s"`
}

// Configured reports whether Apple sign-in can be offered.
func (a AppleConfig) Configured() bool {
	return a.TeamID != "" && a.ServiceID != "" && a.KeyID != "" &&
		(a.PrivateKey != "" || a.PrivateKeyFile != "")
}

// PrivateKeyPEM returns the inline key, or the contents of the key file.
func (a AppleConfig) PrivateKeyPEM() ([]byte, error) {
	if strings.TrimSpace(a.PrivateKey) != "" {
		return []byte(a.PrivateKey), nil
	}
	if a.PrivateKeyFile == "" {
		return nil, errors.New("APPLE_PRIVATE_KEY or APPLE_PRIVATE_KEY_FILE is required")
	}
	b, err := os.ReadFile(a.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read apple private key: %w", err)
	}
	return b, nil
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Store {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return cfg, nil
}
