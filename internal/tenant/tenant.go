package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/thidima/fedlink/internal/crypto"
	"github.com/thidima/fedlink/internal/store"
)

var (
	// ErrUnknownDomain is returned when no tenant serves a host.
	ErrUnknownDomain = errors.New("unknown domain")
	ErrInvalidHost   = errors.New("host is required")
)

// Store is the tenant slice of store.Querier.
type Store interface {
	CreateTenant(ctx context.Context, arg store.CreateTenantParams) (store.Tenant, error)
	GetTenantByHost(ctx context.Context, host string) (store.Tenant, error)
}

type Service struct {
	queries Store
	enc     *crypto.Encryptor
}

func NewService(queries Store, enc *crypto.Encryptor) *Service {
	return &Service{
		queries: queries,
		enc:     enc,
	}
}

// Create provisions a tenant for host with a fresh data key.
func (s *Service) Create(ctx context.Context, host string) (*store.Tenant, error) {
	host = NormalizeHost(host)
	if host == "" {
		return nil, ErrInvalidHost
	}

	encDataKey, err := s.enc.NewDataKey()
	if err != nil {
		return nil, err
	}

	t, err := s.queries.CreateTenant(ctx, store.CreateTenantParams{
		Host:             host,
		EncryptedDataKey: encDataKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return &t, nil
}

// ByHost resolves the tenant serving host.
func (s *Service) ByHost(ctx context.Context, host string) (*store.Tenant, error) {
	t, err := s.queries.GetTenantByHost(ctx, NormalizeHost(host))
	if store.IsNotFound(err) {
		return nil, ErrUnknownDomain
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	return &t, nil
}

// Sealer returns the token sealer for the tenant's data key.
func (s *Service) Sealer(t *store.Tenant) (*crypto.Sealer, error) {
	return s.enc.Sealer(t.EncryptedDataKey)
}

// NormalizeHost lowercases host and strips any port.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
