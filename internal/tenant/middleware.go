package tenant

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/crypto"
	"github.com/thidima/fedlink/internal/store"
)

const (
	ctxKey       = "tenant"
	ctxSealerKey = "tenant_sealer"
)

// Middleware resolves the tenant from the request Host and sets it, with
// its token sealer, in context.
func (s *Service) Middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := s.ByHost(c.Request.Context(), c.Request.Host)
		if errors.Is(err, ErrUnknownDomain) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"status": "error", "error": "unknown_domain"})
			return
		}
		if err != nil {
			logger.Error("resolve tenant", zap.String("host", c.Request.Host), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "unexpected_error"})
			return
		}

		sealer, err := s.Sealer(t)
		if err != nil {
			logger.Error("unwrap tenant data key", zap.String("tenant_id", t.ID.String()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "unexpected_error"})
			return
		}

		c.Set(ctxKey, t)
		c.Set(ctxSealerKey, sealer)
		c.Next()
	}
}

// AdminMiddleware checks the Bearer token against the admin token. An empty
// admin token disables the guarded routes.
func AdminMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if adminToken == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "unauthorized"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(raw), []byte(adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// FromContext retrieves the resolved tenant from the Gin context.
func FromContext(c *gin.Context) *store.Tenant {
	t, _ := c.Get(ctxKey)
	tenant, _ := t.(*store.Tenant)
	return tenant
}

// SealerFromContext retrieves the tenant's token sealer.
func SealerFromContext(c *gin.Context) *crypto.Sealer {
	s, _ := c.Get(ctxSealerKey)
	sealer, _ := s.(*crypto.Sealer)
	return sealer
}
