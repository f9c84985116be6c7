package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/account"
	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/session"
	"github.com/thidima/fedlink/internal/signin"
	"github.com/thidima/fedlink/internal/store"
	"github.com/thidima/fedlink/internal/tenant"
)

const sessionCookie = "session"

// SignIn is the sign-in flow the handlers drive.
type SignIn interface {
	Start(ctx context.Context, tenantID uuid.UUID, provider, redirectURI string) (*signin.Prompt, error)
	Callback(ctx context.Context, req signin.CallbackRequest) signin.Result
}

// Tenants provisions tenants.
type Tenants interface {
	Create(ctx context.Context, host string) (*store.Tenant, error)
}

type Handler struct {
	signin  SignIn
	tenants Tenants
	// baseURL, when set, replaces the request host in redirect URIs.
	baseURL string
	logger  *zap.Logger
}

func NewHandler(s SignIn, tenants Tenants, baseURL string, logger *zap.Logger) *Handler {
	return &Handler{
		signin:  s,
		tenants: tenants,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// CreateTenant provisions a tenant for a host.
func (h *Handler) CreateTenant(c *gin.Context) {
	var body struct {
		Host string `json:"host" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid_request", "message": err.Error()})
		return
	}

	t, err := h.tenants.Create(c.Request.Context(), body.Host)
	if errors.Is(err, tenant.ErrInvalidHost) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid_request", "message": err.Error()})
		return
	}
	if store.IsUniqueViolation(err) {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "domain_exists"})
		return
	}
	if err != nil {
		h.logger.Error("create tenant", zap.String("host", body.Host), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "unexpected_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"tenant_id": t.ID,
		"host":      t.Host,
	})
}

// Start issues a state token and returns the provider authorization URL.
func (h *Handler) Start(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))
	t := tenant.FromContext(c)

	prompt, err := h.signin.Start(c.Request.Context(), t.ID, provider, h.redirectURI(c, provider))
	if err != nil {
		writeError(c, asOAuthError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "prompt",
		"authUrl": prompt.AuthURL,
		"state":   prompt.State,
	})
}

// Callback handles the provider redirect. Apple posts the form body; Google
// sends a query string.
func (h *Handler) Callback(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))
	t := tenant.FromContext(c)

	res := h.signin.Callback(c.Request.Context(), signin.CallbackRequest{
		Provider:    provider,
		Code:        formOrQuery(c, "code"),
		State:       formOrQuery(c, "state"),
		User:        formOrQuery(c, "user"),
		RedirectURI: h.redirectURI(c, provider),
		Scope:       account.Scope{TenantID: t.ID, Sealer: tenant.SealerFromContext(c)},
		Client:      session.Request{UserAgent: c.Request.UserAgent(), RemoteAddr: c.ClientIP()},
	})

	switch r := res.(type) {
	case signin.SignedIn:
		h.writeSession(c, r)
	case signin.Conflict:
		c.JSON(http.StatusConflict, gin.H{
			"status": "error",
			"error":  oauth.KindNotLinked,
			"email":  r.Email,
		})
	case signin.Failed:
		writeError(c, r.Err)
	default:
		h.logger.Error("unhandled sign-in result", zap.Any("result", res))
		writeError(c, &oauth.Error{Kind: oauth.KindUnexpected})
	}
}

func (h *Handler) writeSession(c *gin.Context, r signin.SignedIn) {
	s := r.Session
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, s.Token, maxAge, "/", "", true, true)

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"user_id":       s.User.ID,
		"username":      s.User.Username,
		"email":         s.User.Email,
		"first_name":    s.User.FirstName,
		"last_name":     s.User.LastName,
		"session_token": s.Token,
		"expires_at":    s.ExpiresAt,
		"created":       r.Created,
	})
}

// redirectURI is the callback URL registered with the provider.
func (h *Handler) redirectURI(c *gin.Context, provider string) string {
	base := h.baseURL
	if base == "" {
		base = "https://" + c.Request.Host
	}
	return base + "/auth/" + provider + "/callback"
}

func formOrQuery(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}

func asOAuthError(err error) *oauth.Error {
	var oe *oauth.Error
	if errors.As(err, &oe) {
		return oe
	}
	return &oauth.Error{Kind: oauth.KindOf(err), Err: err}
}

// writeError renders a sign-in failure. Only the kind, a short message and
// the user-supplied email leave the process.
func writeError(c *gin.Context, e *oauth.Error) {
	body := gin.H{"status": "error", "error": e.Kind}
	if e.Message != "" {
		body["message"] = e.Message
	}
	switch e.Kind {
	case oauth.KindNotLinked, oauth.KindUserExists, oauth.KindRollbackFailed:
		if e.Email != "" {
			body["email"] = e.Email
		}
	}
	c.JSON(statusFor(e.Kind), body)
}

func statusFor(kind oauth.ErrorKind) int {
	switch kind {
	case oauth.KindMissingState, oauth.KindInvalidState, oauth.KindInvalidCode:
		return http.StatusBadRequest
	case oauth.KindInvalidProfile, oauth.KindEmailNotVerified:
		return http.StatusUnauthorized
	case oauth.KindNotLinked, oauth.KindUserExists:
		return http.StatusConflict
	case oauth.KindTokenExchangeFailed:
		return http.StatusBadGateway
	case oauth.KindCredentialsMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
