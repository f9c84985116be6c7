package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/tenant"
)

func RegisterRoutes(r *gin.Engine, h *Handler, tenantSvc *tenant.Service, adminToken string, logger *zap.Logger) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Tenant provisioning is admin-gated.
	r.POST("/tenants", tenant.AdminMiddleware(adminToken), h.CreateTenant)

	// Sign-in routes are served per domain; the tenant comes from Host.
	auth := r.Group("/auth/:provider", tenantSvc.Middleware(logger))
	{
		auth.GET("/start", h.Start)
		auth.GET("/callback", h.Callback)
		// Apple uses response_mode=form_post.
		auth.POST("/callback", h.Callback)
	}
}
