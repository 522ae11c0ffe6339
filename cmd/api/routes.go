package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"prepaid-gateway/internal/account"
	"prepaid-gateway/internal/audit"
	"prepaid-gateway/internal/auth"
	"prepaid-gateway/internal/config"
	"prepaid-gateway/internal/httpapi"
	"prepaid-gateway/internal/rbac"
	"prepaid-gateway/internal/reporting"
	"prepaid-gateway/internal/telephony"
	"prepaid-gateway/pkg/utils"
)

type routeDeps struct {
	cfg       config.Config
	db        *sql.DB
	rdb       *redis.Client
	auth      *auth.Manager
	accounts  *account.Service
	reporting *reporting.Service
	audit     *audit.Service
	webhooks  telephony.WebhookHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := d.rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Carrier webhooks (public trust boundary, guarded by request signing).
	voice := r.Group("/webhooks/twilio/voice")
	if d.cfg.Carrier.ValidateSignature {
		voice.Use(telephony.SignatureMiddleware(d.cfg.Carrier.AuthToken, d.cfg.Carrier.PublicBaseURL))
	}
	d.webhooks.Register(voice)

	h := httpapi.Handlers{
		Auth:        d.auth,
		Accounts:    d.accounts,
		Reporting:   d.reporting,
		Audit:       d.audit,
		AdminAPIKey: d.cfg.Auth.AdminAPIKey,
	}

	r.POST("/admin/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(auth.RequireAccessToken(d.auth))
	{
		reads := admin.Group("")
		reads.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSupport))
		{
			reads.GET("/accounts", h.ListAccounts)
			reads.GET("/accounts/usage", h.Usage)
		}

		writes := admin.Group("")
		writes.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			writes.POST("/accounts", h.CreateAccount)
			writes.POST("/accounts/topup", h.TopUp)
			writes.POST("/accounts/plans", h.GrantPlan)
		}
	}
}
