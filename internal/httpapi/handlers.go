package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"prepaid-gateway/internal/account"
	"prepaid-gateway/internal/audit"
	"prepaid-gateway/internal/auth"
	"prepaid-gateway/internal/rbac"
	"prepaid-gateway/internal/reporting"
	"prepaid-gateway/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Accounts  *account.Service
	Reporting *reporting.Service
	Audit     *audit.Service

	// AdminAPIKey is the shared secret exchanged for a token pair.
	AdminAPIKey string
}

// --- Auth ---

type loginRequest struct {
	APIKey string `json:"api_key"`
	Email  string `json:"email"`
	// Role defaults to admin; support may be requested for read-only use.
	Role string `json:"role,omitempty"`
}

// Login exchanges the shared admin secret for a JWT pair.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.AdminAPIKey == "" {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Email == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.AdminAPIKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	role := req.Role
	if role == "" {
		role = rbac.RoleAdmin
	}
	if !rbac.Known(role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.Email, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Accounts ---

type createAccountRequest struct {
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	InitialCents int64  `json:"initial_cents,omitempty"`
	PlanName     string `json:"plan_name,omitempty"`
}

// CreateAccount provisions a subscriber and returns the generated PIN
// and referral code. The PIN is shown exactly once, here.
func (h Handlers) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out, err := h.Accounts.Provision(c.Request.Context(), account.ProvisionRequest{
		Phone:        req.Phone,
		Email:        req.Email,
		InitialCents: req.InitialCents,
		PlanName:     req.PlanName,
	})
	if err != nil {
		h.writeAccountError(c, err)
		return
	}
	h.logAdmin(c, "account created", out.Account.ID)
	c.JSON(http.StatusCreated, gin.H{
		"account_id":    out.Account.ID,
		"phone":         out.Account.Phone,
		"email":         out.Account.Email,
		"pin":           out.Account.PIN,
		"referral_code": out.Account.ReferralCode,
		"wallet_cents":  out.Account.WalletCents,
	})
}

type topUpRequest struct {
	Email       string `json:"email"`
	AmountCents int64  `json:"amount_cents"`
}

func (h Handlers) TopUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	acct, err := h.Accounts.TopUp(c.Request.Context(), req.Email, req.AmountCents)
	if err != nil {
		h.writeAccountError(c, err)
		return
	}
	h.logAdmin(c, "wallet topped up", acct.ID)
	c.JSON(http.StatusOK, gin.H{"account_id": acct.ID, "wallet_cents": acct.WalletCents})
}

type grantPlanRequest struct {
	Email    string `json:"email"`
	PlanName string `json:"plan_name"`
}

func (h Handlers) GrantPlan(c *gin.Context) {
	var req grantPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	plan, err := h.Accounts.GrantPlan(c.Request.Context(), req.Email, req.PlanName)
	if err != nil {
		h.writeAccountError(c, err)
		return
	}
	h.logAdmin(c, "plan granted: "+plan.Name, plan.AccountID)
	c.JSON(http.StatusCreated, gin.H{
		"plan_id":           plan.ID,
		"account_id":        plan.AccountID,
		"name":              plan.Name,
		"seconds_remaining": plan.SecondsRemaining,
		"expires_at":        plan.ExpiresAt,
	})
}

func (h Handlers) ListAccounts(c *gin.Context) {
	out, err := h.Accounts.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

// Usage reports aggregated settled legs for one account over a range.
// Query params: account_id (required), from, to (RFC 3339, optional).
func (h Handlers) Usage(c *gin.Context) {
	req := reporting.UsageSummaryRequest{AccountID: c.Query("account_id")}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		req.Range.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		req.Range.To = t
	}
	sum, err := h.Reporting.UsageSummary(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account_id and a valid range required"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- helpers ---

func (h Handlers) writeAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	case errors.Is(err, account.ErrInvalidPlan):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
	case errors.Is(err, account.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, account.ErrDuplicateEmail):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, account.ErrDuplicatePhone):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "phone already registered"})
	default:
		logger.FromGin(c).Error("account operation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h Handlers) logAdmin(c *gin.Context, message, accountID string) {
	if h.Audit == nil {
		return
	}
	email, _ := auth.Email(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := h.Audit.LogAdminAction(c.Request.Context(), email, role, c.ClientIP(), message, accountID, ""); err != nil {
		logger.FromGin(c).Error("audit append failed", "err", err)
	}
}
