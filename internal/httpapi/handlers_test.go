package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"prepaid-gateway/internal/auth"
	"prepaid-gateway/internal/calls"
	"prepaid-gateway/internal/config"
	"prepaid-gateway/internal/reporting"
)

func newManager(t *testing.T) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Auth: newManager(t), AdminAPIKey: "letmein"}
	r := gin.New()
	r.POST("/admin/login", h.Login)

	w := postJSON(r, "/admin/login", `{"api_key":"letmein","email":"ops@example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Fatalf("expected token pair, got %s", w.Body.String())
	}

	claims, err := h.Auth.Verify(out.AccessToken, auth.TokenTypeAccess, time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected default admin role, got %q", claims.Role)
	}
}

func TestLoginRejectsBadKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Auth: newManager(t), AdminAPIKey: "letmein"}
	r := gin.New()
	r.POST("/admin/login", h.Login)

	w := postJSON(r, "/admin/login", `{"api_key":"wrong","email":"ops@example.com"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLoginRejectsUnknownRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Auth: newManager(t), AdminAPIKey: "letmein"}
	r := gin.New()
	r.POST("/admin/login", h.Login)

	w := postJSON(r, "/admin/login", `{"api_key":"letmein","email":"ops@example.com","role":"owner"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type fixedLegs struct {
	legs []calls.CallLeg
}

func (f fixedLegs) SettledLegs(ctx context.Context, accountID string, from, to time.Time) ([]calls.CallLeg, error) {
	return f.legs, nil
}

func TestUsage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Reporting: reporting.NewService(fixedLegs{legs: []calls.CallLeg{
		{LegID: "l1", AccountID: "a1", Status: calls.DialStatusCompleted, DurationSeconds: 120, WalletCentsCharged: 20},
	}})}
	r := gin.New()
	r.GET("/admin/accounts/usage", h.Usage)

	req := httptest.NewRequest(http.MethodGet, "/admin/accounts/usage?account_id=a1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sum reporting.UsageSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.TotalLegs != 1 || sum.TotalDurationSeconds != 120 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestUsageRequiresAccountID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Reporting: reporting.NewService(fixedLegs{})}
	r := gin.New()
	r.GET("/admin/accounts/usage", h.Usage)

	req := httptest.NewRequest(http.MethodGet, "/admin/accounts/usage", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
