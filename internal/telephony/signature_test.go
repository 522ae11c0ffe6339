package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestComputeSignatureSortsParams(t *testing.T) {
	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("CallSid", "CA123")
	form.Set("Digits", "482913")

	fullURL := "https://gw.example.com/webhooks/twilio/voice/pin"
	got := ComputeSignature("token", fullURL, form)

	// Params concatenate name+value sorted by name.
	mac := hmac.New(sha1.New, []byte("token"))
	mac.Write([]byte(fullURL + "CallSidCA123" + "Digits482913" + "From+15551234567"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Fatalf("signature mismatch: got %q want %q", got, want)
	}
}

func newSignedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/twilio/voice", SignatureMiddleware("token", "https://gw.example.com"), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestSignatureMiddleware(t *testing.T) {
	r := newSignedRouter()
	form := url.Values{"From": {"+15551234567"}, "CallSid": {"CA123"}}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signatureHeader, ComputeSignature("token", "https://gw.example.com/webhooks/twilio/voice", form))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid signature, got %d", w.Code)
	}
}

func TestSignatureMiddlewareRejects(t *testing.T) {
	r := newSignedRouter()
	form := url.Values{"From": {"+15551234567"}}

	for _, sig := range []string{"", "bogus"} {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set(signatureHeader, sig)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for signature %q, got %d", sig, w.Code)
		}
	}
}
