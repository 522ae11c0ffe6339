package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"prepaid-gateway/pkg/logger"
)

const signatureHeader = "X-Twilio-Signature"

// ComputeSignature implements Twilio's request signing scheme: HMAC-SHA1
// over the full request URL followed by the POST parameters sorted by
// name, each appended as name+value, base64 encoded.
func ComputeSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignatureMiddleware rejects webhook posts whose X-Twilio-Signature does
// not match. baseURL must be the public scheme+host Twilio was given,
// since the signed URL is the one Twilio requested, not what the reverse
// proxy forwards.
func SignatureMiddleware(authToken, baseURL string) gin.HandlerFunc {
	base := strings.TrimSuffix(baseURL, "/")
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		fullURL := base + c.Request.URL.RequestURI()
		expected := ComputeSignature(authToken, fullURL, c.Request.PostForm)
		got := c.GetHeader(signatureHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			log.Warn("webhook signature mismatch", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "signature mismatch"})
			return
		}
		c.Next()
	}
}
