package telephony

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"prepaid-gateway/internal/audit"
	"prepaid-gateway/internal/ivr"
	"prepaid-gateway/pkg/logger"
)

// VoiceForm captures the subset of Twilio voice webhook fields we care
// about. Twilio sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only. Business logic (the call
// flow) is not made here.
type VoiceForm struct {
	CallSid string
	From    string
	Digits  string

	DialCallSid      string
	DialCallStatus   string
	DialCallDuration int64
}

func ParseVoiceForm(r *http.Request) (VoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceForm{}, err
	}
	f := VoiceForm{
		CallSid:        r.PostFormValue("CallSid"),
		From:           strings.TrimSpace(r.PostFormValue("From")),
		Digits:         strings.TrimSpace(r.PostFormValue("Digits")),
		DialCallSid:    r.PostFormValue("DialCallSid"),
		DialCallStatus: r.PostFormValue("DialCallStatus"),
	}
	if raw := r.PostFormValue("DialCallDuration"); raw != "" {
		// Twilio reports whole seconds; a malformed value bills nothing.
		f.DialCallDuration, _ = strconv.ParseInt(raw, 10, 64)
	}
	return f, nil
}

// Flow is the call state machine, satisfied by *ivr.Service.
type Flow interface {
	HandleCallStart(ctx context.Context, caller string) ivr.Instruction
	HandlePinDigits(ctx context.Context, caller, digits string) ivr.Instruction
	HandleOTPDigits(ctx context.Context, caller, digits string) ivr.Instruction
	HandleDestinationDigits(ctx context.Context, caller, digits string) ivr.Instruction
	HandleCallCompleted(ctx context.Context, ev ivr.CompletionEvent) (ivr.Instruction, error)
}

// WebhookHandler converts Twilio webhooks to flow events, delegates to
// the state machine, and writes TwiML back.
type WebhookHandler struct {
	Flow  Flow
	Audit *audit.Service

	// PublicBaseURL is the externally reachable scheme+host Twilio posts
	// to; gather and dial actions are rendered against it.
	PublicBaseURL string
}

const voiceBasePath = "/webhooks/twilio/voice"

func (h WebhookHandler) targetURL(target string) string {
	return strings.TrimSuffix(h.PublicBaseURL, "/") + voiceBasePath + "/" + target
}

func (h WebhookHandler) respond(c *gin.Context, in ivr.Instruction) {
	twiml, err := RenderTwiML(in, h.targetURL)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

func (h WebhookHandler) parse(c *gin.Context) (VoiceForm, bool) {
	form, err := ParseVoiceForm(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return VoiceForm{}, false
	}
	return form, true
}

// Voice handles the inbound-call event.
func (h WebhookHandler) Voice(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	h.respond(c, h.Flow.HandleCallStart(c.Request.Context(), form.From))
}

// Pin handles PIN digit collection.
func (h WebhookHandler) Pin(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	h.respond(c, h.Flow.HandlePinDigits(c.Request.Context(), form.From, form.Digits))
}

// OTP handles one-time-code digit collection.
func (h WebhookHandler) OTP(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	h.respond(c, h.Flow.HandleOTPDigits(c.Request.Context(), form.From, form.Digits))
}

// Destination handles destination digit collection.
func (h WebhookHandler) Destination(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	h.respond(c, h.Flow.HandleDestinationDigits(c.Request.Context(), form.From, form.Digits))
}

// Completed handles the dial-completion event. Settlement errors come
// back as 5xx so Twilio retries the callback; the billing dedup record
// makes the retry safe. The failure is also written to the audit log so
// a leg that never settles is visible for manual reconciliation.
func (h WebhookHandler) Completed(c *gin.Context) {
	form, ok := h.parse(c)
	if !ok {
		return
	}
	ev := ivr.CompletionEvent{
		Caller:          form.From,
		LegID:           c.Query("leg"),
		CarrierLegID:    form.DialCallSid,
		DialStatus:      form.DialCallStatus,
		DurationSeconds: form.DialCallDuration,
	}
	in, err := h.Flow.HandleCallCompleted(c.Request.Context(), ev)
	if err != nil {
		logger.FromGin(c).Error("settlement failed", "caller", ev.Caller, "leg", ev.LegID, "err", err)
		if h.Audit != nil {
			if aerr := h.Audit.LogReconciliation(c.Request.Context(), ev.LegID, ev.Caller, "settlement failed: "+err.Error()); aerr != nil {
				logger.FromGin(c).Error("reconciliation audit failed", "err", aerr)
			}
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settlement failed"})
		return
	}
	h.respond(c, in)
}

// Register mounts the voice webhook routes. The signature middleware is
// applied by the caller so tests can exercise handlers directly.
func (h WebhookHandler) Register(g *gin.RouterGroup) {
	g.POST("", h.Voice)
	g.POST("/"+ivr.TargetPin, h.Pin)
	g.POST("/"+ivr.TargetOTP, h.OTP)
	g.POST("/"+ivr.TargetDestination, h.Destination)
	g.POST("/"+ivr.TargetCompleted, h.Completed)
}
