// Package ivr drives the caller-facing flow: PIN entry, emailed one-time
// code, destination entry, bridge. It is carrier-agnostic; the telephony
// layer translates Events in and Instructions out.
package ivr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"prepaid-gateway/internal/account"
	"prepaid-gateway/internal/billing"
	"prepaid-gateway/internal/calls"
	"prepaid-gateway/internal/otp"
	"prepaid-gateway/internal/pricing"
	"prepaid-gateway/internal/session"
)

// Action tells the telephony layer what to render next.
type Action string

const (
	// ActionSayHangup speaks Say and ends the call.
	ActionSayHangup Action = "say_hangup"
	// ActionGather speaks Say then collects GatherDigits digits and posts
	// them to GatherTarget.
	ActionGather Action = "gather"
	// ActionDial bridges to DialNumber, capped at DialMaxSeconds, posting
	// the outcome to DialTarget.
	ActionDial Action = "dial"
)

// Instruction is the machine's reply to one inbound event.
type Instruction struct {
	Action Action
	Say    string

	GatherDigits  int
	GatherTarget  string
	GatherTimeout time.Duration

	DialNumber     string
	DialMaxSeconds int64
	DialTarget     string
	DialCallerID   string
	// DialLegID rides along so the completion event can name the leg even
	// if the session is gone by then.
	DialLegID string
}

// Gather targets the telephony layer maps to webhook paths.
const (
	TargetPin         = "pin"
	TargetOTP         = "otp"
	TargetDestination = "destination"
	TargetCompleted   = "completed"
)

// SessionStore is the per-caller TTL state, satisfied by *session.Store.
type SessionStore interface {
	Create(ctx context.Context, sess session.CallSession, ttl time.Duration) error
	Get(ctx context.Context, caller string) (session.CallSession, bool)
	Put(ctx context.Context, sess session.CallSession, ttl time.Duration) error
	Delete(ctx context.Context, caller string) error
}

// OTPService issues and verifies one-time codes, satisfied by *otp.Service.
type OTPService interface {
	Issue(ctx context.Context, caller string) (string, error)
	Verify(ctx context.Context, caller, entered string) (otp.Outcome, error)
}

// Accounts resolves callers, satisfied by *account.Service.
type Accounts interface {
	GetByPhone(ctx context.Context, phone string) (account.Account, []account.Plan, error)
}

// Settler bills completed legs, satisfied by *billing.Service.
type Settler interface {
	Settle(ctx context.Context, req billing.SettleRequest) (billing.Settlement, error)
}

// CodeSender delivers the one-time code out of band.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string, expiresIn time.Duration) error
}

type Config struct {
	PinEntryTTL    time.Duration
	OTPWindowTTL   time.Duration
	DestinationTTL time.Duration
	// InCallGrace keeps the session alive long enough for the completion
	// event to arrive after the dial cap elapses.
	InCallGrace time.Duration

	MaxPinAttempts int
	PinLength      int

	RatePerMinuteCents int64
	DefaultCountryCode string
	GatewayNumber      string
}

func (c Config) withDefaults() Config {
	if c.PinEntryTTL <= 0 {
		c.PinEntryTTL = 60 * time.Second
	}
	if c.OTPWindowTTL <= 0 {
		c.OTPWindowTTL = 5 * time.Minute
	}
	if c.DestinationTTL <= 0 {
		c.DestinationTTL = 60 * time.Second
	}
	if c.InCallGrace <= 0 {
		c.InCallGrace = 5 * time.Minute
	}
	if c.MaxPinAttempts <= 0 {
		c.MaxPinAttempts = 3
	}
	if c.PinLength <= 0 {
		c.PinLength = 6
	}
	if c.DefaultCountryCode == "" {
		c.DefaultCountryCode = "1"
	}
	return c
}

// Service is the state machine. All per-caller state lives in the
// session store; the service itself is stateless and safe for
// concurrent use.
type Service struct {
	sessions SessionStore
	otp      OTPService
	accounts Accounts
	settler  Settler
	sender   CodeSender
	log      *slog.Logger
	cfg      Config

	clock func() time.Time
}

func NewService(sessions SessionStore, otpSvc OTPService, accounts Accounts, settler Settler, sender CodeSender, log *slog.Logger, cfg Config) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sessions: sessions,
		otp:      otpSvc,
		accounts: accounts,
		settler:  settler,
		sender:   sender,
		log:      log,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
	}
}

// Canned prompts. Kept short: these are spoken, not read.
const (
	sayNotRegistered  = "This number is not registered. Goodbye."
	saySessionActive  = "A call is already in progress for this number. Goodbye."
	saySessionExpired = "Your session has expired. Please call again."
	sayPinRejected    = "Too many incorrect PIN attempts. Goodbye."
	sayPinRetry       = "Incorrect PIN. Please try again."
	sayOTPFailed      = "The code could not be verified. Please call again."
	sayOTPExpired     = "The code has expired. Please call again."
	sayNoMinutes      = "You have no calling balance remaining. Goodbye."
	sayCodeTrouble    = "We could not send a verification code right now. Please call again later."
	sayInternal       = "Something went wrong. Please call again."
)

func gather(say string, digits int, target string, timeout time.Duration) Instruction {
	return Instruction{
		Action:        ActionGather,
		Say:           say,
		GatherDigits:  digits,
		GatherTarget:  target,
		GatherTimeout: timeout,
	}
}

func hangup(say string) Instruction {
	return Instruction{Action: ActionSayHangup, Say: say}
}

// HandleCallStart resolves the caller and opens a PIN-entry session.
// Session creation is the per-caller mutex: a second concurrent call
// from the same number is turned away without touching the first.
func (s *Service) HandleCallStart(ctx context.Context, caller string) Instruction {
	if caller == "" {
		return hangup(sayNotRegistered)
	}
	acct, _, err := s.accounts.GetByPhone(ctx, caller)
	if errors.Is(err, account.ErrNotFound) {
		return hangup(sayNotRegistered)
	}
	if err != nil {
		s.log.Error("caller lookup failed", "caller", caller, "error", err)
		return hangup(sayInternal)
	}

	sess := session.CallSession{
		Caller:    caller,
		Stage:     session.StagePinEntry,
		PIN:       acct.PIN,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.sessions.Create(ctx, sess, s.cfg.PinEntryTTL); err != nil {
		if errors.Is(err, session.ErrExists) {
			return hangup(saySessionActive)
		}
		s.log.Error("session create failed", "caller", caller, "error", err)
		return hangup(sayInternal)
	}
	prompt := fmt.Sprintf("Welcome. Please enter your %d digit PIN.", s.cfg.PinLength)
	return gather(prompt, s.cfg.PinLength, TargetPin, s.cfg.PinEntryTTL)
}

// HandlePinDigits checks the entered PIN. Wrong entries re-prompt while
// the attempt counter allows; once it is exhausted the next submission
// is rejected even if correct.
func (s *Service) HandlePinDigits(ctx context.Context, caller, digits string) Instruction {
	sess, ok := s.sessions.Get(ctx, caller)
	if !ok || sess.Stage != session.StagePinEntry {
		return hangup(saySessionExpired)
	}

	sess.Attempts++
	if sess.Attempts > s.cfg.MaxPinAttempts {
		s.deleteSession(ctx, caller)
		return hangup(sayPinRejected)
	}
	if digits != sess.PIN {
		if err := s.sessions.Put(ctx, sess, s.cfg.PinEntryTTL); err != nil {
			s.log.Error("session put failed", "caller", caller, "error", err)
			return hangup(sayInternal)
		}
		return gather(sayPinRetry, s.cfg.PinLength, TargetPin, s.cfg.PinEntryTTL)
	}

	code, err := s.otp.Issue(ctx, caller)
	if err != nil {
		s.log.Error("otp issue failed", "caller", caller, "error", err)
		s.deleteSession(ctx, caller)
		return hangup(sayCodeTrouble)
	}
	acct, _, err := s.accounts.GetByPhone(ctx, caller)
	if err != nil {
		s.log.Error("caller lookup failed", "caller", caller, "error", err)
		s.deleteSession(ctx, caller)
		return hangup(sayInternal)
	}
	if err := s.sender.SendCode(ctx, acct.Email, code, s.cfg.OTPWindowTTL); err != nil {
		s.log.Error("otp delivery failed", "caller", caller, "error", err)
		s.deleteSession(ctx, caller)
		return hangup(sayCodeTrouble)
	}

	sess.Stage = session.StageOTPPending
	sess.Attempts = 0
	if err := s.sessions.Put(ctx, sess, s.cfg.OTPWindowTTL); err != nil {
		s.log.Error("session put failed", "caller", caller, "error", err)
		return hangup(sayInternal)
	}
	return gather("We emailed you a 6 digit code. Please enter it now.", 6, TargetOTP, s.cfg.OTPWindowTTL)
}

// HandleOTPDigits verifies the emailed code. The code is single-use, so
// every failure kind ends the session.
func (s *Service) HandleOTPDigits(ctx context.Context, caller, digits string) Instruction {
	sess, ok := s.sessions.Get(ctx, caller)
	if !ok || sess.Stage != session.StageOTPPending {
		return hangup(saySessionExpired)
	}

	outcome, err := s.otp.Verify(ctx, caller, digits)
	if err != nil {
		s.log.Error("otp verify failed", "caller", caller, "error", err)
		s.deleteSession(ctx, caller)
		return hangup(sayInternal)
	}
	switch outcome {
	case otp.OutcomeOK:
	case otp.OutcomeExpired:
		s.deleteSession(ctx, caller)
		return hangup(sayOTPExpired)
	default:
		s.deleteSession(ctx, caller)
		return hangup(sayOTPFailed)
	}

	sess.Stage = session.StageDestinationPending
	if err := s.sessions.Put(ctx, sess, s.cfg.DestinationTTL); err != nil {
		s.log.Error("session put failed", "caller", caller, "error", err)
		return hangup(sayInternal)
	}
	return gather("Please enter the destination number, then press pound.", 0, TargetDestination, s.cfg.DestinationTTL)
}

// HandleDestinationDigits normalizes the destination, checks the caller
// still has funded time, and bridges. The leg ID is minted here and
// threaded through to the completion event.
func (s *Service) HandleDestinationDigits(ctx context.Context, caller, digits string) Instruction {
	sess, ok := s.sessions.Get(ctx, caller)
	if !ok || sess.Stage != session.StageDestinationPending {
		return hangup(saySessionExpired)
	}

	dest := NormalizeDestination(digits, s.cfg.DefaultCountryCode)
	if dest == "" {
		// Invalid input does not consume the session.
		return gather("That number is not valid. Please enter the destination number, then press pound.", 0, TargetDestination, s.cfg.DestinationTTL)
	}

	acct, plans, err := s.accounts.GetByPhone(ctx, caller)
	if err != nil {
		s.log.Error("caller lookup failed", "caller", caller, "error", err)
		s.deleteSession(ctx, caller)
		return hangup(sayInternal)
	}
	now := s.clock().UTC()
	available := pricing.AvailableSeconds(account.ActivePlanSeconds(plans, now), acct.WalletCents, s.cfg.RatePerMinuteCents)
	if available <= 0 {
		s.deleteSession(ctx, caller)
		return hangup(sayNoMinutes)
	}

	sess.Stage = session.StageInCall
	sess.LegID = uuid.NewString()
	sess.Destination = dest
	// The dial cap plus grace keeps the session alive until settlement.
	if err := s.sessions.Put(ctx, sess, time.Duration(available)*time.Second+s.cfg.InCallGrace); err != nil {
		s.log.Error("session put failed", "caller", caller, "error", err)
		return hangup(sayInternal)
	}

	return Instruction{
		Action:         ActionDial,
		Say:            "Connecting your call.",
		DialNumber:     dest,
		DialMaxSeconds: available,
		DialTarget:     TargetCompleted,
		DialCallerID:   s.cfg.GatewayNumber,
		DialLegID:      sess.LegID,
	}
}

// CompletionEvent is the carrier's report for a finished leg.
type CompletionEvent struct {
	Caller string
	// LegID is the identifier threaded through the dial instruction.
	// When absent (stale carrier retry), the session's leg ID or the
	// carrier leg identifier stands in.
	LegID           string
	CarrierLegID    string
	DialStatus      string
	DurationSeconds int64
}

// HandleCallCompleted settles the leg and tears the session down. A
// settlement error propagates so the transport can 5xx and the carrier
// retries; the dedup record makes the retry safe.
func (s *Service) HandleCallCompleted(ctx context.Context, ev CompletionEvent) (Instruction, error) {
	sess, hasSession := s.sessions.Get(ctx, ev.Caller)

	legID := ev.LegID
	if legID == "" && hasSession {
		legID = sess.LegID
	}
	if legID == "" {
		legID = ev.CarrierLegID
	}
	if legID == "" {
		// Nothing to bill against; acknowledge and clean up.
		s.deleteSession(ctx, ev.Caller)
		return hangup("Goodbye."), nil
	}

	st, err := s.settler.Settle(ctx, billing.SettleRequest{
		CallerPhone:     ev.Caller,
		LegID:           legID,
		Destination:     sess.Destination,
		Status:          calls.ParseDialStatus(ev.DialStatus),
		DurationSeconds: ev.DurationSeconds,
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.deleteSession(ctx, ev.Caller)
			return hangup("Goodbye."), nil
		}
		return Instruction{}, err
	}

	s.deleteSession(ctx, ev.Caller)
	if !st.Billed {
		return hangup("Goodbye."), nil
	}
	return hangup("Thank you for calling. Goodbye."), nil
}

func (s *Service) deleteSession(ctx context.Context, caller string) {
	if err := s.sessions.Delete(ctx, caller); err != nil {
		s.log.Error("session delete failed", "caller", caller, "error", err)
	}
}

// NormalizeDestination reduces raw digit input to an E.164 number:
// strip non-digits, drop one leading zero, and prefix the default
// country code unless the number already carries one.
func NormalizeDestination(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, countryCode) && len(digits) > 10 {
		return "+" + digits
	}
	return "+" + countryCode + digits
}
