package ivr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"prepaid-gateway/internal/account"
	"prepaid-gateway/internal/billing"
	"prepaid-gateway/internal/calls"
	"prepaid-gateway/internal/otp"
	"prepaid-gateway/internal/session"
)

var testNow = time.Unix(1700000000, 0).UTC()

type fakeSessions struct {
	store map[string]session.CallSession
	ttls  map[string]time.Duration
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{store: map[string]session.CallSession{}, ttls: map[string]time.Duration{}}
}

func (f *fakeSessions) Create(ctx context.Context, sess session.CallSession, ttl time.Duration) error {
	if _, ok := f.store[sess.Caller]; ok {
		return session.ErrExists
	}
	f.store[sess.Caller] = sess
	f.ttls[sess.Caller] = ttl
	return nil
}

func (f *fakeSessions) Get(ctx context.Context, caller string) (session.CallSession, bool) {
	s, ok := f.store[caller]
	return s, ok
}

func (f *fakeSessions) Put(ctx context.Context, sess session.CallSession, ttl time.Duration) error {
	f.store[sess.Caller] = sess
	f.ttls[sess.Caller] = ttl
	return nil
}

func (f *fakeSessions) Delete(ctx context.Context, caller string) error {
	delete(f.store, caller)
	delete(f.ttls, caller)
	return nil
}

type fakeOTP struct {
	code     string
	issueErr error
	outcome  otp.Outcome
	issued   int
	verified []string
}

func (f *fakeOTP) Issue(ctx context.Context, caller string) (string, error) {
	f.issued++
	return f.code, f.issueErr
}

func (f *fakeOTP) Verify(ctx context.Context, caller, entered string) (otp.Outcome, error) {
	f.verified = append(f.verified, entered)
	return f.outcome, nil
}

type fakeAccounts struct {
	acct  account.Account
	plans []account.Plan
	err   error
}

func (f *fakeAccounts) GetByPhone(ctx context.Context, phone string) (account.Account, []account.Plan, error) {
	if f.err != nil {
		return account.Account{}, nil, f.err
	}
	if f.acct.Phone != phone {
		return account.Account{}, nil, account.ErrNotFound
	}
	return f.acct, f.plans, nil
}

type fakeSettler struct {
	reqs []billing.SettleRequest
	out  billing.Settlement
	err  error
}

func (f *fakeSettler) Settle(ctx context.Context, req billing.SettleRequest) (billing.Settlement, error) {
	f.reqs = append(f.reqs, req)
	return f.out, f.err
}

type fakeSender struct {
	codes []string
	err   error
}

func (f *fakeSender) SendCode(ctx context.Context, email, code string, expiresIn time.Duration) error {
	f.codes = append(f.codes, code)
	return f.err
}

const (
	caller = "+15551230000"
	pin    = "482913"
)

type fixture struct {
	svc      *Service
	sessions *fakeSessions
	otp      *fakeOTP
	accounts *fakeAccounts
	settler  *fakeSettler
	sender   *fakeSender
}

func newFixture() *fixture {
	f := &fixture{
		sessions: newFakeSessions(),
		otp:      &fakeOTP{code: "123456", outcome: otp.OutcomeOK},
		accounts: &fakeAccounts{
			acct: account.Account{ID: "a1", Phone: caller, PIN: pin, Email: "x@y.z", WalletCents: 500},
			plans: []account.Plan{
				{ID: "p1", AccountID: "a1", SecondsRemaining: 2700, ExpiresAt: testNow.Add(24 * time.Hour)},
			},
		},
		settler: &fakeSettler{out: billing.Settlement{Billed: true}},
		sender:  &fakeSender{},
	}
	f.svc = NewService(f.sessions, f.otp, f.accounts, f.settler, f.sender,
		slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
			RatePerMinuteCents: 10,
			DefaultCountryCode: "1",
			GatewayNumber:      "+15550000000",
		})
	f.svc.clock = func() time.Time { return testNow }
	return f
}

// advance walks the fixture's caller to a given stage.
func (f *fixture) toStage(t *testing.T, stage session.Stage) {
	t.Helper()
	ctx := context.Background()
	if in := f.svc.HandleCallStart(ctx, caller); in.Action != ActionGather {
		t.Fatalf("call start: %+v", in)
	}
	if stage == session.StagePinEntry {
		return
	}
	if in := f.svc.HandlePinDigits(ctx, caller, pin); in.Action != ActionGather {
		t.Fatalf("pin: %+v", in)
	}
	if stage == session.StageOTPPending {
		return
	}
	if in := f.svc.HandleOTPDigits(ctx, caller, "123456"); in.Action != ActionGather {
		t.Fatalf("otp: %+v", in)
	}
	if stage == session.StageDestinationPending {
		return
	}
	if in := f.svc.HandleDestinationDigits(ctx, caller, "07700900123"); in.Action != ActionDial {
		t.Fatalf("destination: %+v", in)
	}
}

func TestCallStart(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := f.svc.HandleCallStart(ctx, caller)
	if in.Action != ActionGather || in.GatherTarget != TargetPin || in.GatherDigits != 6 {
		t.Fatalf("unexpected instruction: %+v", in)
	}
	sess, ok := f.sessions.Get(ctx, caller)
	if !ok || sess.Stage != session.StagePinEntry || sess.PIN != pin {
		t.Fatalf("unexpected session: %+v ok=%v", sess, ok)
	}
}

func TestCallStart_UnknownCaller(t *testing.T) {
	f := newFixture()

	in := f.svc.HandleCallStart(context.Background(), "+19990000000")
	if in.Action != ActionSayHangup {
		t.Fatalf("expected hangup, got %+v", in)
	}
	if _, ok := f.sessions.Get(context.Background(), "+19990000000"); ok {
		t.Fatalf("session created for unknown caller")
	}
}

func TestCallStart_SecondCallTurnedAway(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleCallStart(ctx, caller)
	before, _ := f.sessions.Get(ctx, caller)

	in := f.svc.HandleCallStart(ctx, caller)
	if in.Action != ActionSayHangup || in.Say != saySessionActive {
		t.Fatalf("expected busy hangup, got %+v", in)
	}
	after, ok := f.sessions.Get(ctx, caller)
	if !ok || after != before {
		t.Fatalf("existing session disturbed: %+v -> %+v", before, after)
	}
}

func TestPinDigits_CorrectPinIssuesCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StagePinEntry)

	in := f.svc.HandlePinDigits(ctx, caller, pin)
	if in.Action != ActionGather || in.GatherTarget != TargetOTP {
		t.Fatalf("unexpected instruction: %+v", in)
	}
	if f.otp.issued != 1 {
		t.Fatalf("expected one issued code, got %d", f.otp.issued)
	}
	if len(f.sender.codes) != 1 || f.sender.codes[0] != "123456" {
		t.Fatalf("code not delivered: %v", f.sender.codes)
	}
	sess, _ := f.sessions.Get(ctx, caller)
	if sess.Stage != session.StageOTPPending || sess.Attempts != 0 {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestPinDigits_WrongPinReprompts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StagePinEntry)

	for i := 0; i < 3; i++ {
		in := f.svc.HandlePinDigits(ctx, caller, "000000")
		if in.Action != ActionGather || in.GatherTarget != TargetPin {
			t.Fatalf("attempt %d: expected re-prompt, got %+v", i+1, in)
		}
	}
	if sess, _ := f.sessions.Get(ctx, caller); sess.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", sess.Attempts)
	}
}

func TestPinDigits_FourthAttemptAlwaysRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StagePinEntry)

	for i := 0; i < 3; i++ {
		f.svc.HandlePinDigits(ctx, caller, "000000")
	}
	// Even the correct PIN is rejected once the attempt budget is spent.
	in := f.svc.HandlePinDigits(ctx, caller, pin)
	if in.Action != ActionSayHangup || in.Say != sayPinRejected {
		t.Fatalf("expected rejection, got %+v", in)
	}
	if _, ok := f.sessions.Get(ctx, caller); ok {
		t.Fatalf("session survived rejection")
	}
	if f.otp.issued != 0 {
		t.Fatalf("code issued after rejection")
	}
}

func TestPinDigits_NoSession(t *testing.T) {
	f := newFixture()

	in := f.svc.HandlePinDigits(context.Background(), caller, pin)
	if in.Action != ActionSayHangup || in.Say != saySessionExpired {
		t.Fatalf("expected session expired, got %+v", in)
	}
}

func TestPinDigits_DeliveryFailureEndsSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StagePinEntry)
	f.sender.err = errors.New("smtp down")

	in := f.svc.HandlePinDigits(ctx, caller, pin)
	if in.Action != ActionSayHangup {
		t.Fatalf("expected hangup, got %+v", in)
	}
	if _, ok := f.sessions.Get(ctx, caller); ok {
		t.Fatalf("session survived delivery failure")
	}
}

func TestOTPDigits_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StageOTPPending)

	in := f.svc.HandleOTPDigits(ctx, caller, "123456")
	if in.Action != ActionGather || in.GatherTarget != TargetDestination {
		t.Fatalf("unexpected instruction: %+v", in)
	}
	sess, _ := f.sessions.Get(ctx, caller)
	if sess.Stage != session.StageDestinationPending {
		t.Fatalf("unexpected stage: %v", sess.Stage)
	}
}

func TestOTPDigits_FailuresAreTerminal(t *testing.T) {
	cases := []struct {
		outcome otp.Outcome
		say     string
	}{
		{otp.OutcomeExpired, sayOTPExpired},
		{otp.OutcomeMismatch, sayOTPFailed},
		{otp.OutcomeNotFound, sayOTPFailed},
	}
	for _, tc := range cases {
		f := newFixture()
		ctx := context.Background()
		f.toStage(t, session.StageOTPPending)
		f.otp.outcome = tc.outcome

		in := f.svc.HandleOTPDigits(ctx, caller, "123456")
		if in.Action != ActionSayHangup || in.Say != tc.say {
			t.Fatalf("%v: unexpected instruction: %+v", tc.outcome, in)
		}
		if _, ok := f.sessions.Get(ctx, caller); ok {
			t.Fatalf("%v: session survived", tc.outcome)
		}
	}
}

func TestDestination_Bridges(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StageDestinationPending)

	in := f.svc.HandleDestinationDigits(ctx, caller, "07700900123")
	if in.Action != ActionDial {
		t.Fatalf("expected dial, got %+v", in)
	}
	if in.DialNumber != "+17700900123" {
		t.Fatalf("unexpected destination: %q", in.DialNumber)
	}
	// 2700 plan seconds + $5.00 at 10c/min = 2700 + 3000.
	if in.DialMaxSeconds != 5700 {
		t.Fatalf("unexpected cap: %d", in.DialMaxSeconds)
	}
	if in.DialLegID == "" {
		t.Fatalf("leg id not minted")
	}
	sess, _ := f.sessions.Get(ctx, caller)
	if sess.Stage != session.StageInCall || sess.LegID != in.DialLegID {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestDestination_InvalidInputReprompts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StageDestinationPending)

	in := f.svc.HandleDestinationDigits(ctx, caller, "*#")
	if in.Action != ActionGather || in.GatherTarget != TargetDestination {
		t.Fatalf("expected re-prompt, got %+v", in)
	}
	sess, ok := f.sessions.Get(ctx, caller)
	if !ok || sess.Stage != session.StageDestinationPending {
		t.Fatalf("session consumed by invalid input: %+v ok=%v", sess, ok)
	}
}

func TestDestination_NoBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StageDestinationPending)
	f.accounts.acct.WalletCents = 0
	f.accounts.plans = nil

	in := f.svc.HandleDestinationDigits(ctx, caller, "07700900123")
	if in.Action != ActionSayHangup || in.Say != sayNoMinutes {
		t.Fatalf("expected no-minutes hangup, got %+v", in)
	}
	if _, ok := f.sessions.Get(ctx, caller); ok {
		t.Fatalf("session survived")
	}
}

func TestCallCompleted_Settles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StageInCall)
	sess, _ := f.sessions.Get(ctx, caller)

	in, err := f.svc.HandleCallCompleted(ctx, CompletionEvent{
		Caller:          caller,
		LegID:           sess.LegID,
		DialStatus:      "completed",
		DurationSeconds: 300,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.Action != ActionSayHangup {
		t.Fatalf("expected hangup, got %+v", in)
	}
	if len(f.settler.reqs) != 1 {
		t.Fatalf("expected one settle call, got %d", len(f.settler.reqs))
	}
	req := f.settler.reqs[0]
	if req.LegID != sess.LegID || req.DurationSeconds != 300 || req.Status != calls.DialStatusCompleted {
		t.Fatalf("unexpected settle request: %+v", req)
	}
	if _, ok := f.sessions.Get(ctx, caller); ok {
		t.Fatalf("session survived completion")
	}
}

func TestCallCompleted_SettleErrorPropagates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.toStage(t, session.StageInCall)
	f.settler.err = errors.New("db down")

	if _, err := f.svc.HandleCallCompleted(ctx, CompletionEvent{
		Caller: caller, LegID: "leg1", DialStatus: "completed", DurationSeconds: 60,
	}); err == nil {
		t.Fatalf("expected error to propagate for carrier retry")
	}
	// The session stays so the retried event can still resolve the leg.
	if _, ok := f.sessions.Get(ctx, caller); !ok {
		t.Fatalf("session deleted before settlement succeeded")
	}
}

func TestCallCompleted_AfterSessionExpiry(t *testing.T) {
	f := newFixture()

	// Session long gone; the leg id threaded through the dial action
	// still identifies the charge.
	in, err := f.svc.HandleCallCompleted(context.Background(), CompletionEvent{
		Caller:          caller,
		LegID:           "leg-from-callback",
		DialStatus:      "completed",
		DurationSeconds: 120,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.Action != ActionSayHangup {
		t.Fatalf("expected hangup, got %+v", in)
	}
	if len(f.settler.reqs) != 1 || f.settler.reqs[0].LegID != "leg-from-callback" {
		t.Fatalf("unexpected settle calls: %+v", f.settler.reqs)
	}
}

func TestNormalizeDestination(t *testing.T) {
	cases := []struct {
		in   string
		cc   string
		want string
	}{
		{"07700900123", "1", "+17700900123"},
		{"7700900123", "1", "+17700900123"},
		{"(770) 090-0123", "1", "+17700900123"},
		{"15551234567", "1", "+15551234567"},
		{"", "1", ""},
		{"abc", "1", ""},
		{"0", "1", ""},
	}
	for _, tc := range cases {
		if got := NormalizeDestination(tc.in, tc.cc); got != tc.want {
			t.Fatalf("NormalizeDestination(%q, %q) = %q, want %q", tc.in, tc.cc, got, tc.want)
		}
	}
}
