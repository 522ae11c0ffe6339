package account

import (
	"testing"
	"time"
)

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("+1 (555) 123-0000", "1"); got != "+15551230000" {
		t.Fatalf("unexpected: %q", got)
	}
	// National format: one leading zero dropped, country code prefixed.
	if got := NormalizePhone("07012345678", "44"); got != "+447012345678" {
		t.Fatalf("unexpected: %q", got)
	}
	// Only a single leading zero is dropped.
	if got := NormalizePhone("00700", "44"); got != "+440700" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := NormalizePhone("abc", "1"); got != "" {
		t.Fatalf("expected empty for no digits, got %q", got)
	}
	if got := NormalizePhone("0", "1"); got != "" {
		t.Fatalf("expected empty for bare zero, got %q", got)
	}
}

func TestPlanActiveAt(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	active := Plan{SecondsRemaining: 60, ExpiresAt: now.Add(time.Hour)}
	if !active.ActiveAt(now) {
		t.Fatalf("expected active")
	}
	expired := Plan{SecondsRemaining: 60, ExpiresAt: now.Add(-time.Second)}
	if expired.ActiveAt(now) {
		t.Fatalf("expired plans must be inert")
	}
	drained := Plan{SecondsRemaining: 0, ExpiresAt: now.Add(time.Hour)}
	if drained.ActiveAt(now) {
		t.Fatalf("drained plans must be inert")
	}
}

func TestActivePlanSeconds(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	plans := []Plan{
		{SecondsRemaining: 100, ExpiresAt: now.Add(time.Hour)},
		{SecondsRemaining: 200, ExpiresAt: now.Add(-time.Hour)}, // expired
		{SecondsRemaining: 50, ExpiresAt: now.Add(2 * time.Hour)},
	}
	if got := ActivePlanSeconds(plans, now); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
}
