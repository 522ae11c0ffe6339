package calls

import "testing"

func TestDialStatusBillable(t *testing.T) {
	if !DialStatusCompleted.Billable() {
		t.Fatalf("completed legs must be billable")
	}
	for _, s := range []DialStatus{DialStatusBusy, DialStatusNoAnswer, DialStatusFailed, DialStatusCanceled} {
		if s.Billable() {
			t.Fatalf("status %q must not be billable", s)
		}
	}
}

func TestParseDialStatus(t *testing.T) {
	cases := map[string]DialStatus{
		"completed": DialStatusCompleted,
		"Completed": DialStatusCompleted,
		" busy ":    DialStatusBusy,
		"no-answer": DialStatusNoAnswer,
		"canceled":  DialStatusCanceled,
		"failed":    DialStatusFailed,
		"":          DialStatusFailed,
		"mystery":   DialStatusFailed,
	}
	for raw, want := range cases {
		if got := ParseDialStatus(raw); got != want {
			t.Fatalf("ParseDialStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}
