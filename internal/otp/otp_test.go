package otp

import (
	"strconv"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		if _, err := strconv.Atoi(code); err != nil {
			t.Fatalf("non-numeric code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("codes are not varying")
	}
}

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeOK:       "ok",
		OutcomeNotFound: "not_found",
		OutcomeExpired:  "expired",
		OutcomeMismatch: "mismatch",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Fatalf("outcome %d: got %q want %q", o, got, want)
		}
	}
}
