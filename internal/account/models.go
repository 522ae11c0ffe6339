package account

import (
	"strings"
	"time"
)

// Account is a prepaid subscriber record.
//
// Money invariants:
// - WalletCents never goes negative; debits clamp at zero.
// - TotalSecondsUsed is a monotonic counter and is incremented by the
//   unclamped call duration (reporting must see real usage).
//
// Identity invariants:
// - PIN, Phone, Email and ReferralCode are unique across accounts.
// - Phone is stored E.164-normalized.
type Account struct {
	ID string `json:"id" db:"id"`

	PIN   string `json:"pin" db:"pin"`
	Phone string `json:"phone" db:"phone"`
	Email string `json:"email" db:"email"`

	WalletCents      int64 `json:"wallet_cents" db:"wallet_cents"`
	TotalSecondsUsed int64 `json:"total_seconds_used" db:"total_seconds_used"`

	ReferralCode string `json:"referral_code" db:"referral_code"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Plan is one granted bundle of minutes. Plans are never deleted: a drained
// or expired plan stays on the account as an audit trail.
type Plan struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`

	Name string `json:"name" db:"name"`

	// SecondsRemaining is monotonically non-increasing except via admin grant.
	SecondsRemaining int64 `json:"seconds_remaining" db:"seconds_remaining"`

	PurchasedAt time.Time `json:"purchased_at" db:"purchased_at"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
}

// ActiveAt reports whether the plan can fund airtime at the given instant.
// Expired plans are inert, never consumed.
func (p Plan) ActiveAt(now time.Time) bool {
	return p.SecondsRemaining > 0 && p.ExpiresAt.After(now)
}

// ActivePlanSeconds sums the consumable seconds across unexpired plans.
func ActivePlanSeconds(plans []Plan, now time.Time) int64 {
	var total int64
	for _, p := range plans {
		if p.ActiveAt(now) {
			total += p.SecondsRemaining
		}
	}
	return total
}

// NormalizePhone canonicalizes a subscriber phone number to E.164.
// National numbers get a single leading "0" dropped and the default country
// code prefixed. Returns "" when nothing usable remains.
func NormalizePhone(raw, defaultCountryCode string) string {
	raw = strings.TrimSpace(raw)
	international := strings.HasPrefix(raw, "+")

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}

	if international {
		return "+" + d
	}
	d = strings.TrimPrefix(d, "0")
	if d == "" {
		return ""
	}
	return "+" + defaultCountryCode + d
}
