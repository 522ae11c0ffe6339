package calls

import (
	"strings"
	"time"
)

// CallLeg represents one outbound dial attempt bridged for a caller.
//
// It doubles as the settlement dedup record: a row exists for a leg ID if and
// only if that leg has been settled. Carrier completion callbacks may be
// retried or duplicated, so billing must check this table before charging.
type CallLeg struct {
	LegID     string `json:"leg_id" db:"leg_id"`
	AccountID string `json:"account_id" db:"account_id"`

	CallerPhone string `json:"caller_phone" db:"caller_phone"`
	Destination string `json:"destination" db:"destination"`

	Status DialStatus `json:"status" db:"status"`

	DurationSeconds int64 `json:"duration_seconds" db:"duration_seconds"`

	// PlanSecondsUsed and WalletCentsCharged record how the leg was funded.
	PlanSecondsUsed    int64 `json:"plan_seconds_used" db:"plan_seconds_used"`
	WalletCentsCharged int64 `json:"wallet_cents_charged" db:"wallet_cents_charged"`

	SettledAt time.Time `json:"settled_at" db:"settled_at"`
}

// DialStatus is the carrier-reported outcome of a dial attempt.
type DialStatus string

const (
	DialStatusCompleted DialStatus = "completed"
	DialStatusBusy      DialStatus = "busy"
	DialStatusNoAnswer  DialStatus = "no-answer"
	DialStatusFailed    DialStatus = "failed"
	DialStatusCanceled  DialStatus = "canceled"
)

// Billable reports whether a leg outcome carries chargeable talk time.
func (s DialStatus) Billable() bool {
	return s == DialStatusCompleted
}

// ParseDialStatus maps a raw carrier status string onto the known set.
// Unrecognized or missing values come back as failed, which is never
// billable.
func ParseDialStatus(raw string) DialStatus {
	switch DialStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case DialStatusCompleted:
		return DialStatusCompleted
	case DialStatusBusy:
		return DialStatusBusy
	case DialStatusNoAnswer:
		return DialStatusNoAnswer
	case DialStatusCanceled:
		return DialStatusCanceled
	default:
		return DialStatusFailed
	}
}
