package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; do not block critical flows on
//   audit failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorEmail is the authenticated admin causing the event, if any.
	ActorEmail string `json:"actor_email,omitempty" db:"actor_email"`
	ActorRole  string `json:"actor_role,omitempty" db:"actor_role"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	AccountID string `json:"account_id,omitempty" db:"account_id"`
	LegID     string `json:"leg_id,omitempty" db:"leg_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAdminAction EventType = "admin_action"
	// EventTypeReconciliation marks a settlement that could not be
	// persisted after carrier retries and needs manual review.
	EventTypeReconciliation EventType = "settlement_reconciliation"
)
