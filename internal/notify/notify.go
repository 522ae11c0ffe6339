package notify

import "context"

// Notifier delivers a subscriber-facing notification.
//
// Callers treat delivery as fire-and-forget: a failed send must never abort
// the flow that triggered it (PIN verification, settlement, admin CRUD).
// Wrap implementations with Async to get that behavior.
type Notifier interface {
	Send(ctx context.Context, recipient, subject string, data Data) error
}

// Data is the template payload for a notification.
type Data struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Fields  []Field `json:"fields,omitempty"`
}

// Field is one label/value row rendered under the message.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Nop discards notifications. Useful for tests.
type Nop struct{}

func (Nop) Send(ctx context.Context, recipient, subject string, data Data) error { return nil }
