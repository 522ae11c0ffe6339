package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service logs internal audit information. Callers should treat audit
// logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records a mutation made through the admin surface.
func (s *Service) LogAdminAction(ctx context.Context, actorEmail, actorRole, ip, message, accountID, metadata string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeAdminAction,
		ActorEmail: actorEmail,
		ActorRole:  actorRole,
		IPAddress:  ip,
		AccountID:  accountID,
		Message:    message,
		Metadata:   metadata,
	})
}

// LogReconciliation records a settlement failure that exhausted carrier
// retries so usage is never silently dropped.
func (s *Service) LogReconciliation(ctx context.Context, legID, callerPhone, message string) error {
	// Caller is carrier-supplied, so marshal instead of templating JSON.
	meta, err := json.Marshal(struct {
		Caller string `json:"caller"`
	}{Caller: callerPhone})
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		Type:     EventTypeReconciliation,
		LegID:    legID,
		Message:  message,
		Metadata: string(meta),
	})
}
