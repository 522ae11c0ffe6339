package notify

import (
	"context"
	"log/slog"
	"time"
)

// Async wraps a Notifier so sends happen on a background goroutine with
// their own timeout, detached from the request context. Failures are logged
// and swallowed: notification delivery must never block or fail a call flow.
type Async struct {
	inner   Notifier
	log     *slog.Logger
	timeout time.Duration
}

func NewAsync(inner Notifier, log *slog.Logger, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Async{inner: inner, log: log, timeout: timeout}
}

func (a *Async) Send(_ context.Context, recipient, subject string, data Data) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.inner.Send(ctx, recipient, subject, data); err != nil {
			a.log.Warn("notification send failed", "subject", subject, "err", err)
			return
		}
		a.log.Debug("notification sent", "subject", subject)
	}()
	return nil
}
