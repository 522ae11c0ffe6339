package reporting

import (
	"context"
	"errors"
	"time"

	"prepaid-gateway/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// LegSource lists settled call legs, satisfied by *account.Service.
type LegSource interface {
	SettledLegs(ctx context.Context, accountID string, from, to time.Time) ([]calls.CallLeg, error)
}

type Service struct {
	legs  LegSource
	clock func() time.Time
}

func NewService(legs LegSource) *Service {
	return &Service{legs: legs, clock: time.Now}
}

// UsageSummary aggregates the account's settled legs over the range.
// A zero To means "up to now"; a zero From is unbounded.
func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if req.AccountID == "" {
		return UsageSummary{}, ErrInvalidRequest
	}
	to := req.Range.To
	if to.IsZero() {
		to = s.clock().UTC()
	}
	if to.Before(req.Range.From) {
		return UsageSummary{}, ErrInvalidRequest
	}

	legs, err := s.legs.SettledLegs(ctx, req.AccountID, req.Range.From, to)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{AccountID: req.AccountID}
	for _, leg := range legs {
		out.TotalLegs++
		out.TotalDurationSeconds += leg.DurationSeconds
		out.PlanSecondsUsed += leg.PlanSecondsUsed
		out.WalletCentsCharged += leg.WalletCentsCharged
	}
	if out.TotalLegs > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / int64(out.TotalLegs)
	}
	return out, nil
}
