package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prepaid-gateway/internal/account"
	"prepaid-gateway/internal/calls"
	"prepaid-gateway/internal/notify"
	"prepaid-gateway/internal/pricing"
)

var ErrInvalidArgument = errors.New("billing: invalid argument")

// Ledger is the transactional surface the settlement engine composes.
// Satisfied by *account.Ledger.
type Ledger interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
	LockAccountByPhone(ctx context.Context, tx *sql.Tx, phone string) (account.Account, error)
	ConsumablePlans(ctx context.Context, tx *sql.Tx, accountID string, now time.Time) ([]account.Plan, error)
	SetPlanSeconds(ctx context.Context, tx *sql.Tx, planID string, secondsRemaining int64) error
	ApplySettlement(ctx context.Context, tx *sql.Tx, accountID string, walletCents, usageDeltaSeconds int64, now time.Time) error
	RecordLeg(ctx context.Context, tx *sql.Tx, leg calls.CallLeg) error
	FindLeg(ctx context.Context, tx *sql.Tx, legID string) (calls.CallLeg, bool, error)
}

// Service converts completed call legs into plan and wallet deductions.
//
// Invariants:
// - Exactly-once billing per leg: the call_legs dedup row is written in the
//   same transaction as the deductions, so a retried completion event either
//   sees the row or loses the insert race and rolls back.
// - Plans drain ascending by expiry; expired plans are never touched.
// - The wallet debit clamps at zero; the usage counter does not clamp.
// - Everything happens under the account row lock (no busy-wait spin locks).
type Service struct {
	ledger   Ledger
	notifier notify.Notifier

	ratePerMinuteCents int64

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(ledger Ledger, notifier notify.Notifier, ratePerMinuteCents int64) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		ledger:             ledger,
		notifier:           notifier,
		ratePerMinuteCents: ratePerMinuteCents,
		clock:              time.Now,
	}
}

type SettleRequest struct {
	CallerPhone string
	LegID       string
	Destination string

	Status          calls.DialStatus
	DurationSeconds int64
}

type Settlement struct {
	LegID string

	// Duplicate marks a completion event that was already settled.
	Duplicate bool
	// Billed is false for legs that never connected (nothing to charge).
	Billed bool

	DurationSeconds    int64
	PlanSecondsUsed    int64
	WalletCentsCharged int64

	// WalletCents is the post-settlement balance.
	WalletCents int64
	// PlanSecondsLeft is the post-settlement active plan airtime.
	PlanSecondsLeft int64
}

// Settle applies the deduction algorithm for one completed leg.
// Safe to call repeatedly with the same leg ID.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (Settlement, error) {
	if req.CallerPhone == "" || req.LegID == "" {
		return Settlement{}, ErrInvalidArgument
	}

	// Nothing to bill for a call that never connected. Acknowledge so the
	// carrier stops retrying.
	if !req.Status.Billable() || req.DurationSeconds <= 0 {
		return Settlement{LegID: req.LegID}, nil
	}

	now := s.clock().UTC()

	var out Settlement
	var acct account.Account
	err := s.ledger.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		a, err := s.ledger.LockAccountByPhone(ctx, tx, req.CallerPhone)
		if err != nil {
			return err
		}
		acct = a

		// Dedup check under the account lock: a retried or duplicated
		// completion event must not charge twice.
		if prior, ok, err := s.ledger.FindLeg(ctx, tx, req.LegID); err != nil {
			return err
		} else if ok {
			out = Settlement{
				LegID:              prior.LegID,
				Duplicate:          true,
				Billed:             true,
				DurationSeconds:    prior.DurationSeconds,
				PlanSecondsUsed:    prior.PlanSecondsUsed,
				WalletCentsCharged: prior.WalletCentsCharged,
				WalletCents:        a.WalletCents,
			}
			return nil
		}

		plans, err := s.ledger.ConsumablePlans(ctx, tx, a.ID, now)
		if err != nil {
			return err
		}

		remaining := req.DurationSeconds
		var planUsed int64
		var planLeft int64
		for _, p := range plans {
			if remaining <= 0 {
				planLeft += p.SecondsRemaining
				continue
			}
			used := p.SecondsRemaining
			if used > remaining {
				used = remaining
			}
			if err := s.ledger.SetPlanSeconds(ctx, tx, p.ID, p.SecondsRemaining-used); err != nil {
				return err
			}
			planUsed += used
			remaining -= used
			planLeft += p.SecondsRemaining - used
		}

		cost := pricing.OverflowCostCents(remaining, s.ratePerMinuteCents)
		charged := cost
		if charged > a.WalletCents {
			// Never drive the wallet negative; the shortfall is absorbed.
			charged = a.WalletCents
		}
		balance := a.WalletCents - charged

		// Usage counter takes the full reported duration, unclamped.
		if err := s.ledger.ApplySettlement(ctx, tx, a.ID, balance, req.DurationSeconds, now); err != nil {
			return err
		}

		leg := calls.CallLeg{
			LegID:              req.LegID,
			AccountID:          a.ID,
			CallerPhone:        req.CallerPhone,
			Destination:        req.Destination,
			Status:             req.Status,
			DurationSeconds:    req.DurationSeconds,
			PlanSecondsUsed:    planUsed,
			WalletCentsCharged: charged,
			SettledAt:          now,
		}
		if err := s.ledger.RecordLeg(ctx, tx, leg); err != nil {
			return err
		}

		out = Settlement{
			LegID:              req.LegID,
			Billed:             true,
			DurationSeconds:    req.DurationSeconds,
			PlanSecondsUsed:    planUsed,
			WalletCentsCharged: charged,
			WalletCents:        balance,
			PlanSecondsLeft:    planLeft,
		}
		return nil
	})
	if err != nil {
		// A lost insert race is a duplicate, not a failure: the winning
		// transaction billed the leg and this one rolled back untouched.
		if errors.Is(err, account.ErrDuplicateLeg) {
			return Settlement{LegID: req.LegID, Duplicate: true, Billed: true}, nil
		}
		return Settlement{}, err
	}

	if out.Billed && !out.Duplicate {
		s.sendSummary(ctx, acct, out)
	}
	return out, nil
}

func (s *Service) sendSummary(ctx context.Context, a account.Account, st Settlement) {
	minutes := float64(st.DurationSeconds) / 60
	_ = s.notifier.Send(ctx, a.Email, "Call Summary", notify.Data{
		Title:   "Call Summary",
		Message: fmt.Sprintf("Used %.2f minutes.", minutes),
		Fields: []notify.Field{
			{Label: "Plan Minutes Left", Value: fmt.Sprintf("%.2f", float64(st.PlanSecondsLeft)/60)},
			{Label: "Wallet Charged", Value: pricing.FormatCents(st.WalletCentsCharged)},
			{Label: "Balance", Value: pricing.FormatCents(st.WalletCents)},
		},
	})
}
