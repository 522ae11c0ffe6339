package reporting

import (
	"context"
	"testing"
	"time"

	"prepaid-gateway/internal/calls"
)

type memoryLegs struct {
	legs []calls.CallLeg
}

// SettledLegs mirrors the repository query: settled_at >= from AND settled_at < to.
func (m *memoryLegs) SettledLegs(ctx context.Context, accountID string, from, to time.Time) ([]calls.CallLeg, error) {
	out := make([]calls.CallLeg, 0)
	for _, l := range m.legs {
		if l.AccountID != accountID {
			continue
		}
		if l.SettledAt.Before(from) || !l.SettledAt.Before(to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func newTestService(src LegSource, now time.Time) *Service {
	svc := NewService(src)
	svc.clock = func() time.Time { return now }
	return svc
}

func TestUsageSummary(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := &memoryLegs{legs: []calls.CallLeg{
		{LegID: "l1", AccountID: "a1", Status: calls.DialStatusCompleted, DurationSeconds: 300, PlanSecondsUsed: 300, SettledAt: now},
		{LegID: "l2", AccountID: "a1", Status: calls.DialStatusCompleted, DurationSeconds: 100, WalletCentsCharged: 20, SettledAt: now.Add(time.Hour)},
		{LegID: "l3", AccountID: "other", Status: calls.DialStatusCompleted, DurationSeconds: 999, SettledAt: now},
	}}
	svc := newTestService(src, now.Add(2*time.Hour))

	sum, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{AccountID: "a1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sum.TotalLegs != 2 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if sum.TotalDurationSeconds != 400 || sum.AverageDurationSeconds != 200 {
		t.Fatalf("unexpected durations: %+v", sum)
	}
	if sum.PlanSecondsUsed != 300 || sum.WalletCentsCharged != 20 {
		t.Fatalf("unexpected funding split: %+v", sum)
	}
}

func TestUsageSummaryOmittedRangeCountsPastLegs(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := &memoryLegs{legs: []calls.CallLeg{
		{LegID: "l1", AccountID: "a1", Status: calls.DialStatusCompleted, DurationSeconds: 60, SettledAt: now.Add(-24 * time.Hour)},
	}}
	svc := newTestService(src, now)

	sum, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{AccountID: "a1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sum.TotalLegs != 1 || sum.TotalDurationSeconds != 60 {
		t.Fatalf("omitted range should cover history up to now: %+v", sum)
	}
}

func TestUsageSummaryRangeFilter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	src := &memoryLegs{legs: []calls.CallLeg{
		{LegID: "l1", AccountID: "a1", Status: calls.DialStatusCompleted, DurationSeconds: 60, SettledAt: now},
		{LegID: "l2", AccountID: "a1", Status: calls.DialStatusCompleted, DurationSeconds: 120, SettledAt: now.Add(48 * time.Hour)},
	}}
	svc := newTestService(src, now.Add(72*time.Hour))

	sum, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		AccountID: "a1",
		Range:     TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sum.TotalLegs != 1 || sum.TotalDurationSeconds != 60 {
		t.Fatalf("range filter broken: %+v", sum)
	}
}

func TestUsageSummaryValidation(t *testing.T) {
	svc := newTestService(&memoryLegs{}, time.Unix(1700000000, 0).UTC())

	if _, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	now := time.Now()
	if _, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		AccountID: "a1",
		Range:     TimeRange{From: now, To: now.Add(-time.Hour)},
	}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for inverted range, got %v", err)
	}
}
