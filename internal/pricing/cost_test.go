package pricing

import "testing"

func TestOverflowCostCents(t *testing.T) {
	// 5 minutes at 10c/min = 50c, exact.
	if got := OverflowCostCents(300, 10); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	// 1 second at 10c/min rounds up to a whole cent.
	if got := OverflowCostCents(1, 10); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := OverflowCostCents(0, 10); got != 0 {
		t.Fatalf("expected 0 for zero duration, got %d", got)
	}
	if got := OverflowCostCents(-5, 10); got != 0 {
		t.Fatalf("expected 0 for negative duration, got %d", got)
	}
}

func TestAvailableSeconds(t *testing.T) {
	// 45 plan minutes + $5.00 at 10c/min = 45*60 + 3000 seconds.
	if got := AvailableSeconds(2700, 500, 10); got != 2700+3000 {
		t.Fatalf("expected %d, got %d", 2700+3000, got)
	}
	// Wallet floor: 5c at 10c/min buys 30 seconds.
	if got := AvailableSeconds(0, 5, 10); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
	if got := AvailableSeconds(0, 0, 10); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestFindPlan(t *testing.T) {
	p, ok := FindPlan("daily_2")
	if !ok {
		t.Fatalf("expected plan lookup to be case-insensitive")
	}
	if p.PriceCents != 200 || p.Minutes != 45 {
		t.Fatalf("unexpected plan: %+v", p)
	}
	if p.Seconds() != 2700 {
		t.Fatalf("expected 2700 seconds, got %d", p.Seconds())
	}

	if _, ok := FindPlan("UNKNOWN"); ok {
		t.Fatalf("expected unknown plan to miss")
	}
}
