package pricing

import (
	"strings"
	"time"
)

// PlanDefinition is a purchasable bundle of minutes with a validity window.
// Amounts are expressed in minor units (cents) using int64; airtime is
// expressed in whole seconds.
type PlanDefinition struct {
	Name       string
	PriceCents int64
	Minutes    int
	Validity   time.Duration
}

// Seconds returns the bundle airtime in seconds.
func (p PlanDefinition) Seconds() int64 {
	return int64(p.Minutes) * 60
}

// catalog is the fixed plan list offered by the gateway.
// Keep names stable; they are persisted on granted plan rows.
var catalog = map[string]PlanDefinition{
	"DAILY_1":    {Name: "DAILY_1", PriceCents: 100, Minutes: 20, Validity: 24 * time.Hour},
	"DAILY_2":    {Name: "DAILY_2", PriceCents: 200, Minutes: 45, Validity: 24 * time.Hour},
	"WEEKLY_5":   {Name: "WEEKLY_5", PriceCents: 500, Minutes: 110, Validity: 7 * 24 * time.Hour},
	"WEEKLY_10":  {Name: "WEEKLY_10", PriceCents: 1000, Minutes: 240, Validity: 7 * 24 * time.Hour},
	"MONTHLY_20": {Name: "MONTHLY_20", PriceCents: 2000, Minutes: 500, Validity: 30 * 24 * time.Hour},
	"MONTHLY_35": {Name: "MONTHLY_35", PriceCents: 3500, Minutes: 950, Validity: 30 * 24 * time.Hour},
	"MONTHLY_50": {Name: "MONTHLY_50", PriceCents: 5000, Minutes: 1500, Validity: 30 * 24 * time.Hour},
	"STUDENT":    {Name: "STUDENT", PriceCents: 1000, Minutes: 250, Validity: 30 * 24 * time.Hour},
}

// FindPlan resolves a plan definition by name, case-insensitively.
func FindPlan(name string) (PlanDefinition, bool) {
	p, ok := catalog[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// PlanNames returns the catalog names in no particular order.
func PlanNames() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	return out
}
