package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// UsageSummaryRequest requests aggregated usage for one account.
type UsageSummaryRequest struct {
	AccountID string    `json:"account_id"`
	Range     TimeRange `json:"range"`
}

// UsageSummary aggregates settled call legs. Settlement only records
// completed, billed legs, so every counted leg carried usage and has
// final balances behind it.
type UsageSummary struct {
	AccountID string `json:"account_id"`

	TotalLegs int `json:"total_legs"`

	TotalDurationSeconds   int64 `json:"total_duration_seconds"`
	AverageDurationSeconds int64 `json:"average_duration_seconds"`

	PlanSecondsUsed    int64 `json:"plan_seconds_used"`
	WalletCentsCharged int64 `json:"wallet_cents_charged"`
}
