package pricing

// Airtime math for the prepaid gateway.
//
// Conventions:
// - Money: minor units (cents), int64.
// - Airtime: whole seconds, int64.
// - ratePerMinuteCents is the wallet overflow rate applied once plan
//   seconds are drained. Callers must validate it is > 0.

import "fmt"

// OverflowCostCents prices seconds of talk time billed against the wallet.
// Rounds up to the next cent so settlement never under-bills.
func OverflowCostCents(seconds, ratePerMinuteCents int64) int64 {
	if seconds <= 0 || ratePerMinuteCents <= 0 {
		return 0
	}
	return (seconds*ratePerMinuteCents + 59) / 60
}

// AvailableSeconds converts unexpired plan seconds plus wallet funds into the
// maximum fundable call duration. The wallet contribution is floored: a
// partial cent never buys a second.
func AvailableSeconds(planSeconds, walletCents, ratePerMinuteCents int64) int64 {
	if ratePerMinuteCents <= 0 {
		return planSeconds
	}
	total := planSeconds
	if walletCents > 0 {
		total += walletCents * 60 / ratePerMinuteCents
	}
	if total < 0 {
		return 0
	}
	return total
}

// FormatCents renders minor units as a dollar string for notifications.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
