/*
rent.go - Rent configuration and rollup

PURPOSE:
  The practice rents its office at a fixed monthly price from a fixed start
  month. Total owed is elapsed months × monthly price, minus the non-deleted
  rent payments made. The configuration is a singleton with upsert-on-save
  semantics.
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RENT CONFIGURATION - Singleton
// =============================================================================

// RentConfig is the single rent configuration row.
type RentConfig struct {
	MonthlyPrice decimal.Decimal
	Payee        string
	StartDate    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// ROLLUP
// =============================================================================

// RentSummary is the rent position as of a date.
type RentSummary struct {
	MonthsElapsed int
	TotalOwed     decimal.Decimal
	TotalPaid     decimal.Decimal
	Balance       decimal.Decimal
}

// RentRollup computes the rent position: every calendar month from the start
// month through asOf's month is owed, rent payments made are deducted.
func RentRollup(cfg RentConfig, payments []PaymentMade, asOf time.Time) RentSummary {
	months := MonthsBetween(cfg.StartDate, asOf)
	owed := cfg.MonthlyPrice.Mul(decimal.NewFromInt(int64(months)))

	paid := decimal.Zero
	for _, p := range payments {
		if p.Deleted || p.Concept != ConceptRent {
			continue
		}
		paid = paid.Add(p.Amount)
	}

	return RentSummary{
		MonthsElapsed: months,
		TotalOwed:     owed,
		TotalPaid:     paid,
		Balance:       owed.Sub(paid),
	}
}
