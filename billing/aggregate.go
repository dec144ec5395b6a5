/*
aggregate.go - Period aggregation

PURPOSE:
  Sums billable session value per person per period: {count, totalAmount,
  totalHours} overall and per session type, where amount = hourly rate ×
  duration hours. Convention-agnostic: the caller supplies explicit period
  boundaries (calendar month or 16th-to-15th).
*/
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/consultorio/practice-engine/schedule"
)

// =============================================================================
// PERIOD AGGREGATOR
// =============================================================================

// TypeTotal is the aggregate for one session type.
type TypeTotal struct {
	Count  int
	Hours  decimal.Decimal
	Amount decimal.Decimal
}

// PeriodSummary is the aggregate for a person in one period.
type PeriodSummary struct {
	Period Period
	Count  int
	Hours  decimal.Decimal
	Amount decimal.Decimal
	ByType map[schedule.SessionType]TypeTotal
}

// Aggregate computes the billable totals for the period. Sessions outside
// the period or in non-billable statuses contribute nothing.
func Aggregate(sessions []schedule.Session, p Period) PeriodSummary {
	summary := PeriodSummary{
		Period: p,
		Hours:  decimal.Zero,
		Amount: decimal.Zero,
		ByType: make(map[schedule.SessionType]TypeTotal),
	}

	for _, s := range BillableInPeriod(sessions, p) {
		amount := s.Amount()
		summary.Count++
		summary.Hours = summary.Hours.Add(s.Hours)
		summary.Amount = summary.Amount.Add(amount)

		tt := summary.ByType[s.Type]
		tt.Count++
		tt.Hours = tt.Hours.Add(s.Hours)
		tt.Amount = tt.Amount.Add(amount)
		summary.ByType[s.Type] = tt
	}
	return summary
}

// SumBillable totals billable session value without period filtering beyond
// what the caller already applied.
func SumBillable(sessions []schedule.Session) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sessions {
		if s.Billable() {
			total = total.Add(s.Amount())
		}
	}
	return total
}
