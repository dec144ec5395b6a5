/*
balance.go - Carry-forward balance accumulator

PURPOSE:
  Computes what a patient owes for a month:

    total_final = month_total + prior_balance

  where prior_balance is all-time billable session value minus all-time
  non-deleted received payments, both evaluated strictly before the month's
  start. Payments made during the target month do NOT reduce that month's
  total_final; they surface in the next month's prior_balance. That
  subtraction order is the contract the tests pin down.

EDGE CASES:
  - No activity in the month AND zero prior balance: the patient is excluded
    from the pending list entirely (Include() is false), not shown as a
    zero row.
  - Negative total_final is a credit (overpaid) and renders distinctly from
    both debt and "paid".
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/consultorio/practice-engine/schedule"
)

// =============================================================================
// BALANCE - Computed per patient per month
// =============================================================================

// MonthBalance is the carry-forward balance of one patient for one month.
type MonthBalance struct {
	PatientID string
	Year      int
	Month     time.Month

	// MonthTotal is the billable session value inside the calendar month.
	MonthTotal decimal.Decimal

	// PriorBalance is billed-minus-paid for everything before the month.
	PriorBalance decimal.Decimal

	// TotalFinal = MonthTotal + PriorBalance.
	TotalFinal decimal.Decimal

	// Summary carries the per-type breakdown for the month.
	Summary PeriodSummary
}

// HasActivity reports whether the patient had billable sessions this month.
func (b MonthBalance) HasActivity() bool {
	return b.Summary.Count > 0
}

// Include reports whether the patient belongs on the pending list: either
// there was activity this month or an unpaid (or credit) balance remains.
func (b MonthBalance) Include() bool {
	return b.HasActivity() || !b.PriorBalance.IsZero()
}

// IsCredit reports whether the patient has overpaid.
func (b MonthBalance) IsCredit() bool {
	return b.TotalFinal.IsNegative()
}

// FullyPaid reports whether nothing is owed: total_final <= 0.
func (b MonthBalance) FullyPaid() bool {
	return !b.TotalFinal.IsPositive()
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// PriorBalance computes billed-minus-paid strictly before the cutoff.
func PriorBalance(sessions []schedule.Session, payments []PaymentReceived, cutoff time.Time) decimal.Decimal {
	billed := SumBillable(BillableBefore(sessions, cutoff))

	paid := decimal.Zero
	for _, p := range payments {
		if p.Deleted {
			continue
		}
		if p.Date.Before(cutoff) {
			paid = paid.Add(p.Amount)
		}
	}
	return billed.Sub(paid)
}

// ComputeMonthBalance runs the full accumulator for one patient and month.
// sessions and payments must be the patient's complete history; filtering
// happens here.
func ComputeMonthBalance(patientID string, sessions []schedule.Session, payments []PaymentReceived, year int, month time.Month) MonthBalance {
	period := CalendarMonth(year, month)
	summary := Aggregate(sessions, period)
	prior := PriorBalance(sessions, payments, period.Start)

	return MonthBalance{
		PatientID:    patientID,
		Year:         year,
		Month:        month,
		MonthTotal:   summary.Amount,
		PriorBalance: prior,
		TotalFinal:   summary.Amount.Add(prior),
		Summary:      summary,
	}
}
