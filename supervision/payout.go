/*
Package supervision implements the supervisor payout rollup.

PURPOSE:
  Structurally the same computation as the patient billing rollup, keyed by
  supervisor instead of patient, on the outflow side: supervision sessions
  billed by the supervisor, minus payments made to her, plus an
  accompaniment subtotal of 50% of the value of patient sessions she sat
  in on.

SEE ALSO:
  - billing package: the engine this reuses
  - schedule package: the session records it reads
*/
package supervision

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/consultorio/practice-engine/billing"
	"github.com/consultorio/practice-engine/schedule"
)

// AccompanimentShare is the supervisor's cut of an accompanied session.
var AccompanimentShare = decimal.NewFromFloat(0.5)

// =============================================================================
// PAYOUT - One supervisor's position for one month
// =============================================================================

type Payout struct {
	SupervisorID string
	Year         int
	Month        time.Month

	// MonthTotal is the billable supervision value inside the month.
	MonthTotal decimal.Decimal

	// Accompaniment is 50% of accompanied patient-session value in the month.
	Accompaniment decimal.Decimal

	// PriorBalance is owed-minus-paid for everything before the month.
	PriorBalance decimal.Decimal

	// TotalFinal = MonthTotal + Accompaniment + PriorBalance.
	TotalFinal decimal.Decimal

	Summary billing.PeriodSummary
}

// HasActivity reports whether the supervisor earned anything this month.
func (p Payout) HasActivity() bool {
	return p.Summary.Count > 0 || !p.Accompaniment.IsZero()
}

// Include reports whether the supervisor belongs on the payout list.
func (p Payout) Include() bool {
	return p.HasActivity() || !p.PriorBalance.IsZero()
}

// FullyPaid reports whether nothing is owed to the supervisor.
func (p Payout) FullyPaid() bool {
	return !p.TotalFinal.IsPositive()
}

// =============================================================================
// ROLLUP
// =============================================================================

// accompanimentValue sums 50% of accompanied billable patient-session value
// matching the filter.
func accompanimentValue(supervisorID string, sessions []schedule.Session, keep func(time.Time) bool) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sessions {
		if !s.AccompaniedBySupervisor(supervisorID) || !s.Billable() {
			continue
		}
		if !keep(s.StartsAt) {
			continue
		}
		total = total.Add(s.Amount().Mul(AccompanimentShare))
	}
	return total
}

// ownedValue sums billable value of the supervisor's own sessions matching
// the filter.
func ownedValue(supervisorID string, sessions []schedule.Session, keep func(time.Time) bool) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sessions {
		if !s.ForSupervisor(supervisorID) || !s.Billable() {
			continue
		}
		if !keep(s.StartsAt) {
			continue
		}
		total = total.Add(s.Amount())
	}
	return total
}

// Compute runs the payout rollup for one supervisor and month. sessions must
// include both the supervisor's own sessions and any patient sessions that
// may carry her accompaniment flag; payments is the complete pagos_hechos
// history.
func Compute(supervisorID string, sessions []schedule.Session, payments []billing.PaymentMade, year int, month time.Month) Payout {
	period := billing.CalendarMonth(year, month)

	var owned []schedule.Session
	for _, s := range sessions {
		if s.ForSupervisor(supervisorID) {
			owned = append(owned, s)
		}
	}
	summary := billing.Aggregate(owned, period)

	accomp := accompanimentValue(supervisorID, sessions, period.Contains)

	// Prior balance: everything owed before the month, minus everything paid
	// before the month.
	before := func(t time.Time) bool { return t.Before(period.Start) }
	priorOwed := ownedValue(supervisorID, sessions, before).
		Add(accompanimentValue(supervisorID, sessions, before))

	priorPaid := decimal.Zero
	for _, p := range payments {
		if p.ForSupervisor(supervisorID) && p.Date.Before(period.Start) {
			priorPaid = priorPaid.Add(p.Amount)
		}
	}
	prior := priorOwed.Sub(priorPaid)

	monthTotal := summary.Amount
	return Payout{
		SupervisorID:  supervisorID,
		Year:          year,
		Month:         month,
		MonthTotal:    monthTotal,
		Accompaniment: accomp,
		PriorBalance:  prior,
		TotalFinal:    monthTotal.Add(accomp).Add(prior),
		Summary:       summary,
	}
}
