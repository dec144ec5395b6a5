/*
period.go - Month periods and the default-month policy

PURPOSE:
  Every billing total is computed for a period, never at a point in time.
  Two month conventions coexist:

    Calendar:  1st 00:00 .. last day (invoicing, reconciliation)
    Offset16:  16th of previous month .. 15th (dashboard profit view)

  Callers pick the convention; the aggregator only ever sees explicit
  boundaries.

DEFAULT-MONTH POLICY:
  Early in a month the practice still works on the previous month's
  invoicing. Which month a view opens on is decided by one configurable
  cutover day, shared by every caller.
*/
package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Half-open time interval [Start, End)
// =============================================================================

// Period is a half-open interval: Start inclusive, End exclusive. Sessions
// carry a time of day, so half-open boundaries avoid the last-second edge.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
}

// =============================================================================
// MONTH CONVENTIONS
// =============================================================================

type Convention string

const (
	// ConventionCalendar covers the 1st through the end of the month.
	ConventionCalendar Convention = "calendar"

	// ConventionOffset16 covers the 16th of the previous month through the
	// 15th of the month. Used by the dashboard profit view.
	ConventionOffset16 Convention = "offset16"
)

// MonthPeriod returns the period for (year, month) under the convention.
func MonthPeriod(conv Convention, year int, month time.Month) Period {
	switch conv {
	case ConventionOffset16:
		start := time.Date(year, month, 16, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return Period{Start: start, End: start.AddDate(0, 1, 0)}
	default:
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, 0)}
	}
}

// CalendarMonth is shorthand for the calendar convention.
func CalendarMonth(year int, month time.Month) Period {
	return MonthPeriod(ConventionCalendar, year, month)
}

// StartOfMonth returns the 1st of the month at midnight UTC.
func StartOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween counts calendar months from the anchor's month through t's
// month, inclusive. Returns 0 when t is before the anchor's month.
func MonthsBetween(anchor, t time.Time) int {
	months := (t.Year()-anchor.Year())*12 + int(t.Month()) - int(anchor.Month()) + 1
	if months < 0 {
		return 0
	}
	return months
}

// =============================================================================
// DEFAULT-MONTH POLICY
// =============================================================================

// MonthPolicy decides which (year, month) a view opens on. Until the cutover
// day the previous month is still the working month.
type MonthPolicy struct {
	CutoverDay int
}

// DefaultMonthPolicy matches the practice's habit of closing a month around
// its middle.
var DefaultMonthPolicy = MonthPolicy{CutoverDay: 15}

// DefaultMonth returns the working month for the given date.
func (mp MonthPolicy) DefaultMonth(today time.Time) (int, time.Month) {
	cutover := mp.CutoverDay
	if cutover <= 0 {
		cutover = DefaultMonthPolicy.CutoverDay
	}
	if today.Day() <= cutover {
		prev := today.AddDate(0, -1, 0)
		return prev.Year(), prev.Month()
	}
	return today.Year(), today.Month()
}
