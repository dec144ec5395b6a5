/*
classify.go - Session classification

PURPOSE:
  Partitions session records by type and filters them to billable statuses.
  A session is billable if and only if it is Realizada or Cancelada sin
  antelación; every other cancellation variant contributes nothing to any
  total. Pure functions of (sessions, period); no side effects.
*/
package billing

import (
	"time"

	"github.com/consultorio/practice-engine/schedule"
)

// =============================================================================
// SESSION CLASSIFIER
// =============================================================================

// BillableInPeriod returns the billable, non-deleted sessions whose start
// falls inside the period, preserving input order.
func BillableInPeriod(sessions []schedule.Session, p Period) []schedule.Session {
	var out []schedule.Session
	for _, s := range sessions {
		if s.Billable() && p.Contains(s.StartsAt) {
			out = append(out, s)
		}
	}
	return out
}

// BillableBefore returns the billable, non-deleted sessions strictly before
// the cutoff. Used by the carry-forward accumulator.
func BillableBefore(sessions []schedule.Session, cutoff time.Time) []schedule.Session {
	var out []schedule.Session
	for _, s := range sessions {
		if s.Billable() && s.StartsAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// PartitionByType groups sessions by their type.
func PartitionByType(sessions []schedule.Session) map[schedule.SessionType][]schedule.Session {
	byType := make(map[schedule.SessionType][]schedule.Session)
	for _, s := range sessions {
		byType[s.Type] = append(byType[s.Type], s)
	}
	return byType
}

// CancellationCounts tallies non-deleted cancelled sessions in the period by
// status. Feeds the dashboard cancellation widgets.
func CancellationCounts(sessions []schedule.Session, p Period) map[schedule.SessionStatus]int {
	counts := make(map[schedule.SessionStatus]int)
	for _, s := range sessions {
		if s.Deleted || !p.Contains(s.StartsAt) {
			continue
		}
		switch s.Status {
		case schedule.StatusCancelledWithNotice,
			schedule.StatusCancelledWithoutNotice,
			schedule.StatusCancelledByPractitioner,
			schedule.StatusCancelledHoliday:
			counts[s.Status]++
		}
	}
	return counts
}
