/*
recurring.go - Weekly slot generation and patient lifecycle cascades

PURPOSE:
  Active patients carry a weekly slot (weekday + hour + duration + rate).
  The practice pre-generates pending sessions from that slot so the calendar
  is populated weeks ahead. Deactivating a patient wipes their future
  pending sessions; reactivating regenerates them from the slot.

GENERATION RULES:
  - One session per slot occurrence, starting at the first occurrence on or
    after 'from', up to and including 'until'.
  - Occurrences that already have a session (same patient, same day, not
    deleted) are skipped, so generation is safe to re-run.
  - Generated sessions start as Pendiente with the slot's type and rate.

SEE ALSO:
  - cron package: daily top-up job keeping the horizon filled
  - store/sqlite: persistence of generated sessions
*/
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RECURRING SLOT - A patient's fixed weekly appointment
// =============================================================================

// RecurringSlot describes a patient's standing weekly session.
type RecurringSlot struct {
	Weekday time.Weekday
	Hour    int // 0-23, local practice time
	Minute  int
	Hours   decimal.Decimal // session duration
	Rate    decimal.Decimal // hourly rate
	Type    SessionType
}

// IsZero reports whether the slot is unset.
func (rs RecurringSlot) IsZero() bool {
	return rs.Hours.IsZero() && rs.Rate.IsZero()
}

// NextOccurrence returns the first slot occurrence at or after t.
func (rs RecurringSlot) NextOccurrence(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), rs.Hour, rs.Minute, 0, 0, t.Location())
	for day.Weekday() != rs.Weekday || day.Before(t) {
		day = day.AddDate(0, 0, 1)
		day = time.Date(day.Year(), day.Month(), day.Day(), rs.Hour, rs.Minute, 0, 0, t.Location())
	}
	return day
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateRecurring produces pending sessions for every slot occurrence in
// [from, until], skipping days listed in taken (dates that already carry a
// session for this patient). The taken set is keyed by YYYY-MM-DD.
func GenerateRecurring(patientID string, slot RecurringSlot, from, until time.Time, taken map[string]bool) ([]Session, error) {
	if slot.IsZero() {
		return nil, ErrNoRecurringSlot
	}

	var sessions []Session
	for at := slot.NextOccurrence(from); !at.After(until); at = at.AddDate(0, 0, 7) {
		day := at.Format("2006-01-02")
		if taken[day] {
			continue
		}
		pid := patientID
		sessions = append(sessions, Session{
			ID:        uuid.NewString(),
			StartsAt:  at,
			Hours:     slot.Hours,
			Rate:      slot.Rate,
			Type:      slot.Type,
			Status:    StatusPending,
			PatientID: &pid,
			CreatedAt: time.Now().UTC(),
		})
	}
	return sessions, nil
}

// =============================================================================
// PATIENT LIFECYCLE - deactivate / reactivate cascades
// =============================================================================

// SessionWriter is the slice of persistence the lifecycle cascades need.
// store/sqlite implements it.
type SessionWriter interface {
	// SoftDeleteFuturePending flags all non-deleted pending sessions of the
	// patient starting at or after from. Returns the number flagged.
	SoftDeleteFuturePending(ctx context.Context, patientID string, from time.Time) (int, error)

	// SaveSessions persists a batch of sessions atomically.
	SaveSessions(ctx context.Context, sessions []Session) error

	// TakenDays returns the YYYY-MM-DD set of days in [from, until] that
	// already carry a non-deleted session for the patient.
	TakenDays(ctx context.Context, patientID string, from, until time.Time) (map[string]bool, error)
}

// DeactivatePatient removes the patient's future pending sessions. The
// patient row itself is flagged inactive by the caller; this handles only
// the session cascade.
func DeactivatePatient(ctx context.Context, w SessionWriter, patientID string, from time.Time) (int, error) {
	return w.SoftDeleteFuturePending(ctx, patientID, from)
}

// ReactivatePatient regenerates future sessions from the patient's slot,
// from 'from' through 'horizon'. Returns the sessions created.
func ReactivatePatient(ctx context.Context, w SessionWriter, patientID string, slot RecurringSlot, from, horizon time.Time) ([]Session, error) {
	taken, err := w.TakenDays(ctx, patientID, from, horizon)
	if err != nil {
		return nil, err
	}
	sessions, err := GenerateRecurring(patientID, slot, from, horizon, taken)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	if err := w.SaveSessions(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
