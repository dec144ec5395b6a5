/*
Package schedule implements the session domain for a single-practitioner
practice.

PURPOSE:
  Sessions are the scheduled, billable events of the practice: regular
  patient sessions, evaluations, school meetings, supervisions. This package
  defines the session types and statuses, the billable rule, the
  patient/supervisor exclusivity invariant, and recurring-slot generation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Session: one scheduled event with price, duration and status
  - SessionType / SessionStatus: closed enums matching the practice's wording
  - Billable: only completed sessions and late cancellations are billed

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for rates and hours, never float money
  2. Exclusivity: a session belongs to exactly one patient XOR supervisor
  3. Soft deletion: sessions are flagged, never purged

SEE ALSO:
  - recurring.go: Weekly slot generation and patient (de|re)activation
  - billing package: Aggregation and reconciliation over sessions
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSION TYPE - What kind of work the session is
// =============================================================================

type SessionType string

const (
	TypeRegular       SessionType = "Sesión"
	TypeEvaluation    SessionType = "Evaluación"
	TypeReEvaluation  SessionType = "Re-evaluación"
	TypeFollowUp      SessionType = "Seguimiento"
	TypeSchoolMeeting SessionType = "Reunión colegio"
	TypeSupervision   SessionType = "Supervisión"
)

// AllTypes lists every session type, in display order.
var AllTypes = []SessionType{
	TypeRegular,
	TypeEvaluation,
	TypeReEvaluation,
	TypeFollowUp,
	TypeSchoolMeeting,
	TypeSupervision,
}

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// =============================================================================
// SESSION STATUS - Lifecycle and cancellation reasons
// =============================================================================

type SessionStatus string

const (
	StatusPending                  SessionStatus = "Pendiente"
	StatusDone                     SessionStatus = "Realizada"
	StatusCancelledWithNotice      SessionStatus = "Cancelada con antelación"
	StatusCancelledWithoutNotice   SessionStatus = "Cancelada sin antelación"
	StatusCancelledByPractitioner  SessionStatus = "Cancelada por la profesional"
	StatusCancelledHoliday         SessionStatus = "Cancelada por feriado"
)

// AllStatuses lists every session status.
var AllStatuses = []SessionStatus{
	StatusPending,
	StatusDone,
	StatusCancelledWithNotice,
	StatusCancelledWithoutNotice,
	StatusCancelledByPractitioner,
	StatusCancelledHoliday,
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Billable reports whether a session in this status is charged.
// Completed sessions bill. A cancellation bills only when it happened
// without notice; every other cancellation variant is free.
func (s SessionStatus) Billable() bool {
	return s == StatusDone || s == StatusCancelledWithoutNotice
}

// =============================================================================
// SESSION - One scheduled billable event
// =============================================================================

// Session is a scheduled event tied to exactly one patient or one supervisor.
type Session struct {
	ID       string
	StartsAt time.Time
	Hours    decimal.Decimal // duration in hours
	Rate     decimal.Decimal // hourly rate
	Type     SessionType
	Status   SessionStatus

	// Exactly one of PatientID / SupervisorID is set.
	PatientID    *string
	SupervisorID *string

	// AccompaniedBy holds a supervisor ID when a supervisor sat in on a
	// patient session. Only meaningful when PatientID is set.
	AccompaniedBy *string

	Notes     string
	Deleted   bool
	CreatedAt time.Time
}

// Amount returns the session value: rate × duration hours.
func (s Session) Amount() decimal.Decimal {
	return s.Rate.Mul(s.Hours)
}

// Billable reports whether this session contributes to billing totals.
// Deleted sessions never bill.
func (s Session) Billable() bool {
	return !s.Deleted && s.Status.Billable()
}

// ForPatient reports whether the session belongs to the given patient.
func (s Session) ForPatient(patientID string) bool {
	return s.PatientID != nil && *s.PatientID == patientID
}

// ForSupervisor reports whether the session belongs to the given supervisor.
func (s Session) ForSupervisor(supervisorID string) bool {
	return s.SupervisorID != nil && *s.SupervisorID == supervisorID
}

// AccompaniedBySupervisor reports whether the given supervisor accompanied
// this patient session.
func (s Session) AccompaniedBySupervisor(supervisorID string) bool {
	return s.PatientID != nil && s.AccompaniedBy != nil && *s.AccompaniedBy == supervisorID
}

// Validate enforces the session invariants:
//   - exactly one of PatientID / SupervisorID is set
//   - type and status are known values
//   - duration and rate are non-negative
//   - accompaniment only applies to patient sessions
func (s Session) Validate() error {
	hasPatient := s.PatientID != nil && *s.PatientID != ""
	hasSupervisor := s.SupervisorID != nil && *s.SupervisorID != ""

	switch {
	case hasPatient && hasSupervisor:
		return ErrBothPartiesSet
	case !hasPatient && !hasSupervisor:
		return ErrNoPartySet
	}

	if !s.Type.Valid() {
		return &InvalidFieldError{Field: "type", Value: string(s.Type)}
	}
	if !s.Status.Valid() {
		return &InvalidFieldError{Field: "status", Value: string(s.Status)}
	}
	if s.Hours.IsNegative() || s.Hours.IsZero() {
		return &InvalidFieldError{Field: "hours", Value: s.Hours.String()}
	}
	if s.Rate.IsNegative() {
		return &InvalidFieldError{Field: "rate", Value: s.Rate.String()}
	}
	if s.AccompaniedBy != nil && !hasPatient {
		return &InvalidFieldError{Field: "accompanied_by", Value: *s.AccompaniedBy}
	}
	return nil
}
