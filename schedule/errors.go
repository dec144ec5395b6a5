package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBothPartiesSet is returned when a session references both a patient
	// and a supervisor. A session belongs to exactly one.
	ErrBothPartiesSet = errors.New("session references both patient and supervisor")

	// ErrNoPartySet is returned when a session references neither party.
	ErrNoPartySet = errors.New("session references neither patient nor supervisor")

	// ErrNoRecurringSlot is returned when generation is requested for a
	// patient without a weekly slot configured.
	ErrNoRecurringSlot = errors.New("patient has no recurring slot")

	// ErrSessionNotFound is returned when a referenced session doesn't exist
	// or is deleted.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPatientInactive is returned when sessions are generated for a
	// deactivated patient.
	ErrPatientInactive = errors.New("patient is inactive")
)

// InvalidFieldError reports a field-level validation failure. Handlers map
// these to 400 responses with the field name.
type InvalidFieldError struct {
	Field string
	Value string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}
