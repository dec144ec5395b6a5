/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All billing error types in one place. Handlers and the store wrap these
  with additional context; callers branch with errors.Is().
*/
package billing

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPatientNotFound is returned when a referenced patient doesn't exist.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrSupervisorNotFound is returned when a referenced supervisor doesn't exist.
	ErrSupervisorNotFound = errors.New("supervisor not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist
	// or is deleted.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidMonth is returned for months outside 1..12 or years the
	// practice can't have data for.
	ErrInvalidMonth = errors.New("invalid year/month")
)
