/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts travel as decimal strings ("12345.50"), never floats. The frontend
  formats them; the backend never rounds.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

// =============================================================================
// PATIENTS
// =============================================================================

// RecurringSlotDTO is a weekly session slot in API form.
type RecurringSlotDTO struct {
	Weekday int    `json:"weekday"`
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Hours   string `json:"hours"`
	Rate    string `json:"rate"`
	Type    string `json:"type"`
}

// PatientDTO represents a patient in API responses.
type PatientDTO struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Guardian  string            `json:"guardian,omitempty"`
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Active    bool              `json:"active"`
	Slot      *RecurringSlotDTO `json:"slot,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// SavePatientRequest creates or updates a patient.
type SavePatientRequest struct {
	Name     string            `json:"name"`
	Guardian string            `json:"guardian"`
	Email    string            `json:"email"`
	Phone    string            `json:"phone"`
	Slot     *RecurringSlotDTO `json:"slot"`
}

// =============================================================================
// SUPERVISORS
// =============================================================================

// SupervisorDTO represents a supervisor in API responses.
type SupervisorDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at"`
}

// SaveSupervisorRequest creates or updates a supervisor.
type SaveSupervisorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO represents a calendar session.
type SessionDTO struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	Hours         string  `json:"hours"`
	Rate          string  `json:"rate"`
	Amount        string  `json:"amount"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	PatientID     *string `json:"patient_id,omitempty"`
	SupervisorID  *string `json:"supervisor_id,omitempty"`
	AccompaniedBy *string `json:"accompanied_by,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// SaveSessionRequest creates or updates a session.
type SaveSessionRequest struct {
	Date          string  `json:"date"`
	Hours         string  `json:"hours"`
	Rate          string  `json:"rate"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	PatientID     *string `json:"patient_id"`
	SupervisorID  *string `json:"supervisor_id"`
	AccompaniedBy *string `json:"accompanied_by"`
	Notes         string  `json:"notes"`
}

// UpdateStatusRequest categorizes a session.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentReceivedDTO is money in, per patient.
type PaymentReceivedDTO struct {
	ID         string `json:"id"`
	PatientID  string `json:"patient_id"`
	Amount     string `json:"amount"`
	Date       string `json:"date"`
	Method     string `json:"method,omitempty"`
	Invoiced   bool   `json:"facturado"`
	ReceiptRef string `json:"receipt_ref,omitempty"`
	InvoiceRef string `json:"invoice_ref,omitempty"`
}

// SavePaymentReceivedRequest registers an incoming payment.
type SavePaymentReceivedRequest struct {
	PatientID  string `json:"patient_id"`
	Amount     string `json:"amount"`
	Date       string `json:"date"`
	Method     string `json:"method"`
	Invoiced   bool   `json:"facturado"`
	ReceiptRef string `json:"receipt_ref"`
	InvoiceRef string `json:"invoice_ref"`
}

// PaymentMadeDTO is money out, by concept.
type PaymentMadeDTO struct {
	ID           string  `json:"id"`
	Concept      string  `json:"concept"`
	SupervisorID *string `json:"supervisor_id,omitempty"`
	Amount       string  `json:"amount"`
	Date         string  `json:"date"`
	Method       string  `json:"method,omitempty"`
}

// SavePaymentMadeRequest registers an outgoing payment.
type SavePaymentMadeRequest struct {
	Concept      string  `json:"concept"`
	SupervisorID *string `json:"supervisor_id"`
	Amount       string  `json:"amount"`
	Date         string  `json:"date"`
	Method       string  `json:"method"`
}

// =============================================================================
// BILLING
// =============================================================================

// TypeTotalDTO is the aggregate for one session type.
type TypeTotalDTO struct {
	Count  int    `json:"count"`
	Hours  string `json:"hours"`
	Amount string `json:"amount"`
}

// MonthlyBillingRowDTO is one patient's line on the monthly billing view.
type MonthlyBillingRowDTO struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`

	SessionCount int                     `json:"session_count"`
	HoursTotal   string                  `json:"hours_total"`
	MonthTotal   string                  `json:"month_total"`
	PriorBalance string                  `json:"prior_balance"`
	TotalFinal   string                  `json:"total_final"`
	TotalUSD     string                  `json:"total_usd,omitempty"`
	IsCredit     bool                    `json:"is_credit"`
	ByType       map[string]TypeTotalDTO `json:"by_type"`

	SentToGuardian bool    `json:"enviado_tutor"`
	SentAt         *string `json:"fecha_enviado_tutor,omitempty"`
	Invoiced       bool    `json:"facturado"`
	InvoicedAt     *string `json:"fecha_facturado,omitempty"`
	FullyPaid      bool    `json:"completamente_pagado"`
	FullyPaidAt    *string `json:"fecha_completamente_pagado,omitempty"`
}

// MonthlyBillingResponse is the full monthly view.
type MonthlyBillingResponse struct {
	Year     int                    `json:"year"`
	Month    int                    `json:"month"`
	Rows     []MonthlyBillingRowDTO `json:"rows"`
	Total    string                 `json:"total"`
	SellRate string                 `json:"sell_rate,omitempty"`
}

// SetSentRequest toggles the sent-to-guardian flag.
type SetSentRequest struct {
	Sent bool `json:"sent"`
}

// =============================================================================
// SUPERVISION
// =============================================================================

// SupervisionRowDTO is one supervisor's line on the monthly view.
type SupervisionRowDTO struct {
	SupervisorID   string `json:"supervisor_id"`
	SupervisorName string `json:"supervisor_name"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`

	SessionCount  int    `json:"session_count"`
	MonthTotal    string `json:"month_total"`
	Accompaniment string `json:"accompaniment"`
	PriorBalance  string `json:"prior_balance"`
	TotalFinal    string `json:"total_final"`
	FullyPaid     bool   `json:"completamente_pagado"`
}

// =============================================================================
// RENT
// =============================================================================

// RentConfigDTO is the singleton rent configuration.
type RentConfigDTO struct {
	MonthlyPrice string `json:"monthly_price"`
	Payee        string `json:"payee,omitempty"`
	StartDate    string `json:"start_date"`
}

// RentSummaryDTO is the rent position as of today.
type RentSummaryDTO struct {
	Config        *RentConfigDTO `json:"config,omitempty"`
	MonthsElapsed int            `json:"months_elapsed"`
	TotalOwed     string         `json:"total_owed"`
	TotalPaid     string         `json:"total_paid"`
	Balance       string         `json:"balance"`
}

// =============================================================================
// DASHBOARD
// =============================================================================

// DashboardResponse is the 16th-to-15th working period summary.
type DashboardResponse struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	SessionCount  int                     `json:"session_count"`
	HoursTotal    string                  `json:"hours_total"`
	BilledTotal   string                  `json:"billed_total"`
	BilledUSD     string                  `json:"billed_usd,omitempty"`
	ByType        map[string]TypeTotalDTO `json:"by_type"`
	Cancellations map[string]int          `json:"cancellations"`
}

// =============================================================================
// MISC
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
