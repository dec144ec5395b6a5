/*
handlers.go - HTTP API handlers for the practice dashboard

PURPOSE:
  Exposes the scheduling and billing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Patients:
    GET    /api/patients                    List patients (?active=true)
    POST   /api/patients                    Create patient
    GET    /api/patients/{id}               Get patient
    PUT    /api/patients/{id}               Update patient
    DELETE /api/patients/{id}               Soft-delete patient
    POST   /api/patients/{id}/deactivate    Deactivate + drop future pending
    POST   /api/patients/{id}/reactivate    Reactivate + regenerate sessions

  Supervisors:
    GET/POST /api/supervisors, GET/PUT/DELETE /api/supervisors/{id}

  Sessions:
    GET    /api/sessions?from=&to=          List sessions in range
    POST   /api/sessions                    Create session
    PUT    /api/sessions/{id}/status        Categorize session
    DELETE /api/sessions/{id}               Soft-delete session

  Payments:
    GET/POST /api/payments/received, DELETE /api/payments/received/{id}
    GET/POST /api/payments/made,     DELETE /api/payments/made/{id}

  Billing:
    GET    /api/billing/monthly?year=&month=    Monthly pending list
    POST   /api/billing/monthly/{patientID}/sent Toggle sent flag
    GET    /api/billing/export?year=&month=     XLSX download

  Supervision:
    GET    /api/supervision/monthly?year=&month=

  Rent / FX / Dashboard:
    GET/PUT /api/rent, GET /api/fx, GET /api/dashboard?date=

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultorio/practice-engine/billing"
	"github.com/consultorio/practice-engine/fx"
	"github.com/consultorio/practice-engine/schedule"
	"github.com/consultorio/practice-engine/store/sqlite"
	"github.com/consultorio/practice-engine/supervision"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	FX         *fx.Client
	Reconciler *billing.Reconciler
	Policy     billing.MonthPolicy

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, fxClient *fx.Client) *Handler {
	return &Handler{
		Store:      store,
		FX:         fxClient,
		Reconciler: billing.NewReconciler(store),
		Policy:     billing.DefaultMonthPolicy,
	}
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

// ListPatients returns patients, optionally only active ones.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	patients, err := h.Store.ListPatients(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list patients", err)
		return
	}

	dtos := make([]PatientDTO, len(patients))
	for i, p := range patients {
		dtos[i] = toPatientDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPatient returns a single patient.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Store.GetPatient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
		return
	}
	if p == nil || p.Deleted {
		writeError(w, http.StatusNotFound, "Patient not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(*p))
}

// CreatePatient creates a patient.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req SavePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	p := sqlite.Patient{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Guardian: req.Guardian,
		Email:    req.Email,
		Phone:    req.Phone,
		Active:   true,
	}
	if req.Slot != nil {
		slot, err := fromSlotDTO(*req.Slot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid recurring slot", err)
			return
		}
		p.Slot = slot
		p.HasSlot = true
	}

	if err := h.Store.SavePatient(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientDTO(p))
}

// UpdatePatient updates a patient's fields and slot.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := h.Store.GetPatient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
		return
	}
	if existing == nil || existing.Deleted {
		writeError(w, http.StatusNotFound, "Patient not found", nil)
		return
	}

	var req SavePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	existing.Guardian = req.Guardian
	existing.Email = req.Email
	existing.Phone = req.Phone
	if req.Slot != nil {
		slot, err := fromSlotDTO(*req.Slot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid recurring slot", err)
			return
		}
		existing.Slot = slot
		existing.HasSlot = true
	} else {
		existing.Slot = schedule.RecurringSlot{}
		existing.HasSlot = false
	}

	if err := h.Store.SavePatient(r.Context(), *existing); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save patient", err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(*existing))
}

// DeletePatient soft-deletes a patient.
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeletePatient(r.Context(), id); err != nil {
		if err == billing.ErrPatientNotFound {
			writeError(w, http.StatusNotFound, "Patient not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete patient", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeactivatePatient pauses a patient: future pending sessions are dropped,
// history is kept.
func (h *Handler) DeactivatePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	p, err := h.Store.GetPatient(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
		return
	}
	if p == nil || p.Deleted {
		writeError(w, http.StatusNotFound, "Patient not found", nil)
		return
	}

	removed, err := schedule.DeactivatePatient(ctx, h.Store, id, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to deactivate patient", err)
		return
	}
	if err := h.Store.SetPatientActive(ctx, id, false); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to deactivate patient", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patient_id":       id,
		"sessions_removed": removed,
	})
}

// ReactivatePatient resumes a patient and regenerates the weekly slot.
func (h *Handler) ReactivatePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	p, err := h.Store.GetPatient(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
		return
	}
	if p == nil || p.Deleted {
		writeError(w, http.StatusNotFound, "Patient not found", nil)
		return
	}

	if err := h.Store.SetPatientActive(ctx, id, true); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reactivate patient", err)
		return
	}

	var created []schedule.Session
	if p.HasSlot {
		now := time.Now()
		horizon := now.AddDate(0, 0, 7*8)
		created, err = schedule.ReactivatePatient(ctx, h.Store, id, p.Slot, now, horizon)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to regenerate sessions", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patient_id":       id,
		"sessions_created": len(created),
	})
}

// =============================================================================
// SUPERVISOR HANDLERS
// =============================================================================

// ListSupervisors returns all supervisors.
func (h *Handler) ListSupervisors(w http.ResponseWriter, r *http.Request) {
	sups, err := h.Store.ListSupervisors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list supervisors", err)
		return
	}

	dtos := make([]SupervisorDTO, len(sups))
	for i, s := range sups {
		dtos[i] = toSupervisorDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSupervisor creates a supervisor.
func (h *Handler) CreateSupervisor(w http.ResponseWriter, r *http.Request) {
	var req SaveSupervisorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	s := sqlite.Supervisor{
		ID:    uuid.NewString(),
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	}
	if err := h.Store.SaveSupervisor(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save supervisor", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupervisorDTO(s))
}

// GetSupervisor returns a single supervisor.
func (h *Handler) GetSupervisor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.Store.GetSupervisor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get supervisor", err)
		return
	}
	if s == nil || s.Deleted {
		writeError(w, http.StatusNotFound, "Supervisor not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSupervisorDTO(*s))
}

// DeleteSupervisor soft-deletes a supervisor.
func (h *Handler) DeleteSupervisor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeleteSupervisor(r.Context(), id); err != nil {
		if err == billing.ErrSupervisorNotFound {
			writeError(w, http.StatusNotFound, "Supervisor not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete supervisor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns sessions in the requested range.
// Defaults to the current calendar month.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := time.Now()
	from := billing.StartOfMonth(now.Year(), now.Month())
	to := from.AddDate(0, 1, 0)

	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		to = t
	}

	sessions, err := h.Store.ListSessionsInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSession creates a single session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sess, err := fromSessionRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session", err)
		return
	}
	sess.ID = uuid.NewString()

	if sess.PatientID != nil {
		p, err := h.Store.GetPatient(r.Context(), *sess.PatientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
			return
		}
		if p == nil || p.Deleted {
			writeError(w, http.StatusNotFound, "Patient not found", billing.ErrPatientNotFound)
			return
		}
		if !p.Active {
			writeError(w, http.StatusConflict, "Patient is inactive", schedule.ErrPatientInactive)
			return
		}
	}

	if err := h.Store.SaveSession(r.Context(), sess); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

// UpdateSessionStatus categorizes a session.
func (h *Handler) UpdateSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := schedule.SessionStatus(req.Status)
	if err := h.Store.UpdateSessionStatus(r.Context(), id, status); err != nil {
		if _, ok := err.(*schedule.InvalidFieldError); ok {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
		if errors.Is(err, schedule.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession soft-deletes a session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, schedule.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPaymentsReceived returns payments, optionally for one patient.
func (h *Handler) ListPaymentsReceived(w http.ResponseWriter, r *http.Request) {
	patientID := r.URL.Query().Get("patient_id")

	var payments []billing.PaymentReceived
	var err error
	if patientID != "" {
		payments, err = h.Store.ListPaymentsReceivedByPatient(r.Context(), patientID)
	} else {
		// All history: wide range covers any realistic data
		payments, err = h.Store.ListPaymentsReceivedInRange(r.Context(),
			time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Now().AddDate(10, 0, 0))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentReceivedDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentReceivedDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePaymentReceived registers an incoming payment.
func (h *Handler) CreatePaymentReceived(w http.ResponseWriter, r *http.Request) {
	var req SavePaymentReceivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required", nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	p := billing.PaymentReceived{
		ID:         uuid.NewString(),
		PatientID:  req.PatientID,
		Amount:     amount,
		Date:       date,
		Method:     billing.PaymentMethod(req.Method),
		Invoiced:   req.Invoiced,
		ReceiptRef: req.ReceiptRef,
		InvoiceRef: req.InvoiceRef,
	}
	if err := h.Store.SavePaymentReceived(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentReceivedDTO(p))
}

// DeletePaymentReceived soft-deletes an incoming payment.
func (h *Handler) DeletePaymentReceived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeletePaymentReceived(r.Context(), id); err != nil {
		if errors.Is(err, billing.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, "Payment not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPaymentsMade returns outgoing payments, optionally filtered by
// concept or by a from/to date range.
func (h *Handler) ListPaymentsMade(w http.ResponseWriter, r *http.Request) {
	concept := billing.PaymentConcept(r.URL.Query().Get("concept"))
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	var payments []billing.PaymentMade
	var err error
	if fromStr != "" && toStr != "" {
		var from, to time.Time
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		payments, err = h.Store.ListPaymentsMadeInRange(r.Context(), from, to)
	} else {
		payments, err = h.Store.ListPaymentsMade(r.Context(), concept)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentMadeDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentMadeDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePaymentMade registers an outgoing payment.
func (h *Handler) CreatePaymentMade(w http.ResponseWriter, r *http.Request) {
	var req SavePaymentMadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	concept := billing.PaymentConcept(req.Concept)
	if concept == billing.ConceptSupervision && req.SupervisorID == nil {
		writeError(w, http.StatusBadRequest, "supervisor_id is required for supervision payments", nil)
		return
	}

	p := billing.PaymentMade{
		ID:           uuid.NewString(),
		Concept:      concept,
		SupervisorID: req.SupervisorID,
		Amount:       amount,
		Date:         date,
		Method:       billing.PaymentMethod(req.Method),
	}
	if err := h.Store.SavePaymentMade(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentMadeDTO(p))
}

// DeletePaymentMade soft-deletes an outgoing payment.
func (h *Handler) DeletePaymentMade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeletePaymentMade(r.Context(), id); err != nil {
		if errors.Is(err, billing.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, "Payment not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MONTHLY BILLING
// =============================================================================

// GetMonthlyBilling returns the monthly pending list: every patient with
// activity in the month or a non-zero carried balance.
func (h *Handler) GetMonthlyBilling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	year, month, err := h.monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	patients, err := h.Store.ListPatients(ctx, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list patients", err)
		return
	}

	// One query for the whole month's records instead of one per patient.
	records, err := h.Store.ListReconciliations(ctx, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load billing records", err)
		return
	}

	var sellRate decimal.Decimal
	if h.FX != nil {
		if rate, err := h.FX.SellRate(ctx); err == nil {
			sellRate = rate.Sell
		}
	}

	resp := MonthlyBillingResponse{
		Year:  year,
		Month: int(month),
		Rows:  []MonthlyBillingRowDTO{},
	}
	total := decimal.Zero

	for _, p := range patients {
		sessions, err := h.Store.ListSessionsByPatient(ctx, p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
			return
		}
		payments, err := h.Store.ListPaymentsReceivedByPatient(ctx, p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
			return
		}

		balance := billing.ComputeMonthBalance(p.ID, sessions, payments, year, month)
		if !balance.Include() {
			continue
		}

		var existing *billing.ReconciliationRecord
		if stored, ok := records[p.ID]; ok {
			rec := stored
			existing = &rec
		}
		rec, err := h.Reconciler.ReconcileExisting(ctx, existing, balance, payments)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reconcile", err)
			return
		}

		row := toBillingRowDTO(p.Name, balance, rec)
		if !sellRate.IsZero() {
			row.TotalUSD = billing.Pesos(balance.TotalFinal).InUSD(sellRate).Value.Round(2).String()
		}
		resp.Rows = append(resp.Rows, row)
		total = total.Add(balance.TotalFinal)
	}

	sort.Slice(resp.Rows, func(i, j int) bool {
		return resp.Rows[i].PatientName < resp.Rows[j].PatientName
	})
	resp.Total = total.String()
	if !sellRate.IsZero() {
		resp.SellRate = sellRate.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetSentToGuardian toggles the manual sent flag for one patient's month.
func (h *Handler) SetSentToGuardian(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")

	year, month, err := h.monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	var req SetSentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Reconciler.SetSentToGuardian(r.Context(), patientID, year, month, req.Sent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update sent flag", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "No billing record for that month", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patient_id":          rec.PatientID,
		"enviado_tutor":       rec.SentToGuardian,
		"fecha_enviado_tutor": formatTimePtr(rec.SentAt),
	})
}

// =============================================================================
// SUPERVISION
// =============================================================================

// GetMonthlySupervision returns each supervisor's payout line for the month.
func (h *Handler) GetMonthlySupervision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	year, month, err := h.monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	sups, err := h.Store.ListSupervisors(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list supervisors", err)
		return
	}
	payments, err := h.Store.ListPaymentsMade(ctx, billing.ConceptSupervision)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	rows := []SupervisionRowDTO{}
	for _, s := range sups {
		sessions, err := h.Store.ListSessionsForSupervisor(ctx, s.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
			return
		}

		payout := supervision.Compute(s.ID, sessions, payments, year, month)
		if !payout.Include() {
			continue
		}

		rows = append(rows, SupervisionRowDTO{
			SupervisorID:   s.ID,
			SupervisorName: s.Name,
			Year:           year,
			Month:          int(month),
			SessionCount:   payout.Summary.Count,
			MonthTotal:     payout.MonthTotal.String(),
			Accompaniment:  payout.Accompaniment.String(),
			PriorBalance:   payout.PriorBalance.String(),
			TotalFinal:     payout.TotalFinal.String(),
			FullyPaid:      payout.FullyPaid(),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SupervisorName < rows[j].SupervisorName
	})
	writeJSON(w, http.StatusOK, rows)
}

// =============================================================================
// RENT
// =============================================================================

// GetRent returns the rent position as of today.
func (h *Handler) GetRent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cfg, err := h.Store.GetRentConfig(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get rent config", err)
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusOK, RentSummaryDTO{
			TotalOwed: "0", TotalPaid: "0", Balance: "0",
		})
		return
	}

	payments, err := h.Store.ListPaymentsMade(ctx, billing.ConceptRent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rent payments", err)
		return
	}

	summary := billing.RentRollup(*cfg, payments, time.Now())
	writeJSON(w, http.StatusOK, RentSummaryDTO{
		Config: &RentConfigDTO{
			MonthlyPrice: cfg.MonthlyPrice.String(),
			Payee:        cfg.Payee,
			StartDate:    cfg.StartDate.Format("2006-01-02"),
		},
		MonthsElapsed: summary.MonthsElapsed,
		TotalOwed:     summary.TotalOwed.String(),
		TotalPaid:     summary.TotalPaid.String(),
		Balance:       summary.Balance.String(),
	})
}

// SaveRent upserts the rent configuration.
func (h *Handler) SaveRent(w http.ResponseWriter, r *http.Request) {
	var req RentConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	price, err := decimal.NewFromString(req.MonthlyPrice)
	if err != nil || !price.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid monthly price", err)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}

	cfg := billing.RentConfig{
		MonthlyPrice: price,
		Payee:        req.Payee,
		StartDate:    start,
	}
	if err := h.Store.SaveRentConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rent config", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// DASHBOARD / FX
// =============================================================================

// GetDashboard returns the 16th-to-15th working period summary for the
// period containing the given date (default today).
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	at := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		at = t
	}

	// The Offset16 period containing `at`: named by the month of its end
	year, month := at.Year(), at.Month()
	if at.Day() >= 16 {
		next := at.AddDate(0, 1, 0)
		year, month = next.Year(), next.Month()
	}
	period := billing.MonthPeriod(billing.ConventionOffset16, year, month)

	sessions, err := h.Store.ListSessionsInRange(ctx, period.Start, period.End)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	summary := billing.Aggregate(sessions, period)
	cancels := billing.CancellationCounts(sessions, period)

	resp := DashboardResponse{
		PeriodStart:   period.Start.Format("2006-01-02"),
		PeriodEnd:     period.End.Format("2006-01-02"),
		SessionCount:  summary.Count,
		HoursTotal:    summary.Hours.String(),
		BilledTotal:   summary.Amount.String(),
		ByType:        toByTypeDTO(summary.ByType),
		Cancellations: make(map[string]int, len(cancels)),
	}
	for status, n := range cancels {
		resp.Cancellations[string(status)] = n
	}

	if h.FX != nil {
		if rate, err := h.FX.SellRate(ctx); err == nil && !rate.Sell.IsZero() {
			resp.BilledUSD = billing.Pesos(summary.Amount).InUSD(rate.Sell).Value.Round(2).String()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetFXRate returns the current ARS/USD sell rate.
func (h *Handler) GetFXRate(w http.ResponseWriter, r *http.Request) {
	if h.FX == nil {
		writeError(w, http.StatusServiceUnavailable, "FX client not configured", nil)
		return
	}

	rate, err := h.FX.SellRate(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to fetch exchange rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// =============================================================================
// HELPERS
// =============================================================================

// monthParams resolves year/month from the query, falling back to the
// working month per the cutover policy.
func (h *Handler) monthParams(r *http.Request) (int, time.Month, error) {
	q := r.URL.Query()

	yearStr, monthStr := q.Get("year"), q.Get("month")
	if yearStr == "" && monthStr == "" {
		year, month := h.Policy.DefaultMonth(time.Now())
		return year, month, nil
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, 0, err
	}
	m, err := strconv.Atoi(monthStr)
	if err != nil {
		return 0, 0, err
	}
	if m < 1 || m > 12 {
		return 0, 0, billing.ErrInvalidMonth
	}
	return year, time.Month(m), nil
}

func toPatientDTO(p sqlite.Patient) PatientDTO {
	dto := PatientDTO{
		ID:        p.ID,
		Name:      p.Name,
		Guardian:  p.Guardian,
		Email:     p.Email,
		Phone:     p.Phone,
		Active:    p.Active,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.HasSlot {
		dto.Slot = &RecurringSlotDTO{
			Weekday: int(p.Slot.Weekday),
			Hour:    p.Slot.Hour,
			Minute:  p.Slot.Minute,
			Hours:   p.Slot.Hours.String(),
			Rate:    p.Slot.Rate.String(),
			Type:    string(p.Slot.Type),
		}
	}
	return dto
}

func fromSlotDTO(dto RecurringSlotDTO) (schedule.RecurringSlot, error) {
	hours, err := decimal.NewFromString(dto.Hours)
	if err != nil {
		return schedule.RecurringSlot{}, err
	}
	rate, err := decimal.NewFromString(dto.Rate)
	if err != nil {
		return schedule.RecurringSlot{}, err
	}
	return schedule.RecurringSlot{
		Weekday: time.Weekday(dto.Weekday),
		Hour:    dto.Hour,
		Minute:  dto.Minute,
		Hours:   hours,
		Rate:    rate,
		Type:    schedule.SessionType(dto.Type),
	}, nil
}

func toSupervisorDTO(s sqlite.Supervisor) SupervisorDTO {
	return SupervisorDTO{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		Phone:     s.Phone,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

func toSessionDTO(s schedule.Session) SessionDTO {
	return SessionDTO{
		ID:            s.ID,
		Date:          s.StartsAt.Format(time.RFC3339),
		Hours:         s.Hours.String(),
		Rate:          s.Rate.String(),
		Amount:        s.Amount().String(),
		Type:          string(s.Type),
		Status:        string(s.Status),
		PatientID:     s.PatientID,
		SupervisorID:  s.SupervisorID,
		AccompaniedBy: s.AccompaniedBy,
		Notes:         s.Notes,
	}
}

func fromSessionRequest(req SaveSessionRequest) (schedule.Session, error) {
	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		// Accept bare dates too
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			return schedule.Session{}, err
		}
	}
	hours, err := decimal.NewFromString(req.Hours)
	if err != nil {
		return schedule.Session{}, err
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		return schedule.Session{}, err
	}

	status := schedule.StatusPending
	if req.Status != "" {
		status = schedule.SessionStatus(req.Status)
	}

	return schedule.Session{
		StartsAt:      date,
		Hours:         hours,
		Rate:          rate,
		Type:          schedule.SessionType(req.Type),
		Status:        status,
		PatientID:     req.PatientID,
		SupervisorID:  req.SupervisorID,
		AccompaniedBy: req.AccompaniedBy,
		Notes:         req.Notes,
	}, nil
}

func toPaymentReceivedDTO(p billing.PaymentReceived) PaymentReceivedDTO {
	return PaymentReceivedDTO{
		ID:         p.ID,
		PatientID:  p.PatientID,
		Amount:     p.Amount.String(),
		Date:       p.Date.Format("2006-01-02"),
		Method:     string(p.Method),
		Invoiced:   p.Invoiced,
		ReceiptRef: p.ReceiptRef,
		InvoiceRef: p.InvoiceRef,
	}
}

func toPaymentMadeDTO(p billing.PaymentMade) PaymentMadeDTO {
	return PaymentMadeDTO{
		ID:           p.ID,
		Concept:      string(p.Concept),
		SupervisorID: p.SupervisorID,
		Amount:       p.Amount.String(),
		Date:         p.Date.Format("2006-01-02"),
		Method:       string(p.Method),
	}
}

func toBillingRowDTO(name string, b billing.MonthBalance, rec *billing.ReconciliationRecord) MonthlyBillingRowDTO {
	row := MonthlyBillingRowDTO{
		PatientID:    b.PatientID,
		PatientName:  name,
		Year:         b.Year,
		Month:        int(b.Month),
		SessionCount: b.Summary.Count,
		HoursTotal:   b.Summary.Hours.String(),
		MonthTotal:   b.MonthTotal.String(),
		PriorBalance: b.PriorBalance.String(),
		TotalFinal:   b.TotalFinal.String(),
		IsCredit:     b.IsCredit(),
		ByType:       toByTypeDTO(b.Summary.ByType),
	}
	if rec != nil {
		row.SentToGuardian = rec.SentToGuardian
		row.SentAt = formatTimePtr(rec.SentAt)
		row.Invoiced = rec.Invoiced
		row.InvoicedAt = formatTimePtr(rec.InvoicedAt)
		row.FullyPaid = rec.FullyPaid
		row.FullyPaidAt = formatTimePtr(rec.FullyPaidAt)
	}
	return row
}

func toByTypeDTO(byType map[schedule.SessionType]billing.TypeTotal) map[string]TypeTotalDTO {
	out := make(map[string]TypeTotalDTO, len(byType))
	for typ, tot := range byType {
		out[string(typ)] = TypeTotalDTO{
			Count:  tot.Count,
			Hours:  tot.Hours.String(),
			Amount: tot.Amount.String(),
		}
	}
	return out
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
