/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates patients, supervisors,
	sessions and payments that demonstrate specific billing behaviors.

AVAILABLE SCENARIOS:

	fresh-month:     Patients with sessions in the working month, no history
	carried-balance: A patient carrying debt and one carrying credit
	full-practice:   Patients, supervisors, rent and accompaniment together

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create patients / supervisors
 3. Register sessions with statuses
 4. Register payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "carried-balance"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context and helpers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/consultorio/practice-engine/billing"
	"github.com/consultorio/practice-engine/schedule"
	"github.com/consultorio/practice-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-month",
		Name:        "Fresh Month",
		Description: "Three patients with sessions in the working month, no carried balances",
	},
	{
		ID:          "carried-balance",
		Name:        "Carried Balances",
		Description: "One patient behind on payments, one prepaid in credit",
	},
	{
		ID:          "full-practice",
		Name:        "Full Practice",
		Description: "Patients, supervisors with accompaniment, rent and mixed payments",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-month":
		err = h.loadFreshMonthScenario(ctx)
	case "carried-balance":
		err = h.loadCarriedBalanceScenario(ctx)
	case "full-practice":
		err = h.loadFullPracticeScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshMonthScenario(ctx context.Context) error {
	year, month := h.Policy.DefaultMonth(time.Now())
	monthStart := billing.StartOfMonth(year, month)

	patients := []sqlite.Patient{
		{ID: "pac-001", Name: "Juana Pérez", Guardian: "María Pérez", Active: true},
		{ID: "pac-002", Name: "Lucas Gómez", Guardian: "Carla Gómez", Active: true},
		{ID: "pac-003", Name: "Sofía Díaz", Guardian: "Laura Díaz", Active: true},
	}
	for _, p := range patients {
		if err := h.Store.SavePatient(ctx, p); err != nil {
			return err
		}
	}

	rate := decimal.NewFromInt(25000)
	var sessions []schedule.Session
	for i, p := range patients {
		for week := 0; week < 3; week++ {
			day := monthStart.AddDate(0, 0, week*7+i+1)
			sessions = append(sessions, patientSession(
				fmt.Sprintf("ses-%s-%d", p.ID, week),
				p.ID, day, rate, schedule.StatusDone))
		}
	}
	// One no-notice cancellation, charged
	sessions = append(sessions, patientSession(
		"ses-cancel-01", "pac-002", monthStart.AddDate(0, 0, 22), rate,
		schedule.StatusCancelledWithoutNotice))
	// One holiday cancellation, not charged
	sessions = append(sessions, patientSession(
		"ses-cancel-02", "pac-003", monthStart.AddDate(0, 0, 23), rate,
		schedule.StatusCancelledHoliday))

	return h.Store.SaveSessions(ctx, sessions)
}

func (h *Handler) loadCarriedBalanceScenario(ctx context.Context) error {
	year, month := h.Policy.DefaultMonth(time.Now())
	monthStart := billing.StartOfMonth(year, month)
	prevStart := monthStart.AddDate(0, -1, 0)

	debtor := sqlite.Patient{ID: "pac-debt", Name: "Mateo Ruiz", Guardian: "Ana Ruiz", Active: true}
	credit := sqlite.Patient{ID: "pac-cred", Name: "Emma Castro", Guardian: "Paula Castro", Active: true}
	for _, p := range []sqlite.Patient{debtor, credit} {
		if err := h.Store.SavePatient(ctx, p); err != nil {
			return err
		}
	}

	rate := decimal.NewFromInt(30000)
	var sessions []schedule.Session
	// Debtor: four sessions last month, unpaid; two this month
	for i := 0; i < 4; i++ {
		sessions = append(sessions, patientSession(
			fmt.Sprintf("ses-debt-prev-%d", i), debtor.ID,
			prevStart.AddDate(0, 0, i*7+2), rate, schedule.StatusDone))
	}
	for i := 0; i < 2; i++ {
		sessions = append(sessions, patientSession(
			fmt.Sprintf("ses-debt-cur-%d", i), debtor.ID,
			monthStart.AddDate(0, 0, i*7+2), rate, schedule.StatusDone))
	}
	// Credit: one session last month, overpaid
	sessions = append(sessions, patientSession(
		"ses-cred-prev-0", credit.ID, prevStart.AddDate(0, 0, 3), rate, schedule.StatusDone))
	if err := h.Store.SaveSessions(ctx, sessions); err != nil {
		return err
	}

	// Credit patient prepaid three sessions' worth last month
	payment := billing.PaymentReceived{
		ID:        "pago-cred-01",
		PatientID: credit.ID,
		Amount:    rate.Mul(decimal.NewFromInt(3)),
		Date:      prevStart.AddDate(0, 0, 5),
		Method:    billing.MethodTransfer,
	}
	return h.Store.SavePaymentReceived(ctx, payment)
}

func (h *Handler) loadFullPracticeScenario(ctx context.Context) error {
	if err := h.loadCarriedBalanceScenario(ctx); err != nil {
		return err
	}

	year, month := h.Policy.DefaultMonth(time.Now())
	monthStart := billing.StartOfMonth(year, month)

	sup := sqlite.Supervisor{ID: "sup-001", Name: "Dra. Valeria Sosa", Email: "valeria@example.com"}
	if err := h.Store.SaveSupervisor(ctx, sup); err != nil {
		return err
	}

	supRate := decimal.NewFromInt(40000)
	supID := sup.ID
	sessions := []schedule.Session{
		{
			ID:           "ses-sup-01",
			StartsAt:     monthStart.AddDate(0, 0, 4),
			Hours:        decimal.NewFromInt(1),
			Rate:         supRate,
			Type:         schedule.TypeSupervision,
			Status:       schedule.StatusDone,
			SupervisorID: &supID,
		},
	}
	// Accompanied patient session: supervisor earns half
	accompanied := patientSession("ses-acc-01", "pac-debt",
		monthStart.AddDate(0, 0, 10), decimal.NewFromInt(30000), schedule.StatusDone)
	accompanied.AccompaniedBy = &supID
	sessions = append(sessions, accompanied)

	if err := h.Store.SaveSessions(ctx, sessions); err != nil {
		return err
	}

	rent := billing.RentConfig{
		MonthlyPrice: decimal.NewFromInt(150000),
		Payee:        "Consultorio Centro",
		StartDate:    monthStart.AddDate(0, -3, 0),
	}
	if err := h.Store.SaveRentConfig(ctx, rent); err != nil {
		return err
	}

	rentPayment := billing.PaymentMade{
		ID:      "pago-alq-01",
		Concept: billing.ConceptRent,
		Amount:  decimal.NewFromInt(300000),
		Date:    monthStart.AddDate(0, -1, 2),
		Method:  billing.MethodTransfer,
	}
	return h.Store.SavePaymentMade(ctx, rentPayment)
}

func patientSession(id, patientID string, day time.Time, rate decimal.Decimal, status schedule.SessionStatus) schedule.Session {
	pid := patientID
	return schedule.Session{
		ID:        id,
		StartsAt:  time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.UTC),
		Hours:     decimal.NewFromInt(1),
		Rate:      rate,
		Type:      schedule.TypeRegular,
		Status:    status,
		PatientID: &pid,
	}
}
