/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Monthly billing endpoint (inclusion, totals, sent flag)
- Patient deactivation and reactivation cascades
- Supervision and rent endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/consultorio/practice-engine/billing"
	"github.com/consultorio/practice-engine/schedule"
	"github.com/consultorio/practice-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetMonthlyBilling_CarriedBalanceScenario(t *testing.T) {
	// GIVEN: The carried-balance scenario loaded
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	if err := handler.loadCarriedBalanceScenario(ctx); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	year, month := workingMonth(handler)

	// WHEN: Fetching the monthly billing view
	rec := doRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/billing/monthly?year=%d&month=%d", year, int(month)), nil)

	// THEN: Both patients appear with the expected positions
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp MonthlyBillingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(resp.Rows))
	}

	rows := make(map[string]MonthlyBillingRowDTO)
	for _, r := range resp.Rows {
		rows[r.PatientID] = r
	}

	debtor, ok := rows["pac-debt"]
	if !ok {
		t.Fatal("Debtor row missing")
	}
	if debtor.PriorBalance != "120000" {
		t.Errorf("Expected debtor prior balance 120000, got %s", debtor.PriorBalance)
	}
	if debtor.TotalFinal != "180000" {
		t.Errorf("Expected debtor total final 180000, got %s", debtor.TotalFinal)
	}
	if debtor.FullyPaid {
		t.Error("Debtor should not be marked fully paid")
	}

	credit, ok := rows["pac-cred"]
	if !ok {
		t.Fatal("Credit row missing")
	}
	if credit.TotalFinal != "-60000" {
		t.Errorf("Expected credit total final -60000, got %s", credit.TotalFinal)
	}
	if !credit.IsCredit {
		t.Error("Credit row should be flagged as credit")
	}
	if !credit.FullyPaid {
		t.Error("A credit balance counts as fully paid")
	}

	if resp.Total != "120000" {
		t.Errorf("Expected grand total 120000, got %s", resp.Total)
	}
}

func TestGetMonthlyBilling_ExcludesIdlePatients(t *testing.T) {
	// GIVEN: A patient with no sessions, no payments, no carried balance
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	if err := handler.Store.SavePatient(ctx, sqlite.Patient{ID: "p-idle", Name: "Sin Actividad", Active: true}); err != nil {
		t.Fatalf("Failed to save patient: %v", err)
	}

	// WHEN: Fetching the monthly billing view
	rec := doRequest(t, router, http.MethodGet, "/api/billing/monthly?year=2026&month=3", nil)

	// THEN: The patient does not appear
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp MonthlyBillingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(resp.Rows))
	}
}

func TestGetMonthlyBilling_InvalidMonthRejected(t *testing.T) {
	handler := setupTestHandler(t)
	router := NewRouter(handler)

	rec := doRequest(t, router, http.MethodGet, "/api/billing/monthly?year=2026&month=13", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for month=13, got %d", rec.Code)
	}
}

func TestSetSentToGuardian_Endpoint(t *testing.T) {
	// GIVEN: A patient with activity in the working month
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	if err := handler.loadCarriedBalanceScenario(ctx); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	year, month := workingMonth(handler)

	// WHEN: Marking the summary as sent
	path := fmt.Sprintf("/api/billing/monthly/pac-debt/sent?year=%d&month=%d", year, int(month))
	rec := doRequest(t, router, http.MethodPost, path, SetSentRequest{Sent: true})

	// THEN: The flag and timestamp are set
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["enviado_tutor"] != true {
		t.Error("Expected enviado_tutor to be true")
	}
	if resp["fecha_enviado_tutor"] == nil {
		t.Error("Expected fecha_enviado_tutor to be set")
	}

	// WHEN: Clearing the flag again
	rec = doRequest(t, router, http.MethodPost, path, SetSentRequest{Sent: false})

	// THEN: The flag clears but the timestamp survives
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["enviado_tutor"] != false {
		t.Error("Expected enviado_tutor to be false after clearing")
	}
	if resp["fecha_enviado_tutor"] == nil {
		t.Error("Timestamp must survive clearing the flag")
	}
}

func TestGetMonthlyBilling_ReflectsStoredSentFlag(t *testing.T) {
	// GIVEN: A patient whose summary was marked as sent
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	if err := handler.loadCarriedBalanceScenario(ctx); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	year, month := workingMonth(handler)

	path := fmt.Sprintf("/api/billing/monthly/pac-debt/sent?year=%d&month=%d", year, int(month))
	if rec := doRequest(t, router, http.MethodPost, path, SetSentRequest{Sent: true}); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 setting sent flag, got %d", rec.Code)
	}

	// WHEN: Fetching the monthly view
	rec := doRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/billing/monthly?year=%d&month=%d", year, int(month)), nil)

	// THEN: The row carries the stored flag
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp MonthlyBillingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	for _, row := range resp.Rows {
		if row.PatientID == "pac-debt" {
			if !row.SentToGuardian {
				t.Error("Expected enviado_tutor to survive into the monthly view")
			}
			return
		}
	}
	t.Fatal("Debtor row missing from monthly view")
}

func TestDeactivateReactivatePatient_Cascade(t *testing.T) {
	// GIVEN: An active patient with a weekly slot and future pending sessions
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	now := time.Now().UTC()
	p := sqlite.Patient{
		ID:      "p-slot",
		Name:    "Con Horario",
		Active:  true,
		HasSlot: true,
		Slot: schedule.RecurringSlot{
			Weekday: now.Weekday(),
			Hour:    10,
			Hours:   decimal.NewFromInt(1),
			Rate:    decimal.NewFromInt(25000),
			Type:    schedule.TypeRegular,
		},
	}
	if err := handler.Store.SavePatient(ctx, p); err != nil {
		t.Fatalf("Failed to save patient: %v", err)
	}

	pending := schedule.Session{
		ID:        "ses-future",
		StartsAt:  now.AddDate(0, 0, 14),
		Hours:     decimal.NewFromInt(1),
		Rate:      decimal.NewFromInt(25000),
		Type:      schedule.TypeRegular,
		Status:    schedule.StatusPending,
		PatientID: &p.ID,
	}
	if err := handler.Store.SaveSession(ctx, pending); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	// WHEN: Deactivating
	rec := doRequest(t, router, http.MethodPost, "/api/patients/p-slot/deactivate", nil)

	// THEN: The future pending session is dropped and the patient is inactive
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var deactivateResp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &deactivateResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if deactivateResp["sessions_removed"].(float64) != 1 {
		t.Errorf("Expected 1 session removed, got %v", deactivateResp["sessions_removed"])
	}

	got, err := handler.Store.GetPatient(ctx, "p-slot")
	if err != nil {
		t.Fatalf("Failed to get patient: %v", err)
	}
	if got.Active {
		t.Error("Patient should be inactive after deactivation")
	}

	// WHEN: Reactivating
	rec = doRequest(t, router, http.MethodPost, "/api/patients/p-slot/reactivate", nil)

	// THEN: Sessions regenerate over the coming weeks
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reactivateResp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &reactivateResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if reactivateResp["sessions_created"].(float64) < 7 {
		t.Errorf("Expected at least 7 regenerated sessions, got %v", reactivateResp["sessions_created"])
	}

	got, err = handler.Store.GetPatient(ctx, "p-slot")
	if err != nil {
		t.Fatalf("Failed to get patient: %v", err)
	}
	if !got.Active {
		t.Error("Patient should be active after reactivation")
	}
}

func TestGetMonthlySupervision_FullPractice(t *testing.T) {
	// GIVEN: The full-practice scenario with one supervisor
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	if err := handler.loadFullPracticeScenario(ctx); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	year, month := workingMonth(handler)

	// WHEN: Fetching the supervision view
	rec := doRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/supervision/monthly?year=%d&month=%d", year, int(month)), nil)

	// THEN: The supervisor's line shows own work plus half the accompanied session
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rows []SupervisionRowDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 supervision row, got %d", len(rows))
	}
	if rows[0].MonthTotal != "40000" {
		t.Errorf("Expected own month total 40000, got %s", rows[0].MonthTotal)
	}
	if rows[0].Accompaniment != "15000" {
		t.Errorf("Expected accompaniment 15000, got %s", rows[0].Accompaniment)
	}
	if rows[0].TotalFinal != "55000" {
		t.Errorf("Expected total final 55000, got %s", rows[0].TotalFinal)
	}
}

func TestRentEndpoints(t *testing.T) {
	// GIVEN: An empty store
	handler := setupTestHandler(t)
	router := NewRouter(handler)

	// WHEN: Fetching rent without configuration
	rec := doRequest(t, router, http.MethodGet, "/api/rent/", nil)

	// THEN: Zeros, no config
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var summary RentSummaryDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if summary.Config != nil {
		t.Error("Expected no rent config")
	}
	if summary.Balance != "0" {
		t.Errorf("Expected zero balance, got %s", summary.Balance)
	}

	// WHEN: Configuring rent anchored two calendar months back
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0)
	rec = doRequest(t, router, http.MethodPut, "/api/rent/", RentConfigDTO{
		MonthlyPrice: "150000",
		Payee:        "Consultorio Centro",
		StartDate:    start.Format("2006-01-02"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// THEN: The rollup owes start month through current month inclusive
	rec = doRequest(t, router, http.MethodGet, "/api/rent/", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if summary.MonthsElapsed != 3 {
		t.Errorf("Expected 3 months elapsed, got %d", summary.MonthsElapsed)
	}
	if summary.TotalOwed != "450000" {
		t.Errorf("Expected total owed 450000, got %s", summary.TotalOwed)
	}

	// WHEN: Submitting a non-positive price
	rec = doRequest(t, router, http.MethodPut, "/api/rent/", RentConfigDTO{
		MonthlyPrice: "0",
		StartDate:    start.Format("2006-01-02"),
	})

	// THEN: Rejected
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero price, got %d", rec.Code)
	}
}

func TestListPaymentsMade_DateRangeFilter(t *testing.T) {
	// GIVEN: Two outgoing payments in different months
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	march := billing.PaymentMade{
		ID: "pm-mar", Concept: billing.ConceptRent,
		Amount: decimal.NewFromInt(150000),
		Date:   time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
	}
	april := billing.PaymentMade{
		ID: "pm-apr", Concept: billing.ConceptRent,
		Amount: decimal.NewFromInt(150000),
		Date:   time.Date(2026, time.April, 5, 0, 0, 0, 0, time.UTC),
	}
	if err := handler.Store.SavePaymentMade(ctx, march); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}
	if err := handler.Store.SavePaymentMade(ctx, april); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}

	// WHEN: Listing with a from/to window covering March only
	rec := doRequest(t, router, http.MethodGet,
		"/api/payments/made/?from=2026-03-01&to=2026-04-01", nil)

	// THEN: Only the March payment is returned
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var dtos []PaymentMadeDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dtos); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(dtos) != 1 {
		t.Fatalf("Expected 1 payment, got %d", len(dtos))
	}
	if dtos[0].ID != "pm-mar" {
		t.Errorf("Expected pm-mar, got %s", dtos[0].ID)
	}

	// WHEN: The from date is malformed
	rec = doRequest(t, router, http.MethodGet,
		"/api/payments/made/?from=03-01-2026&to=2026-04-01", nil)

	// THEN: Rejected
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad date, got %d", rec.Code)
	}
}

func TestDeleteEndpoints_MissingResourceIs404(t *testing.T) {
	// GIVEN: An empty store
	handler := setupTestHandler(t)
	router := NewRouter(handler)

	paths := []string{
		"/api/sessions/nope",
		"/api/payments/received/nope",
		"/api/payments/made/nope",
	}
	for _, path := range paths {
		// WHEN: Deleting a resource that doesn't exist
		rec := doRequest(t, router, http.MethodDelete, path, nil)

		// THEN: Not found, not a server error
		if rec.Code != http.StatusNotFound {
			t.Errorf("DELETE %s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestUpdateSessionStatus_MissingSessionIs404(t *testing.T) {
	// GIVEN: An empty store
	handler := setupTestHandler(t)
	router := NewRouter(handler)

	// WHEN: Categorizing a session that doesn't exist
	rec := doRequest(t, router, http.MethodPut, "/api/sessions/nope/status",
		UpdateStatusRequest{Status: string(schedule.StatusDone)})

	// THEN: Not found
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestStoreFailure_MapsTo500(t *testing.T) {
	// GIVEN: A handler whose store connection is gone
	handler := setupTestHandler(t)
	router := NewRouter(handler)
	handler.Store.Close()

	// WHEN: Hitting endpoints that touch the store
	for _, req := range []struct {
		method, path string
		body         any
	}{
		{http.MethodDelete, "/api/sessions/s1", nil},
		{http.MethodDelete, "/api/payments/made/pm1", nil},
		{http.MethodPut, "/api/sessions/s1/status", UpdateStatusRequest{Status: string(schedule.StatusDone)}},
	} {
		rec := doRequest(t, router, req.method, req.path, req.body)

		// THEN: The failure surfaces as an internal error, not a 404
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: expected 500, got %d", req.method, req.path, rec.Code)
		}
	}
}
