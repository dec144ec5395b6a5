package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultorio/practice-engine/billing"
	"github.com/consultorio/practice-engine/schedule"
	"github.com/consultorio/practice-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func storedSession(id, patientID string, date time.Time, status schedule.SessionStatus) schedule.Session {
	pid := patientID
	return schedule.Session{
		ID:        id,
		StartsAt:  date,
		Hours:     decimal.NewFromInt(1),
		Rate:      decimal.NewFromInt(20000),
		Type:      schedule.TypeRegular,
		Status:    status,
		PatientID: &pid,
	}
}

// =============================================================================
// PATIENTS
// =============================================================================

func TestPatient_SaveGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := sqlite.Patient{
		ID:       "p1",
		Name:     "Juana Pérez",
		Guardian: "María Pérez",
		Email:    "maria@example.com",
		Active:   true,
		HasSlot:  true,
		Slot: schedule.RecurringSlot{
			Weekday: time.Wednesday,
			Hour:    14,
			Minute:  30,
			Hours:   decimal.NewFromInt(1),
			Rate:    decimal.NewFromInt(25000),
			Type:    schedule.TypeRegular,
		},
	}
	require.NoError(t, store.SavePatient(ctx, p))

	got, err := store.GetPatient(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Juana Pérez", got.Name)
	assert.True(t, got.HasSlot)
	assert.Equal(t, time.Wednesday, got.Slot.Weekday)
	assert.Equal(t, "25000", got.Slot.Rate.String())
}

func TestPatient_GetMissing_ReturnsNilNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetPatient(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPatient_ActiveFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePatient(ctx, sqlite.Patient{ID: "p1", Name: "Activa", Active: true}))
	require.NoError(t, store.SavePatient(ctx, sqlite.Patient{ID: "p2", Name: "Pausada", Active: false}))

	all, err := store.ListPatients(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := store.ListPatients(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "p1", active[0].ID)
}

func TestPatient_SoftDeleteHidesFromList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePatient(ctx, sqlite.Patient{ID: "p1", Name: "Juana", Active: true}))
	require.NoError(t, store.DeletePatient(ctx, "p1"))

	list, err := store.ListPatients(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Row survives for history
	got, err := store.GetPatient(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Deleted)
}

func TestPatient_DeleteMissing_ReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.DeletePatient(context.Background(), "nope")
	assert.ErrorIs(t, err, billing.ErrPatientNotFound)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSession_SaveListInRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s1 := storedSession("s1", "p1", time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC), schedule.StatusDone)
	s2 := storedSession("s2", "p1", time.Date(2026, time.April, 5, 10, 0, 0, 0, time.UTC), schedule.StatusPending)
	require.NoError(t, store.SaveSessions(ctx, []schedule.Session{s1, s2}))

	got, err := store.ListSessionsInRange(ctx,
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "20000", got[0].Rate.String())
}

func TestSession_InvalidRejected(t *testing.T) {
	store := newTestStore(t)

	// Neither patient nor supervisor
	bad := storedSession("s1", "p1", time.Now(), schedule.StatusDone)
	bad.PatientID = nil

	err := store.SaveSession(context.Background(), bad)
	assert.ErrorIs(t, err, schedule.ErrNoPartySet)
}

func TestSession_UpdateStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := storedSession("s1", "p1", time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC), schedule.StatusPending)
	require.NoError(t, store.SaveSession(ctx, s))

	require.NoError(t, store.UpdateSessionStatus(ctx, "s1", schedule.StatusDone))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, schedule.StatusDone, got.Status)
}

func TestSession_UpdateStatus_UnknownRejected(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateSessionStatus(context.Background(), "s1", "Quizás")
	assert.Error(t, err)
}

func TestSession_UpdateStatusMissing_ReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateSessionStatus(context.Background(), "nope", schedule.StatusDone)
	assert.ErrorIs(t, err, schedule.ErrSessionNotFound)
}

func TestSession_DeleteMissing_ReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteSession(context.Background(), "nope")
	assert.ErrorIs(t, err, schedule.ErrSessionNotFound)
}

func TestSession_SoftDeleteFuturePending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	past := storedSession("s-past", "p1", now.AddDate(0, 0, -7), schedule.StatusDone)
	futurePending := storedSession("s-pend", "p1", now.AddDate(0, 0, 7), schedule.StatusPending)
	futureDone := storedSession("s-done", "p1", now.AddDate(0, 0, 14), schedule.StatusDone)
	require.NoError(t, store.SaveSessions(ctx, []schedule.Session{past, futurePending, futureDone}))

	n, err := store.SoftDeleteFuturePending(ctx, "p1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Only the pending future session disappeared
	got, err := store.ListSessionsByPatient(ctx, "p1")
	require.NoError(t, err)
	ids := []string{}
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"s-past", "s-done"}, ids)
}

func TestSession_TakenDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := storedSession("s1", "p1", time.Date(2026, time.March, 9, 10, 30, 0, 0, time.UTC), schedule.StatusPending)
	require.NoError(t, store.SaveSession(ctx, s))

	taken, err := store.TakenDays(ctx, "p1",
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, taken["2026-03-09"])
	assert.False(t, taken["2026-03-16"])
}

func TestSession_ListForSupervisor_IncludesAccompaniment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sup := "sup-1"
	own := schedule.Session{
		ID:           "s-own",
		StartsAt:     time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC),
		Hours:        decimal.NewFromInt(1),
		Rate:         decimal.NewFromInt(40000),
		Type:         schedule.TypeSupervision,
		Status:       schedule.StatusDone,
		SupervisorID: &sup,
	}
	accompanied := storedSession("s-acc", "p1", time.Date(2026, time.March, 6, 10, 0, 0, 0, time.UTC), schedule.StatusDone)
	accompanied.AccompaniedBy = &sup
	unrelated := storedSession("s-other", "p2", time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC), schedule.StatusDone)
	require.NoError(t, store.SaveSessions(ctx, []schedule.Session{own, accompanied, unrelated}))

	got, err := store.ListSessionsForSupervisor(ctx, sup)
	require.NoError(t, err)
	ids := []string{}
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"s-own", "s-acc"}, ids)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPaymentReceived_RoundTripAndSoftDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := billing.PaymentReceived{
		ID:        "pay1",
		PatientID: "p1",
		Amount:    decimal.RequireFromString("25000.50"),
		Date:      time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC),
		Method:    billing.MethodTransfer,
		Invoiced:  true,
	}
	require.NoError(t, store.SavePaymentReceived(ctx, p))

	got, err := store.ListPaymentsReceivedByPatient(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "25000.5", got[0].Amount.String())
	assert.True(t, got[0].Invoiced)

	require.NoError(t, store.DeletePaymentReceived(ctx, "pay1"))
	got, err = store.ListPaymentsReceivedByPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPaymentMade_ConceptFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sup := "sup-1"
	rent := billing.PaymentMade{
		ID: "pm1", Concept: billing.ConceptRent,
		Amount: decimal.NewFromInt(150000),
		Date:   time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	supPay := billing.PaymentMade{
		ID: "pm2", Concept: billing.ConceptSupervision, SupervisorID: &sup,
		Amount: decimal.NewFromInt(40000),
		Date:   time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SavePaymentMade(ctx, rent))
	require.NoError(t, store.SavePaymentMade(ctx, supPay))

	all, err := store.ListPaymentsMade(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyRent, err := store.ListPaymentsMade(ctx, billing.ConceptRent)
	require.NoError(t, err)
	require.Len(t, onlyRent, 1)
	assert.Equal(t, "pm1", onlyRent[0].ID)

	onlySup, err := store.ListPaymentsMade(ctx, billing.ConceptSupervision)
	require.NoError(t, err)
	require.Len(t, onlySup, 1)
	require.NotNil(t, onlySup[0].SupervisorID)
	assert.Equal(t, "sup-1", *onlySup[0].SupervisorID)
}

func TestPaymentMade_ListInRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inside := billing.PaymentMade{
		ID: "pm1", Concept: billing.ConceptRent,
		Amount: decimal.NewFromInt(150000),
		Date:   time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
	}
	outside := billing.PaymentMade{
		ID: "pm2", Concept: billing.ConceptRent,
		Amount: decimal.NewFromInt(150000),
		Date:   time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SavePaymentMade(ctx, inside))
	require.NoError(t, store.SavePaymentMade(ctx, outside))

	got, err := store.ListPaymentsMadeInRange(ctx,
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pm1", got[0].ID)
}

func TestPayment_DeleteMissing_ReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.DeletePaymentReceived(ctx, "nope")
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)

	err = store.DeletePaymentMade(ctx, "nope")
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
}

// =============================================================================
// RENT CONFIG
// =============================================================================

func TestRentConfig_SingletonUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.GetRentConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, missing)

	cfg := billing.RentConfig{
		MonthlyPrice: decimal.NewFromInt(150000),
		Payee:        "Consultorio Centro",
		StartDate:    time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveRentConfig(ctx, cfg))

	cfg.MonthlyPrice = decimal.NewFromInt(180000)
	require.NoError(t, store.SaveRentConfig(ctx, cfg))

	got, err := store.GetRentConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "180000", got.MonthlyPrice.String())
}

// =============================================================================
// RECONCILIATION RECORDS
// =============================================================================

func TestReconciliation_UpsertKeepsTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	paidAt := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	rec := billing.ReconciliationRecord{
		PatientID:     "p1",
		Year:          2026,
		Month:         time.March,
		TotalInvoiced: decimal.NewFromInt(20000),
		FullyPaid:     true,
		FullyPaidAt:   &paidAt,
	}
	require.NoError(t, store.SaveReconciliation(ctx, rec))

	// Flag cleared, timestamp omitted: the stored timestamp must survive
	rec.FullyPaid = false
	rec.FullyPaidAt = nil
	require.NoError(t, store.SaveReconciliation(ctx, rec))

	got, err := store.GetReconciliation(ctx, "p1", 2026, time.March)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.FullyPaid)
	require.NotNil(t, got.FullyPaidAt)
	assert.True(t, got.FullyPaidAt.Equal(paidAt))
}

func TestReconciliation_GetMissing_ReturnsNilNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetReconciliation(context.Background(), "p1", 2026, time.March)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReconciliation_ListByMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, pid := range []string{"p1", "p2"} {
		require.NoError(t, store.SaveReconciliation(ctx, billing.ReconciliationRecord{
			PatientID:     pid,
			Year:          2026,
			Month:         time.March,
			TotalInvoiced: decimal.NewFromInt(10000),
		}))
	}
	require.NoError(t, store.SaveReconciliation(ctx, billing.ReconciliationRecord{
		PatientID:     "p1",
		Year:          2026,
		Month:         time.April,
		TotalInvoiced: decimal.NewFromInt(5000),
	}))

	records, err := store.ListReconciliations(ctx, 2026, time.March)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Contains(t, records, "p1")
	assert.Contains(t, records, "p2")
}

// =============================================================================
// RESET
// =============================================================================

func TestReset_ClearsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePatient(ctx, sqlite.Patient{ID: "p1", Name: "Juana", Active: true}))
	require.NoError(t, store.SaveSession(ctx, storedSession("s1", "p1",
		time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC), schedule.StatusDone)))

	require.NoError(t, store.Reset(ctx))

	patients, err := store.ListPatients(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, patients)

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
