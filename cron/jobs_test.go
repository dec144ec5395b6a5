package cron

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

func newTestJobs(t *testing.T, horizonWeeks int) *Jobs {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewJobs(store, billing.NewReconciler(store), horizonWeeks)
}

func weeklyPatient(id string, weekday time.Weekday) sqlite.Patient {
	return sqlite.Patient{
		ID:      id,
		Name:    "Paciente " + id,
		Active:  true,
		HasSlot: true,
		Slot: schedule.RecurringSlot{
			Weekday: weekday,
			Hour:    10,
			Hours:   decimal.NewFromInt(1),
			Rate:    decimal.NewFromInt(25000),
			Type:    schedule.TypeRegular,
		},
	}
}

func TestTopUp_MaterializesWeeklySessions(t *testing.T) {
	// GIVEN: An active patient with a weekly slot and an empty agenda
	jobs := newTestJobs(t, 4)
	ctx := context.Background()

	require.NoError(t, jobs.Store.SavePatient(ctx, weeklyPatient("p1", time.Now().Weekday())))

	// WHEN: Running the top-up
	require.NoError(t, jobs.TopUpRecurringSessions(ctx))

	// THEN: Sessions exist out to the horizon, all pending
	sessions, err := jobs.Store.ListSessionsByPatient(ctx, "p1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(sessions), 4)
	assert.LessOrEqual(t, len(sessions), 5)
	for _, s := range sessions {
		assert.Equal(t, schedule.StatusPending, s.Status)
	}
}

func TestTopUp_IsIdempotent(t *testing.T) {
	// GIVEN: A patient already topped up
	jobs := newTestJobs(t, 4)
	ctx := context.Background()

	require.NoError(t, jobs.Store.SavePatient(ctx, weeklyPatient("p1", time.Now().Weekday())))
	require.NoError(t, jobs.TopUpRecurringSessions(ctx))

	before, err := jobs.Store.ListSessionsByPatient(ctx, "p1")
	require.NoError(t, err)

	// WHEN: Running the top-up again
	require.NoError(t, jobs.TopUpRecurringSessions(ctx))

	// THEN: No duplicates appear on already taken days
	after, err := jobs.Store.ListSessionsByPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestTopUp_SkipsInactiveAndSlotless(t *testing.T) {
	// GIVEN: An inactive patient with a slot and an active one without
	jobs := newTestJobs(t, 4)
	ctx := context.Background()

	paused := weeklyPatient("p-paused", time.Monday)
	paused.Active = false
	require.NoError(t, jobs.Store.SavePatient(ctx, paused))
	require.NoError(t, jobs.Store.SavePatient(ctx, sqlite.Patient{ID: "p-plain", Name: "Sin Horario", Active: true}))

	// WHEN: Running the top-up
	require.NoError(t, jobs.TopUpRecurringSessions(ctx))

	// THEN: Neither gets sessions
	for _, id := range []string{"p-paused", "p-plain"} {
		sessions, err := jobs.Store.ListSessionsByPatient(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, sessions, "patient %s", id)
	}
}

func TestRefreshCurrentMonth_WritesRecords(t *testing.T) {
	// GIVEN: A patient with a completed session this month
	jobs := newTestJobs(t, 4)
	ctx := context.Background()

	require.NoError(t, jobs.Store.SavePatient(ctx, sqlite.Patient{ID: "p1", Name: "Juana", Active: true}))

	now := time.Now()
	pid := "p1"
	done := schedule.Session{
		ID:        "s1",
		StartsAt:  time.Date(now.Year(), now.Month(), 1, 10, 0, 0, 0, time.UTC),
		Hours:     decimal.NewFromInt(1),
		Rate:      decimal.NewFromInt(25000),
		Type:      schedule.TypeRegular,
		Status:    schedule.StatusDone,
		PatientID: &pid,
	}
	require.NoError(t, jobs.Store.SaveSession(ctx, done))

	// WHEN: Running the refresh
	require.NoError(t, jobs.RefreshCurrentMonth(ctx))

	// THEN: A reconciliation record exists with the month total
	rec, err := jobs.Store.GetReconciliation(ctx, "p1", now.Year(), now.Month())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "25000", rec.TotalInvoiced.String())
	assert.False(t, rec.FullyPaid)
}

func TestRefreshCurrentMonth_SkipsIdlePatients(t *testing.T) {
	// GIVEN: A patient with no activity and no balance
	jobs := newTestJobs(t, 4)
	ctx := context.Background()

	require.NoError(t, jobs.Store.SavePatient(ctx, sqlite.Patient{ID: "p-idle", Name: "Sin Actividad", Active: true}))

	// WHEN: Running the refresh
	require.NoError(t, jobs.RefreshCurrentMonth(ctx))

	// THEN: No record is created
	rec, err := jobs.Store.GetReconciliation(ctx, "p-idle", time.Now().Year(), time.Now().Month())
	require.NoError(t, err)
	assert.Nil(t, rec)
}
