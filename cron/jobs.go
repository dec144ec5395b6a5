/*
Package cron runs the background maintenance jobs.

PURPOSE:
  Two recurring jobs keep the calendar and the billing view current without
  manual intervention:

  1. Recurring session top-up: every active patient with a weekly slot gets
     sessions materialized out to the configured horizon, so the agenda
     always shows the upcoming weeks.
  2. Reconciliation refresh: the current month's billing records are
     recomputed nightly so payment flags stay in sync with newly registered
     payments.
*/
package cron

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/consultorio/practice-engine/billing"
	"github.com/consultorio/practice-engine/schedule"
	"github.com/consultorio/practice-engine/store/sqlite"
)

// Jobs holds the dependencies of the background jobs.
type Jobs struct {
	Store        *sqlite.Store
	Reconciler   *billing.Reconciler
	HorizonWeeks int
}

// NewJobs creates the job runner. horizonWeeks <= 0 defaults to 8.
func NewJobs(store *sqlite.Store, rec *billing.Reconciler, horizonWeeks int) *Jobs {
	if horizonWeeks <= 0 {
		horizonWeeks = 8
	}
	return &Jobs{Store: store, Reconciler: rec, HorizonWeeks: horizonWeeks}
}

// Start schedules the jobs and starts the scheduler asynchronously.
func (j *Jobs) Start() *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.Local)

	scheduler.Every(1).Day().At("06:00").Do(func() {
		log.Println("Running recurring session top-up...")
		if err := j.TopUpRecurringSessions(context.Background()); err != nil {
			log.Printf("Error topping up recurring sessions: %v", err)
		}
	})

	scheduler.Every(1).Day().At("03:00").Do(func() {
		log.Println("Running reconciliation refresh...")
		if err := j.RefreshCurrentMonth(context.Background()); err != nil {
			log.Printf("Error refreshing reconciliation: %v", err)
		}
	})

	scheduler.StartAsync()
	log.Println("Background jobs started")

	return scheduler
}

// TopUpRecurringSessions extends every active patient's weekly slot out to
// the horizon, skipping days that already carry a session.
func (j *Jobs) TopUpRecurringSessions(ctx context.Context) error {
	patients, err := j.Store.ListPatients(ctx, true)
	if err != nil {
		return err
	}

	now := time.Now()
	horizon := now.AddDate(0, 0, 7*j.HorizonWeeks)

	for _, p := range patients {
		if !p.HasSlot {
			continue
		}

		taken, err := j.Store.TakenDays(ctx, p.ID, now, horizon)
		if err != nil {
			return err
		}

		sessions, err := schedule.GenerateRecurring(p.ID, p.Slot, now, horizon, taken)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			continue
		}

		if err := j.Store.SaveSessions(ctx, sessions); err != nil {
			return err
		}
		log.Printf("Generated %d sessions for patient %s", len(sessions), p.ID)
	}
	return nil
}

// RefreshCurrentMonth recomputes the reconciliation record of every patient
// for the current calendar month.
func (j *Jobs) RefreshCurrentMonth(ctx context.Context) error {
	patients, err := j.Store.ListPatients(ctx, false)
	if err != nil {
		return err
	}

	now := time.Now()
	year, month := now.Year(), now.Month()

	for _, p := range patients {
		sessions, err := j.Store.ListSessionsByPatient(ctx, p.ID)
		if err != nil {
			return err
		}
		payments, err := j.Store.ListPaymentsReceivedByPatient(ctx, p.ID)
		if err != nil {
			return err
		}

		balance := billing.ComputeMonthBalance(p.ID, sessions, payments, year, month)
		if !balance.Include() {
			continue
		}

		if _, err := j.Reconciler.Reconcile(ctx, balance, payments); err != nil {
			return err
		}
	}
	return nil
}
