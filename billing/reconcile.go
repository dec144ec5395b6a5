/*
reconcile.go - Reconciliation status detection

PURPOSE:
  Maintains the per-patient per-month seguimiento_facturacion record and its
  three flags:

    enviado_tutor         manual toggle, never touched here
    facturado             auto: a flagged payment fuzzy-matches the total
    completamente_pagado  auto: total_final <= 0

  Both auto flags are idempotent projections of the underlying financial
  state, recomputed on every view load. The stored record is created lazily
  on first computation and updated only when a computed value differs from
  the stored one.

FUZZY MATCH:
  A payment of amount X matches target T when |X - T| / T <= 0.05. The
  payment must be non-deleted, dated within the month's calendar boundaries,
  and user-flagged as invoiced. T is abs(total_final); a zero target never
  fuzzy-matches.

ONE-WAY TIMESTAMPS:
  fecha_facturado / fecha_completamente_pagado are set on a false-to-true
  transition and refreshed on a later false-to-true transition, but a
  true-to-false recomputation clears only the flag, never the timestamp.
  This mirrors the observed production behavior; see DESIGN.md.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECONCILIATION RECORD (seguimiento_facturacion)
// =============================================================================

// ReconciliationRecord tracks invoicing state for one patient and month.
type ReconciliationRecord struct {
	PatientID string
	Year      int
	Month     time.Month

	// TotalInvoiced is seeded from the month total on creation and kept in
	// step with the latest computation.
	TotalInvoiced decimal.Decimal

	SentToGuardian bool
	SentAt         *time.Time

	Invoiced   bool
	InvoicedAt *time.Time

	FullyPaid   bool
	FullyPaidAt *time.Time
}

// ReconciliationStore persists reconciliation records. store/sqlite
// implements it; billing/store provides an in-memory version for tests.
type ReconciliationStore interface {
	// GetReconciliation returns the record, or (nil, nil) when absent.
	GetReconciliation(ctx context.Context, patientID string, year int, month time.Month) (*ReconciliationRecord, error)

	// SaveReconciliation upserts the record keyed by patient+year+month.
	SaveReconciliation(ctx context.Context, rec ReconciliationRecord) error
}

// =============================================================================
// FUZZY INVOICE MATCH
// =============================================================================

// InvoiceMatchTolerance is the relative difference allowed between a flagged
// payment and the computed total.
var InvoiceMatchTolerance = decimal.NewFromFloat(0.05)

// MatchesInvoiceAmount reports whether a payment amount is within tolerance
// of the target. The target is compared by absolute relative difference; a
// zero target never matches.
func MatchesInvoiceAmount(payment, target decimal.Decimal) bool {
	if target.IsZero() {
		return false
	}
	diff := payment.Sub(target).Abs()
	return diff.Div(target.Abs()).LessThanOrEqual(InvoiceMatchTolerance)
}

// =============================================================================
// DETECTION
// =============================================================================

// Detection is the computed value of the two automatic flags.
type Detection struct {
	Invoiced         bool
	MatchedPaymentID string
	FullyPaid        bool
}

// Detect computes the automatic flags for a month balance. payments must be
// the patient's payment history; only flagged, non-deleted payments inside
// the month's calendar boundaries are considered for the invoice match.
func Detect(balance MonthBalance, payments []PaymentReceived) Detection {
	det := Detection{FullyPaid: balance.FullyPaid()}

	target := balance.TotalFinal.Abs()
	period := CalendarMonth(balance.Year, balance.Month)
	for _, p := range payments {
		if p.Deleted || !p.Invoiced || !period.Contains(p.Date) {
			continue
		}
		if MatchesInvoiceAmount(p.Amount, target) {
			det.Invoiced = true
			det.MatchedPaymentID = p.ID
			break
		}
	}
	return det
}

// Apply folds a detection into a record. Returns true when the record
// changed and needs saving. Timestamps are one-way: set or refreshed on
// false-to-true, untouched on true-to-false.
func Apply(rec *ReconciliationRecord, det Detection, total decimal.Decimal, now time.Time) bool {
	changed := false

	if !rec.TotalInvoiced.Equal(total) {
		rec.TotalInvoiced = total
		changed = true
	}
	if rec.Invoiced != det.Invoiced {
		rec.Invoiced = det.Invoiced
		if det.Invoiced {
			t := now
			rec.InvoicedAt = &t
		}
		changed = true
	}
	if rec.FullyPaid != det.FullyPaid {
		rec.FullyPaid = det.FullyPaid
		if det.FullyPaid {
			t := now
			rec.FullyPaidAt = &t
		}
		changed = true
	}
	return changed
}

// =============================================================================
// RECONCILER - Load-or-create, detect, persist when changed
// =============================================================================

// Reconciler runs detection against stored records.
type Reconciler struct {
	Store ReconciliationStore

	// Now is overridable for tests; defaults to time.Now().UTC.
	Now func() time.Time
}

func NewReconciler(store ReconciliationStore) *Reconciler {
	return &Reconciler{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// Reconcile loads (or lazily creates) the record for the balance's month,
// applies detection, and saves only when something changed. Returns the
// up-to-date record.
func (r *Reconciler) Reconcile(ctx context.Context, balance MonthBalance, payments []PaymentReceived) (*ReconciliationRecord, error) {
	rec, err := r.Store.GetReconciliation(ctx, balance.PatientID, balance.Year, balance.Month)
	if err != nil {
		return nil, err
	}
	return r.ReconcileExisting(ctx, rec, balance, payments)
}

// ReconcileExisting is Reconcile with the stored record already in hand.
// Callers that batch-load a whole month's records avoid one query per
// patient. rec may be nil when no record exists yet.
func (r *Reconciler) ReconcileExisting(ctx context.Context, rec *ReconciliationRecord, balance MonthBalance, payments []PaymentReceived) (*ReconciliationRecord, error) {
	created := false
	if rec == nil {
		rec = &ReconciliationRecord{
			PatientID:     balance.PatientID,
			Year:          balance.Year,
			Month:         balance.Month,
			TotalInvoiced: balance.MonthTotal,
		}
		created = true
	}

	det := Detect(balance, payments)
	changed := Apply(rec, det, balance.MonthTotal, r.Now())

	if created || changed {
		if err := r.Store.SaveReconciliation(ctx, *rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// SetSentToGuardian is the manual enviado_tutor toggle. The timestamp
// follows the same one-way rule as the automatic flags.
func (r *Reconciler) SetSentToGuardian(ctx context.Context, patientID string, year int, month time.Month, sent bool) (*ReconciliationRecord, error) {
	rec, err := r.Store.GetReconciliation(ctx, patientID, year, month)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &ReconciliationRecord{PatientID: patientID, Year: year, Month: month}
	}

	if rec.SentToGuardian != sent {
		rec.SentToGuardian = sent
		if sent {
			t := r.Now()
			rec.SentAt = &t
		}
		if err := r.Store.SaveReconciliation(ctx, *rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
