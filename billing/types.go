/*
Package billing provides the monthly billing reconciliation engine.

PURPOSE:
  Turns the practice's dated session and payment records into per-person,
  per-month balances with carry-forward and status flags. The same engine
  feeds the invoicing view (calendar months, per patient), the dashboard
  profit view (16th-to-15th periods) and the supervisor payout rollup.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount with a currency (ARS by default)
  - PaymentReceived / PaymentMade: the two money flows of the practice
  - PaymentConcept: what an outgoing payment was for

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, rounding only at display time
  2. Purity: classifier, aggregator and accumulator are pure functions of
     their record inputs; only the reconciler touches storage
  3. Soft deletion: deleted payments are invisible to every total

SEE ALSO:
  - period.go: Month periods and the default-month policy
  - classify.go / aggregate.go: Billable filtering and per-type totals
  - balance.go: Carry-forward accumulator
  - reconcile.go: Status detection and the seguimiento record
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount with currency
// =============================================================================

type Currency string

const (
	ARS Currency = "ARS"
	USD Currency = "USD"
)

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

func Pesos(value decimal.Decimal) Money {
	return Money{Value: value, Currency: ARS}
}

func (m Money) Add(o Money) Money { return Money{Value: m.Value.Add(o.Value), Currency: m.Currency} }
func (m Money) Sub(o Money) Money { return Money{Value: m.Value.Sub(o.Value), Currency: m.Currency} }
func (m Money) Neg() Money        { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) IsNegative() bool  { return m.Value.IsNegative() }
func (m Money) IsZero() bool      { return m.Value.IsZero() }
func (m Money) IsPositive() bool  { return m.Value.IsPositive() }

// InUSD converts ARS money at the given sell rate. Zero rate yields zero.
func (m Money) InUSD(sellRate decimal.Decimal) Money {
	if sellRate.IsZero() {
		return Money{Currency: USD}
	}
	return Money{Value: m.Value.Div(sellRate), Currency: USD}
}

// MustParseDecimal parses s, returning zero on failure. Used when reading
// amounts back from storage, where values were written by us.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// PAYMENTS - Money in and money out
// =============================================================================

// PaymentMethod is free-form in storage; these are the values the practice uses.
type PaymentMethod string

const (
	MethodTransfer PaymentMethod = "Transferencia"
	MethodCash     PaymentMethod = "Efectivo"
	MethodMP       PaymentMethod = "Mercado Pago"
)

// PaymentReceived is a money inflow tied to one patient.
type PaymentReceived struct {
	ID        string
	PatientID string
	Amount    decimal.Decimal
	Date      time.Time
	Method    PaymentMethod

	// Invoiced is the user's flag that a tax invoice was issued for this
	// payment. The reconciliation detector only matches flagged payments.
	Invoiced   bool
	ReceiptRef string
	InvoiceRef string

	Deleted   bool
	CreatedAt time.Time
}

// PaymentConcept classifies an outgoing payment.
type PaymentConcept string

const (
	ConceptRent        PaymentConcept = "Alquiler"
	ConceptSupervision PaymentConcept = "Supervisión"
	ConceptOther       PaymentConcept = "Otro"
)

// PaymentMade is a money outflow: rent, supervisor fees, or other expenses.
type PaymentMade struct {
	ID      string
	Concept PaymentConcept

	// SupervisorID is set when Concept is Supervisión.
	SupervisorID *string

	Amount    decimal.Decimal
	Date      time.Time
	Method    PaymentMethod
	Deleted   bool
	CreatedAt time.Time
}

// ForSupervisor reports whether the payment went to the given supervisor.
func (p PaymentMade) ForSupervisor(supervisorID string) bool {
	return !p.Deleted && p.Concept == ConceptSupervision &&
		p.SupervisorID != nil && *p.SupervisorID == supervisorID
}
