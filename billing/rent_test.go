package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/consultorio/practice-engine/billing"
)

func rentPayment(id string, date time.Time, amount int64) billing.PaymentMade {
	return billing.PaymentMade{
		ID:      id,
		Concept: billing.ConceptRent,
		Amount:  decimal.NewFromInt(amount),
		Date:    date,
		Method:  billing.MethodTransfer,
	}
}

func TestRentRollup_OwedMinusPaid(t *testing.T) {
	// GIVEN: Rent of 100000 since January, two payments made
	cfg := billing.RentConfig{
		MonthlyPrice: decimal.NewFromInt(100000),
		StartDate:    time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	payments := []billing.PaymentMade{
		rentPayment("r1", time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), 100000),
		rentPayment("r2", time.Date(2026, time.February, 5, 0, 0, 0, 0, time.UTC), 100000),
	}

	// WHEN: Rolling up as of mid-March
	sum := billing.RentRollup(cfg, payments, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))

	// THEN: Three months owed, two paid, one outstanding
	assert.Equal(t, 3, sum.MonthsElapsed)
	assert.Equal(t, "300000", sum.TotalOwed.String())
	assert.Equal(t, "200000", sum.TotalPaid.String())
	assert.Equal(t, "100000", sum.Balance.String())
}

func TestRentRollup_IgnoresOtherConceptsAndDeleted(t *testing.T) {
	cfg := billing.RentConfig{
		MonthlyPrice: decimal.NewFromInt(100000),
		StartDate:    time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}

	supervision := billing.PaymentMade{
		ID:      "s1",
		Concept: billing.ConceptSupervision,
		Amount:  decimal.NewFromInt(50000),
		Date:    time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
	}
	deleted := rentPayment("r1", time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC), 100000)
	deleted.Deleted = true

	sum := billing.RentRollup(cfg, []billing.PaymentMade{supervision, deleted},
		time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "100000", sum.TotalOwed.String())
	assert.Equal(t, "0", sum.TotalPaid.String())
	assert.Equal(t, "100000", sum.Balance.String())
}

func TestRentRollup_StartInFutureOwesNothing(t *testing.T) {
	cfg := billing.RentConfig{
		MonthlyPrice: decimal.NewFromInt(100000),
		StartDate:    time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
	}

	sum := billing.RentRollup(cfg, nil, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 0, sum.MonthsElapsed)
	assert.True(t, sum.TotalOwed.IsZero())
}
