// Package store provides an in-memory ReconciliationStore for tests.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/consultorio/practice-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[key]billing.ReconciliationRecord
}

type key struct {
	PatientID string
	Year      int
	Month     time.Month
}

func NewMemory() *Memory {
	return &Memory{records: make(map[key]billing.ReconciliationRecord)}
}

func (m *Memory) GetReconciliation(_ context.Context, patientID string, year int, month time.Month) (*billing.ReconciliationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key{patientID, year, month}]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (m *Memory) SaveReconciliation(_ context.Context, rec billing.ReconciliationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key{rec.PatientID, rec.Year, rec.Month}] = rec
	return nil
}

var _ billing.ReconciliationStore = (*Memory)(nil)
