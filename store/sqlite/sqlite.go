/*
Package sqlite provides the SQLite-backed persistence for the practice.

PURPOSE:
  Implements every storage concern of the service: the registries
  (pacientes, supervisoras), the calendar (sesiones), the money flows
  (pagos_recibidos, pagos_hechos), the rent singleton
  (configuracion_alquiler) and the reconciliation records
  (seguimiento_facturacion).

INTERFACES IMPLEMENTED:
  billing.ReconciliationStore: seguimiento_facturacion persistence
  schedule.SessionWriter:      recurring-generation cascades

SOFT DELETION:
  Sessions and payments are never purged: every delete flips the borrado
  flag, and every read filters borrado = 0. This keeps history available to
  the carry-forward accumulator while removed rows disappear from views.

NOT-FOUND SEMANTICS:
  Single-row getters return (nil, nil) when no row exists. An absent row is
  a valid empty state, not an error.

KEY TABLES:
  sesiones:                 Calendar events with type/status/price
  pagos_recibidos:          Money in, per patient
  pagos_hechos:             Money out, by concept
  seguimiento_facturacion:  Per patient per month invoicing flags
  configuracion_alquiler:   Singleton rent row (id fixed at 1)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, with SQLite opened in WAL mode:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/practice.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/reconcile.go: ReconciliationStore interface
  - schedule/recurring.go: SessionWriter interface
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/consultorio/practice-engine/billing"
	"github.com/consultorio/practice-engine/schedule"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Patients
	CREATE TABLE IF NOT EXISTS pacientes (
		id TEXT PRIMARY KEY,
		nombre TEXT NOT NULL,
		tutor TEXT,
		email TEXT,
		telefono TEXT,
		activo BOOLEAN DEFAULT TRUE,
		slot_dia_semana INTEGER,
		slot_hora INTEGER,
		slot_minuto INTEGER,
		slot_horas TEXT,
		slot_tarifa TEXT,
		slot_tipo TEXT,
		borrado BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Supervisors
	CREATE TABLE IF NOT EXISTS supervisoras (
		id TEXT PRIMARY KEY,
		nombre TEXT NOT NULL,
		email TEXT,
		telefono TEXT,
		borrado BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Sessions: exactly one of paciente_id / supervisora_id is set
	CREATE TABLE IF NOT EXISTS sesiones (
		id TEXT PRIMARY KEY,
		fecha TEXT NOT NULL,
		horas TEXT NOT NULL,
		tarifa TEXT NOT NULL,
		tipo TEXT NOT NULL,
		estado TEXT NOT NULL,
		paciente_id TEXT,
		supervisora_id TEXT,
		acompanada_por TEXT,
		notas TEXT,
		borrado BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL,
		CHECK ((paciente_id IS NULL) != (supervisora_id IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_sesiones_paciente
		ON sesiones(paciente_id, fecha);
	CREATE INDEX IF NOT EXISTS idx_sesiones_supervisora
		ON sesiones(supervisora_id, fecha);
	CREATE INDEX IF NOT EXISTS idx_sesiones_fecha
		ON sesiones(fecha);
	CREATE INDEX IF NOT EXISTS idx_sesiones_acompanada
		ON sesiones(acompanada_por) WHERE acompanada_por IS NOT NULL;

	-- Payments received (money in, per patient)
	CREATE TABLE IF NOT EXISTS pagos_recibidos (
		id TEXT PRIMARY KEY,
		paciente_id TEXT NOT NULL,
		monto TEXT NOT NULL,
		fecha TEXT NOT NULL,
		metodo TEXT,
		facturado BOOLEAN DEFAULT FALSE,
		recibo_ref TEXT,
		factura_ref TEXT,
		borrado BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pagos_recibidos_paciente
		ON pagos_recibidos(paciente_id, fecha);

	-- Payments made (money out, by concept)
	CREATE TABLE IF NOT EXISTS pagos_hechos (
		id TEXT PRIMARY KEY,
		concepto TEXT NOT NULL,
		supervisora_id TEXT,
		monto TEXT NOT NULL,
		fecha TEXT NOT NULL,
		metodo TEXT,
		borrado BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pagos_hechos_concepto
		ON pagos_hechos(concepto, fecha);
	CREATE INDEX IF NOT EXISTS idx_pagos_hechos_supervisora
		ON pagos_hechos(supervisora_id) WHERE supervisora_id IS NOT NULL;

	-- Rent configuration (singleton, id fixed at 1)
	CREATE TABLE IF NOT EXISTS configuracion_alquiler (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		precio_mensual TEXT NOT NULL,
		beneficiario TEXT,
		fecha_inicio TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Monthly reconciliation records
	CREATE TABLE IF NOT EXISTS seguimiento_facturacion (
		paciente_id TEXT NOT NULL,
		anio INTEGER NOT NULL,
		mes INTEGER NOT NULL,
		total_facturado TEXT NOT NULL DEFAULT '0',
		enviado_tutor BOOLEAN DEFAULT FALSE,
		fecha_enviado_tutor TEXT,
		facturado BOOLEAN DEFAULT FALSE,
		fecha_facturado TEXT,
		completamente_pagado BOOLEAN DEFAULT FALSE,
		fecha_completamente_pagado TEXT,
		PRIMARY KEY (paciente_id, anio, mes)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PATIENTS
// =============================================================================

// Patient is a stored patient with an optional weekly slot.
type Patient struct {
	ID        string
	Name      string
	Guardian  string
	Email     string
	Phone     string
	Active    bool
	Slot      schedule.RecurringSlot
	HasSlot   bool
	Deleted   bool
	CreatedAt time.Time
}

// SavePatient upserts a patient.
func (s *Store) SavePatient(ctx context.Context, p Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pacientes (id, nombre, tutor, email, telefono, activo,
			slot_dia_semana, slot_hora, slot_minuto, slot_horas, slot_tarifa, slot_tipo,
			borrado, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nombre = excluded.nombre,
			tutor = excluded.tutor,
			email = excluded.email,
			telefono = excluded.telefono,
			activo = excluded.activo,
			slot_dia_semana = excluded.slot_dia_semana,
			slot_hora = excluded.slot_hora,
			slot_minuto = excluded.slot_minuto,
			slot_horas = excluded.slot_horas,
			slot_tarifa = excluded.slot_tarifa,
			slot_tipo = excluded.slot_tipo,
			borrado = excluded.borrado
	`

	var weekday, hour, minute *int
	var hours, rate, slotType *string
	if p.HasSlot {
		wd := int(p.Slot.Weekday)
		h, m := p.Slot.Hour, p.Slot.Minute
		hs, rt, st := p.Slot.Hours.String(), p.Slot.Rate.String(), string(p.Slot.Type)
		weekday, hour, minute = &wd, &h, &m
		hours, rate, slotType = &hs, &rt, &st
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Guardian, p.Email, p.Phone, p.Active,
		weekday, hour, minute, hours, rate, slotType,
		p.Deleted, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetPatient retrieves a patient by ID, or (nil, nil) when absent.
func (s *Store) GetPatient(ctx context.Context, id string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, nombre, tutor, email, telefono, activo,
		       slot_dia_semana, slot_hora, slot_minuto, slot_horas, slot_tarifa, slot_tipo,
		       borrado, created_at
		FROM pacientes WHERE id = ?`, id)

	p, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPatients returns non-deleted patients. When activeOnly is set,
// deactivated patients are filtered out too.
func (s *Store) ListPatients(ctx context.Context, activeOnly bool) ([]Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, nombre, tutor, email, telefono, activo,
		       slot_dia_semana, slot_hora, slot_minuto, slot_horas, slot_tarifa, slot_tipo,
		       borrado, created_at
		FROM pacientes
		WHERE borrado = 0`
	if activeOnly {
		query += ` AND activo = 1`
	}
	query += ` ORDER BY nombre`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

// SetPatientActive flips the activo flag.
func (s *Store) SetPatientActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE pacientes SET activo = ? WHERE id = ? AND borrado = 0", active, id)
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrPatientNotFound)
}

// DeletePatient soft-deletes a patient.
func (s *Store) DeletePatient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE pacientes SET borrado = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrPatientNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(r rowScanner) (*Patient, error) {
	var p Patient
	var guardian, email, phone sql.NullString
	var weekday, hour, minute sql.NullInt64
	var hours, rate, slotType sql.NullString
	var createdAt string

	err := r.Scan(&p.ID, &p.Name, &guardian, &email, &phone, &p.Active,
		&weekday, &hour, &minute, &hours, &rate, &slotType,
		&p.Deleted, &createdAt)
	if err != nil {
		return nil, err
	}

	p.Guardian = guardian.String
	p.Email = email.String
	p.Phone = phone.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if weekday.Valid && hours.Valid && rate.Valid {
		p.HasSlot = true
		p.Slot = schedule.RecurringSlot{
			Weekday: time.Weekday(weekday.Int64),
			Hour:    int(hour.Int64),
			Minute:  int(minute.Int64),
			Hours:   billing.MustParseDecimal(hours.String),
			Rate:    billing.MustParseDecimal(rate.String),
			Type:    schedule.SessionType(slotType.String),
		}
	}
	return &p, nil
}

// =============================================================================
// SUPERVISORS
// =============================================================================

// Supervisor is a stored supervisor record.
type Supervisor struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Deleted   bool
	CreatedAt time.Time
}

// SaveSupervisor upserts a supervisor.
func (s *Store) SaveSupervisor(ctx context.Context, sup Supervisor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO supervisoras (id, nombre, email, telefono, borrado, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nombre = excluded.nombre,
			email = excluded.email,
			telefono = excluded.telefono,
			borrado = excluded.borrado
	`
	_, err := s.db.ExecContext(ctx, query,
		sup.ID, sup.Name, sup.Email, sup.Phone, sup.Deleted,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetSupervisor retrieves a supervisor by ID, or (nil, nil) when absent.
func (s *Store) GetSupervisor(ctx context.Context, id string) (*Supervisor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sup Supervisor
	var email, phone sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, nombre, email, telefono, borrado, created_at FROM supervisoras WHERE id = ?",
		id,
	).Scan(&sup.ID, &sup.Name, &email, &phone, &sup.Deleted, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sup.Email = email.String
	sup.Phone = phone.String
	sup.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &sup, nil
}

// ListSupervisors returns non-deleted supervisors.
func (s *Store) ListSupervisors(ctx context.Context) ([]Supervisor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, nombre, email, telefono, borrado, created_at FROM supervisoras WHERE borrado = 0 ORDER BY nombre")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sups []Supervisor
	for rows.Next() {
		var sup Supervisor
		var email, phone sql.NullString
		var createdAt string
		if err := rows.Scan(&sup.ID, &sup.Name, &email, &phone, &sup.Deleted, &createdAt); err != nil {
			return nil, err
		}
		sup.Email = email.String
		sup.Phone = phone.String
		sup.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sups = append(sups, sup)
	}
	return sups, rows.Err()
}

// DeleteSupervisor soft-deletes a supervisor.
func (s *Store) DeleteSupervisor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE supervisoras SET borrado = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrSupervisorNotFound)
}

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `id, fecha, horas, tarifa, tipo, estado, paciente_id, supervisora_id, acompanada_por, notas, borrado, created_at`

// SaveSession upserts a session.
func (s *Store) SaveSession(ctx context.Context, sess schedule.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveSession(ctx, s.db, sess)
}

// SaveSessions persists a batch of sessions atomically.
func (s *Store) SaveSessions(ctx context.Context, sessions []schedule.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, sess := range sessions {
		if err := s.saveSession(ctx, tx, sess); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) saveSession(ctx context.Context, db execer, sess schedule.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO sesiones (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fecha = excluded.fecha,
			horas = excluded.horas,
			tarifa = excluded.tarifa,
			tipo = excluded.tipo,
			estado = excluded.estado,
			acompanada_por = excluded.acompanada_por,
			notas = excluded.notas,
			borrado = excluded.borrado
	`
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		sess.ID,
		sess.StartsAt.UTC().Format(time.RFC3339),
		sess.Hours.String(),
		sess.Rate.String(),
		string(sess.Type),
		string(sess.Status),
		sess.PatientID,
		sess.SupervisorID,
		sess.AccompaniedBy,
		sess.Notes,
		sess.Deleted,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, or (nil, nil) when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions, err := s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sesiones WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// ListSessionsInRange returns non-deleted sessions with fecha in [from, to).
func (s *Store) ListSessionsInRange(ctx context.Context, from, to time.Time) ([]schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sesiones
		WHERE borrado = 0 AND fecha >= ? AND fecha < ?
		ORDER BY fecha ASC`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

// ListSessionsByPatient returns the patient's full non-deleted history.
func (s *Store) ListSessionsByPatient(ctx context.Context, patientID string) ([]schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sesiones
		WHERE borrado = 0 AND paciente_id = ?
		ORDER BY fecha ASC`, patientID)
}

// ListSessionsForSupervisor returns the supervisor's own sessions plus every
// patient session she accompanied.
func (s *Store) ListSessionsForSupervisor(ctx context.Context, supervisorID string) ([]schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sesiones
		WHERE borrado = 0 AND (supervisora_id = ? OR acompanada_por = ?)
		ORDER BY fecha ASC`, supervisorID, supervisorID)
}

// UpdateSessionStatus applies a status categorization action.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status schedule.SessionStatus) error {
	if !status.Valid() {
		return &schedule.InvalidFieldError{Field: "status", Value: string(status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE sesiones SET estado = ? WHERE id = ? AND borrado = 0",
		string(status), id)
	if err != nil {
		return err
	}
	return requireRow(res, schedule.ErrSessionNotFound)
}

// DeleteSession soft-deletes a session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE sesiones SET borrado = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, schedule.ErrSessionNotFound)
}

// SoftDeleteFuturePending flags the patient's pending sessions at or after
// from. Part of the deactivation cascade.
func (s *Store) SoftDeleteFuturePending(ctx context.Context, patientID string, from time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sesiones SET borrado = 1
		WHERE paciente_id = ? AND borrado = 0 AND estado = ? AND fecha >= ?`,
		patientID, string(schedule.StatusPending), from.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TakenDays returns the YYYY-MM-DD set of days in [from, until] that already
// carry a non-deleted session for the patient.
func (s *Store) TakenDays(ctx context.Context, patientID string, from, until time.Time) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT DATE(fecha) FROM sesiones
		WHERE paciente_id = ? AND borrado = 0 AND fecha >= ? AND fecha <= ?`,
		patientID, from.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		taken[day] = true
	}
	return taken, rows.Err()
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]schedule.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []schedule.Session
	for rows.Next() {
		var sess schedule.Session
		var fecha, horas, tarifa, tipo, estado, createdAt string
		var patientID, supervisorID, accompaniedBy, notas sql.NullString

		if err := rows.Scan(&sess.ID, &fecha, &horas, &tarifa, &tipo, &estado,
			&patientID, &supervisorID, &accompaniedBy, &notas, &sess.Deleted, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		sess.StartsAt, _ = time.Parse(time.RFC3339, fecha)
		sess.Hours = billing.MustParseDecimal(horas)
		sess.Rate = billing.MustParseDecimal(tarifa)
		sess.Type = schedule.SessionType(tipo)
		sess.Status = schedule.SessionStatus(estado)
		sess.Notes = notas.String
		sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if patientID.Valid {
			v := patientID.String
			sess.PatientID = &v
		}
		if supervisorID.Valid {
			v := supervisorID.String
			sess.SupervisorID = &v
		}
		if accompaniedBy.Valid {
			v := accompaniedBy.String
			sess.AccompaniedBy = &v
		}

		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// =============================================================================
// PAYMENTS RECEIVED
// =============================================================================

// SavePaymentReceived upserts a received payment.
func (s *Store) SavePaymentReceived(ctx context.Context, p billing.PaymentReceived) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pagos_recibidos (id, paciente_id, monto, fecha, metodo, facturado, recibo_ref, factura_ref, borrado, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			monto = excluded.monto,
			fecha = excluded.fecha,
			metodo = excluded.metodo,
			facturado = excluded.facturado,
			recibo_ref = excluded.recibo_ref,
			factura_ref = excluded.factura_ref,
			borrado = excluded.borrado
	`
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.PatientID, p.Amount.String(),
		p.Date.UTC().Format(time.RFC3339),
		string(p.Method), p.Invoiced, p.ReceiptRef, p.InvoiceRef,
		p.Deleted, createdAt.Format(time.RFC3339))
	return err
}

// ListPaymentsReceivedByPatient returns the patient's non-deleted payments.
func (s *Store) ListPaymentsReceivedByPatient(ctx context.Context, patientID string) ([]billing.PaymentReceived, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPaymentsReceived(ctx, `
		SELECT id, paciente_id, monto, fecha, metodo, facturado, recibo_ref, factura_ref, borrado, created_at
		FROM pagos_recibidos
		WHERE borrado = 0 AND paciente_id = ?
		ORDER BY fecha ASC`, patientID)
}

// ListPaymentsReceivedInRange returns non-deleted payments in [from, to).
func (s *Store) ListPaymentsReceivedInRange(ctx context.Context, from, to time.Time) ([]billing.PaymentReceived, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPaymentsReceived(ctx, `
		SELECT id, paciente_id, monto, fecha, metodo, facturado, recibo_ref, factura_ref, borrado, created_at
		FROM pagos_recibidos
		WHERE borrado = 0 AND fecha >= ? AND fecha < ?
		ORDER BY fecha ASC`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

// DeletePaymentReceived soft-deletes a received payment.
func (s *Store) DeletePaymentReceived(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE pagos_recibidos SET borrado = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrPaymentNotFound)
}

func (s *Store) queryPaymentsReceived(ctx context.Context, query string, args ...any) ([]billing.PaymentReceived, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []billing.PaymentReceived
	for rows.Next() {
		var p billing.PaymentReceived
		var monto, fecha, createdAt string
		var metodo, reciboRef, facturaRef sql.NullString

		if err := rows.Scan(&p.ID, &p.PatientID, &monto, &fecha, &metodo,
			&p.Invoiced, &reciboRef, &facturaRef, &p.Deleted, &createdAt); err != nil {
			return nil, err
		}

		p.Amount = billing.MustParseDecimal(monto)
		p.Date, _ = time.Parse(time.RFC3339, fecha)
		p.Method = billing.PaymentMethod(metodo.String)
		p.ReceiptRef = reciboRef.String
		p.InvoiceRef = facturaRef.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// PAYMENTS MADE
// =============================================================================

// SavePaymentMade upserts an outgoing payment.
func (s *Store) SavePaymentMade(ctx context.Context, p billing.PaymentMade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pagos_hechos (id, concepto, supervisora_id, monto, fecha, metodo, borrado, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			concepto = excluded.concepto,
			supervisora_id = excluded.supervisora_id,
			monto = excluded.monto,
			fecha = excluded.fecha,
			metodo = excluded.metodo,
			borrado = excluded.borrado
	`
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, string(p.Concept), p.SupervisorID, p.Amount.String(),
		p.Date.UTC().Format(time.RFC3339), string(p.Method),
		p.Deleted, createdAt.Format(time.RFC3339))
	return err
}

// ListPaymentsMade returns all non-deleted outgoing payments, optionally
// filtered by concept ("" = all).
func (s *Store) ListPaymentsMade(ctx context.Context, concept billing.PaymentConcept) ([]billing.PaymentMade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, concepto, supervisora_id, monto, fecha, metodo, borrado, created_at
		FROM pagos_hechos
		WHERE borrado = 0`
	var args []any
	if concept != "" {
		query += ` AND concepto = ?`
		args = append(args, string(concept))
	}
	query += ` ORDER BY fecha ASC`

	return s.queryPaymentsMade(ctx, query, args...)
}

// ListPaymentsMadeInRange returns non-deleted outgoing payments in [from, to).
func (s *Store) ListPaymentsMadeInRange(ctx context.Context, from, to time.Time) ([]billing.PaymentMade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPaymentsMade(ctx, `
		SELECT id, concepto, supervisora_id, monto, fecha, metodo, borrado, created_at
		FROM pagos_hechos
		WHERE borrado = 0 AND fecha >= ? AND fecha < ?
		ORDER BY fecha ASC`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

// DeletePaymentMade soft-deletes an outgoing payment.
func (s *Store) DeletePaymentMade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE pagos_hechos SET borrado = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, billing.ErrPaymentNotFound)
}

func (s *Store) queryPaymentsMade(ctx context.Context, query string, args ...any) ([]billing.PaymentMade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []billing.PaymentMade
	for rows.Next() {
		var p billing.PaymentMade
		var concepto, monto, fecha, createdAt string
		var supervisorID, metodo sql.NullString

		if err := rows.Scan(&p.ID, &concepto, &supervisorID, &monto, &fecha,
			&metodo, &p.Deleted, &createdAt); err != nil {
			return nil, err
		}

		p.Concept = billing.PaymentConcept(concepto)
		p.Amount = billing.MustParseDecimal(monto)
		p.Date, _ = time.Parse(time.RFC3339, fecha)
		p.Method = billing.PaymentMethod(metodo.String)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if supervisorID.Valid {
			v := supervisorID.String
			p.SupervisorID = &v
		}

		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// RENT CONFIGURATION
// =============================================================================

// GetRentConfig returns the singleton rent row, or (nil, nil) when absent.
func (s *Store) GetRentConfig(ctx context.Context) (*billing.RentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var precio, fechaInicio, updatedAt string
	var beneficiario sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT precio_mensual, beneficiario, fecha_inicio, updated_at FROM configuracion_alquiler WHERE id = 1",
	).Scan(&precio, &beneficiario, &fechaInicio, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := billing.RentConfig{
		MonthlyPrice: billing.MustParseDecimal(precio),
		Payee:        beneficiario.String,
	}
	cfg.StartDate, _ = time.Parse(time.RFC3339, fechaInicio)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}

// SaveRentConfig upserts the singleton rent row.
func (s *Store) SaveRentConfig(ctx context.Context, cfg billing.RentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO configuracion_alquiler (id, precio_mensual, beneficiario, fecha_inicio, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			precio_mensual = excluded.precio_mensual,
			beneficiario = excluded.beneficiario,
			fecha_inicio = excluded.fecha_inicio,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		cfg.MonthlyPrice.String(), cfg.Payee,
		cfg.StartDate.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// RECONCILIATION RECORDS (billing.ReconciliationStore)
// =============================================================================

// GetReconciliation returns the record, or (nil, nil) when absent.
func (s *Store) GetReconciliation(ctx context.Context, patientID string, year int, month time.Month) (*billing.ReconciliationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec billing.ReconciliationRecord
	var mes int
	var total string
	var sentAt, invoicedAt, fullyPaidAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT paciente_id, anio, mes, total_facturado,
		       enviado_tutor, fecha_enviado_tutor,
		       facturado, fecha_facturado,
		       completamente_pagado, fecha_completamente_pagado
		FROM seguimiento_facturacion
		WHERE paciente_id = ? AND anio = ? AND mes = ?`,
		patientID, year, int(month),
	).Scan(&rec.PatientID, &rec.Year, &mes, &total,
		&rec.SentToGuardian, &sentAt,
		&rec.Invoiced, &invoicedAt,
		&rec.FullyPaid, &fullyPaidAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.Month = time.Month(mes)
	rec.TotalInvoiced = billing.MustParseDecimal(total)
	rec.SentAt = parseNullTime(sentAt)
	rec.InvoicedAt = parseNullTime(invoicedAt)
	rec.FullyPaidAt = parseNullTime(fullyPaidAt)
	return &rec, nil
}

// SaveReconciliation upserts the record. fecha_* columns are only ever
// overwritten with non-NULL values, keeping timestamps one-way at the
// storage level too.
func (s *Store) SaveReconciliation(ctx context.Context, rec billing.ReconciliationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO seguimiento_facturacion
			(paciente_id, anio, mes, total_facturado,
			 enviado_tutor, fecha_enviado_tutor,
			 facturado, fecha_facturado,
			 completamente_pagado, fecha_completamente_pagado)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(paciente_id, anio, mes) DO UPDATE SET
			total_facturado = excluded.total_facturado,
			enviado_tutor = excluded.enviado_tutor,
			fecha_enviado_tutor = COALESCE(excluded.fecha_enviado_tutor, seguimiento_facturacion.fecha_enviado_tutor),
			facturado = excluded.facturado,
			fecha_facturado = COALESCE(excluded.fecha_facturado, seguimiento_facturacion.fecha_facturado),
			completamente_pagado = excluded.completamente_pagado,
			fecha_completamente_pagado = COALESCE(excluded.fecha_completamente_pagado, seguimiento_facturacion.fecha_completamente_pagado)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.PatientID, rec.Year, int(rec.Month), rec.TotalInvoiced.String(),
		rec.SentToGuardian, formatNullTime(rec.SentAt),
		rec.Invoiced, formatNullTime(rec.InvoicedAt),
		rec.FullyPaid, formatNullTime(rec.FullyPaidAt))
	return err
}

// ListReconciliations returns all records for a month, keyed by patient.
func (s *Store) ListReconciliations(ctx context.Context, year int, month time.Month) (map[string]billing.ReconciliationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT paciente_id, anio, mes, total_facturado,
		       enviado_tutor, fecha_enviado_tutor,
		       facturado, fecha_facturado,
		       completamente_pagado, fecha_completamente_pagado
		FROM seguimiento_facturacion
		WHERE anio = ? AND mes = ?`, year, int(month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]billing.ReconciliationRecord)
	for rows.Next() {
		var rec billing.ReconciliationRecord
		var mes int
		var total string
		var sentAt, invoicedAt, fullyPaidAt sql.NullString

		if err := rows.Scan(&rec.PatientID, &rec.Year, &mes, &total,
			&rec.SentToGuardian, &sentAt,
			&rec.Invoiced, &invoicedAt,
			&rec.FullyPaid, &fullyPaidAt); err != nil {
			return nil, err
		}

		rec.Month = time.Month(mes)
		rec.TotalInvoiced = billing.MustParseDecimal(total)
		rec.SentAt = parseNullTime(sentAt)
		rec.InvoicedAt = parseNullTime(invoicedAt)
		rec.FullyPaidAt = parseNullTime(fullyPaidAt)
		records[rec.PatientID] = rec
	}
	return records, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"sesiones", "pagos_recibidos", "pagos_hechos",
		"seguimiento_facturacion", "configuracion_alquiler",
		"pacientes", "supervisoras",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// Compile-time interface checks.
var (
	_ billing.ReconciliationStore = (*Store)(nil)
	_ schedule.SessionWriter      = (*Store)(nil)
)
