package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	EventAppointmentCreated        = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged  = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentStatusReverted = "APPOINTMENT_STATUS_REVERTED"
	EventAppointmentDoctorAssigned = "APPOINTMENT_DOCTOR_ASSIGNED"
)

const appointmentColumns = `id, patient_id, service_id, doctor_id, status,
	checked_in_at, started_at, completed_at, version, created_at, updated_at`

const historyColumns = `id, seq, appointment_id, change_type, from_status, to_status,
	reason, actor_id, previous_doctor_id, new_doctor_id, reverted_entry_id,
	COALESCE(idempotency_key, ''), created_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	var specialty *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&specialty,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}

	c.Specialty = specialty
	return &c, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ServiceID,
		&a.DoctorID,
		&a.Status,
		&a.CheckedInAt,
		&a.StartedAt,
		&a.CompletedAt,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanHistoryEntry(row pgx.Row) (*HistoryEntry, error) {
	var e HistoryEntry

	err := row.Scan(
		&e.ID,
		&e.Seq,
		&e.AppointmentID,
		&e.ChangeType,
		&e.FromStatus,
		&e.ToStatus,
		&e.Reason,
		&e.ActorID,
		&e.PreviousDoctorID,
		&e.NewDoctorID,
		&e.RevertedEntryID,
		&e.IdempotencyKey,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHistoryEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM clinicians
		WHERE id = $1
	`, id)
	return scanClinician(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, *HistoryEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, service_id, doctor_id, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
		RETURNING `+appointmentColumns,
		uuid.New(), in.PatientID, in.ServiceID, in.DoctorID, StatusPending, now)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, nil, fmt.Errorf("insert appointment: %w", err)
	}

	entry, err := insertHistoryEntry(ctx, tx, HistoryEntry{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		ChangeType:    ChangeStatus,
		ToStatus:      StatusPending.Ptr(),
		ActorID:       in.ActorID,
		NewDoctorID:   in.DoctorID,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := insertEvent(ctx, tx, EventAppointmentCreated, *entry); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return appt, entry, nil
}

func (r *PgRepository) Commit(ctx context.Context, c Change) (*Appointment, *HistoryEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a := c.Appointment
	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    doctor_id = $3,
		    checked_in_at = $4,
		    started_at = $5,
		    completed_at = $6,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $7
		RETURNING `+appointmentColumns,
		a.ID, a.Status, a.DoctorID, a.CheckedInAt, a.StartedAt, a.CompletedAt, c.ExpectedVersion)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, nil, newError(KindConcurrentModification,
				"appointment %s changed since version %d", a.ID, c.ExpectedVersion)
		}
		return nil, nil, fmt.Errorf("update appointment: %w", err)
	}

	entry, err := insertHistoryEntry(ctx, tx, c.Entry)
	if err != nil {
		return nil, nil, err
	}

	if err := insertEvent(ctx, tx, c.EventType, *entry); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, entry, nil
}

func (r *PgRepository) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+historyColumns+`
		FROM appointment_status_history
		WHERE appointment_id = $1
		ORDER BY seq ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []HistoryEntry{}
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetHistoryEntry(ctx context.Context, id uuid.UUID) (*HistoryEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM appointment_status_history
		WHERE id = $1
	`, id)
	return scanHistoryEntry(row)
}

func (r *PgRepository) LastStatusChange(ctx context.Context, appointmentID uuid.UUID) (*HistoryEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM appointment_status_history
		WHERE appointment_id = $1
		  AND change_type = 'status_change'
		  AND from_status IS NOT NULL
		ORDER BY seq DESC
		LIMIT 1
	`, appointmentID)
	return scanHistoryEntry(row)
}

func (r *PgRepository) LatestStatusEntry(ctx context.Context, appointmentID uuid.UUID) (*HistoryEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM appointment_status_history
		WHERE appointment_id = $1
		  AND change_type IN ('status_change', 'status_reversion')
		ORDER BY seq DESC
		LIMIT 1
	`, appointmentID)
	return scanHistoryEntry(row)
}

func (r *PgRepository) FindByIdempotencyKey(ctx context.Context, appointmentID uuid.UUID, key string) (*HistoryEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM appointment_status_history
		WHERE appointment_id = $1
		  AND idempotency_key = $2
	`, appointmentID, key)
	return scanHistoryEntry(row)
}

func insertHistoryEntry(ctx context.Context, tx pgx.Tx, e HistoryEntry) (*HistoryEntry, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO appointment_status_history
			(id, appointment_id, change_type, from_status, to_status, reason, actor_id,
			 previous_doctor_id, new_doctor_id, reverted_entry_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()))
		RETURNING `+historyColumns,
		e.ID, e.AppointmentID, e.ChangeType, e.FromStatus, e.ToStatus, e.Reason, e.ActorID,
		e.PreviousDoctorID, e.NewDoctorID, e.RevertedEntryID, nullableString(e.IdempotencyKey),
		nullableTime(e.CreatedAt))

	entry, err := scanHistoryEntry(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newError(KindConcurrentModification,
				"idempotency key %q is already being used for appointment %s", e.IdempotencyKey, e.AppointmentID)
		}
		return nil, fmt.Errorf("insert history entry: %w", err)
	}
	return entry, nil
}

type eventPayload struct {
	EntryID          uuid.UUID  `json:"entry_id"`
	AppointmentID    uuid.UUID  `json:"appointment_id"`
	ChangeType       ChangeType `json:"change_type"`
	FromStatus       *Status    `json:"from_status,omitempty"`
	ToStatus         *Status    `json:"to_status,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	ActorID          string     `json:"actor_id,omitempty"`
	PreviousDoctorID *uuid.UUID `json:"previous_doctor_id,omitempty"`
	NewDoctorID      *uuid.UUID `json:"new_doctor_id,omitempty"`
	RevertedEntryID  *uuid.UUID `json:"reverted_entry_id,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

func insertEvent(ctx context.Context, tx pgx.Tx, eventType string, e HistoryEntry) error {
	payload, err := json.Marshal(eventPayload{
		EntryID:          e.ID,
		AppointmentID:    e.AppointmentID,
		ChangeType:       e.ChangeType,
		FromStatus:       e.FromStatus,
		ToStatus:         e.ToStatus,
		Reason:           e.Reason,
		ActorID:          e.ActorID,
		PreviousDoctorID: e.PreviousDoctorID,
		NewDoctorID:      e.NewDoctorID,
		RevertedEntryID:  e.RevertedEntryID,
		OccurredAt:       e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	apptID := e.AppointmentID
	_, err = tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, eventType, &apptID, payload, nullableTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
